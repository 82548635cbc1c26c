package sim

import "fmt"

// Base speed limits per street class, m/s. The original map scales a
// base cruise speed by 1.0 / 0.8 / 0.6 for principal, secondary and
// cobbled streets.
const (
	speedPrincipal = 14.0
	speedSecondary = 11.0
	speedCobbled   = 8.0
)

// mapScale converts the original layout coordinates to meters.
const mapScale = 0.5

// slotLength is the per-vehicle capacity slot used when sizing edges.
const slotLength = 8.0

type cuscoBuilder struct {
	net *Network
	err error
}

func (b *cuscoBuilder) node(id NodeID, x, y float64, principal bool) {
	b.net.AddNode(id, x*mapScale, y*mapScale, principal)
}

func (b *cuscoBuilder) dist(from, to NodeID) float64 {
	f, _ := b.net.Node(from)
	t, _ := b.net.Node(to)
	dx, dy := t.X-f.X, t.Y-f.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	// streets run axis-aligned or diagonal; manhattan length is close
	// enough for travel-time purposes
	return dx + dy
}

// street adds a bidirectional segment pair named after the street.
func (b *cuscoBuilder) street(name string, class StreetClass, from, to NodeID) {
	b.oneway(name, class, from, to)
	b.oneway(name, class, to, from)
}

func (b *cuscoBuilder) oneway(name string, class StreetClass, from, to NodeID) {
	if b.err != nil {
		return
	}
	limit := speedPrincipal
	lanes := 2
	switch class {
	case StreetSecondary:
		limit, lanes = speedSecondary, 1
	case StreetCobbled:
		limit, lanes = speedCobbled, 1
	}
	length := b.dist(from, to)
	e := Edge{
		ID:         EdgeID(fmt.Sprintf("%s.%s-%s", name, from, to)),
		From:       from,
		To:         to,
		Length:     length,
		Lanes:      lanes,
		SpeedLimit: limit,
		Class:      class,
		Zone:       b.zoneFor(from, to),
		Capacity:   lanes * int(length/slotLength),
	}
	if e.Capacity < 1 {
		e.Capacity = 1
	}
	b.err = b.net.AddEdge(e)
}

func (b *cuscoBuilder) zoneFor(from, to NodeID) Zone {
	f, _ := b.net.Node(from)
	t, _ := b.net.Node(to)
	x := (f.X + t.X) / 2 / mapScale
	y := (f.Y + t.Y) / 2 / mapScale
	switch {
	case y < 300:
		return ZoneNorte
	case y > 550:
		return ZoneSur
	case x < 400:
		return ZoneOeste
	case x > 900:
		return ZoneEste
	default:
		return ZoneCentro
	}
}

// markBorder flags the single inbound edge of a border stub as an entry
// and the outbound one as an exit.
func (b *cuscoBuilder) markBorder(stub NodeID) {
	for _, e := range b.net.Outgoing(stub) {
		e.Entry = true
		b.net.entries = append(b.net.entries, e.ID)
	}
	for _, e := range b.net.Incoming(stub) {
		e.Exit = true
		b.net.exits = append(b.net.exits, e.ID)
	}
}

// BuildCuscoNetwork constructs the fixed historic-district road graph:
// the principal avenues (El Sol, De la Cultura, Garcilaso, Túpac
// Amaru), the transverse avenues (Ejercito, Huáscar, Pardo, Los Incas)
// and the cobbled streets around the Plaza de Armas and San Blas.
func BuildCuscoNetwork() (*Network, error) {
	b := &cuscoBuilder{net: NewNetwork()}

	// Avenue grid intersections: rows Garcilaso / El Sol / Túpac Amaru,
	// columns Ejercito / Huáscar / De la Cultura / Pardo.
	rows := []struct {
		tag NodeID
		y   float64
	}{{"GAR", 200}, {"SOL", 400}, {"TUP", 600}}
	cols := []struct {
		tag NodeID
		x   float64
	}{{"EJE", 300}, {"HUA", 500}, {"CUL", 800}, {"PAR", 1100}}

	for _, r := range rows {
		for _, c := range cols {
			// El Sol / De la Cultura crossings carry the heavy traffic
			principal := r.tag == "SOL" || c.tag == "CUL"
			b.node(c.tag+"-"+r.tag, c.x, r.y, principal)
		}
	}

	// Border stubs where traffic enters and leaves the district.
	for _, r := range rows {
		b.node("W-"+r.tag, 0, r.y, false)
		b.node("E-"+r.tag, 1400, r.y, false)
	}
	for _, c := range cols {
		b.node(c.tag+"-N", c.x, 0, false)
		b.node(c.tag+"-S", c.x, 800, false)
	}

	// Historic-centre nodes.
	b.node("PLAZA", 650, 450, false)     // Plaza de Armas
	b.node("SANBLAS", 850, 300, false)   // Cuesta San Blas
	b.node("SANPEDRO", 300, 700, false)  // Mercado San Pedro
	b.node("QORI", 950, 500, false)      // Qorikancha corner

	avenues := map[NodeID]string{"GAR": "garcilaso", "SOL": "elsol", "TUP": "tupacamaru"}
	for _, r := range rows {
		name := avenues[r.tag]
		b.street(name, StreetPrincipal, "W-"+r.tag, "EJE-"+r.tag)
		b.street(name, StreetPrincipal, "EJE-"+r.tag, "HUA-"+r.tag)
		b.street(name, StreetPrincipal, "HUA-"+r.tag, "CUL-"+r.tag)
		b.street(name, StreetPrincipal, "CUL-"+r.tag, "PAR-"+r.tag)
		b.street(name, StreetPrincipal, "PAR-"+r.tag, "E-"+r.tag)
	}
	transverse := map[NodeID]string{"EJE": "ejercito", "HUA": "huascar", "CUL": "cultura", "PAR": "pardo"}
	for _, c := range cols {
		name := transverse[c.tag]
		class := StreetSecondary
		if c.tag == "CUL" {
			class = StreetPrincipal // Av. de la Cultura
		}
		b.street(name, class, c.tag+"-N", c.tag+"-GAR")
		b.street(name, class, c.tag+"-GAR", c.tag+"-SOL")
		b.street(name, class, c.tag+"-SOL", c.tag+"-TUP")
		b.street(name, class, c.tag+"-TUP", c.tag+"-S")
	}

	// Cobbled centre: Plateros into the Plaza, Loreto down to Túpac
	// Amaru, Santa Catalina toward Qorikancha, the San Blas climb and
	// the San Pedro market streets.
	b.street("plateros", StreetCobbled, "HUA-SOL", "PLAZA")
	b.street("procuradores", StreetCobbled, "HUA-GAR", "PLAZA")
	b.street("loreto", StreetCobbled, "PLAZA", "HUA-TUP")
	b.street("santacatalina", StreetCobbled, "PLAZA", "QORI")
	b.street("qorikancha", StreetCobbled, "QORI", "CUL-SOL")
	b.street("sanblas", StreetCobbled, "PLAZA", "SANBLAS")
	b.street("cuestasanblas", StreetCobbled, "SANBLAS", "CUL-GAR")
	b.street("sanpedro", StreetCobbled, "EJE-TUP", "SANPEDRO")
	b.street("mercado", StreetCobbled, "SANPEDRO", "HUA-TUP")

	if b.err != nil {
		return nil, b.err
	}

	for _, r := range rows {
		b.markBorder("W-" + r.tag)
		b.markBorder("E-" + r.tag)
	}
	for _, c := range cols {
		b.markBorder(c.tag + "-N")
		b.markBorder(c.tag + "-S")
	}

	if err := b.net.Finalize(); err != nil {
		return nil, err
	}
	return b.net, nil
}

// ZoneEdges returns the IDs of all edges inside a zone, sorted.
func (n *Network) ZoneEdges(z Zone) []EdgeID {
	var out []EdgeID
	for _, e := range n.Edges() {
		if e.Zone == z {
			out = append(out, e.ID)
		}
	}
	return out
}
