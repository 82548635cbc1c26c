package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTiming() SignalTiming {
	return SignalTiming{MinGreen: 5, MaxGreen: 15, Amber: 3, AllRed: 1, QueueGain: 1}
}

func newTestSignal(t *testing.T, principal bool) *TrafficSignal {
	t.Helper()
	s, err := NewTrafficSignal(&Node{ID: "C", Principal: principal}, testTiming())
	require.NoError(t, err)
	return s
}

// advanceUntilChange steps the signal in small increments and returns
// the elapsed time when the phase flips.
func advanceUntilChange(t *testing.T, s *TrafficSignal) (Phase, float64) {
	t.Helper()
	from := s.Phase()
	elapsed := 0.0
	for i := 0; i < 10000; i++ {
		p, err := s.Advance(0.1)
		require.NoError(t, err)
		elapsed += 0.1
		if p != from {
			return p, elapsed
		}
	}
	t.Fatalf("signal never left phase %s", from)
	return from, 0
}

func TestSignalCycleOrder(t *testing.T) {
	s := newTestSignal(t, false)
	require.Equal(t, PhaseNSGreen, s.Phase())

	want := []Phase{
		PhaseNSAmber, PhaseAllRedNS, PhaseEWGreen,
		PhaseEWAmber, PhaseAllRedEW, PhaseNSGreen,
	}
	for _, expect := range want {
		p, _ := advanceUntilChange(t, s)
		assert.Equal(t, expect, p)
	}
	assert.EqualValues(t, 6, s.Changes(), "one full cycle")
}

func TestSignalDwellsRespectMinimums(t *testing.T) {
	s := newTestSignal(t, false)
	timing := testTiming()

	var cycle float64
	for i := 0; i < 6; i++ {
		_, elapsed := advanceUntilChange(t, s)
		cycle += elapsed
	}
	minCycle := 2*timing.MinGreen + 2*timing.Amber + 2*timing.AllRed
	assert.GreaterOrEqual(t, cycle+1e-9, minCycle, "full cycle at least the configured minimum")

	mins := map[Phase]float64{
		PhaseNSGreen:  timing.MinGreen,
		PhaseNSAmber:  timing.Amber,
		PhaseAllRedNS: timing.AllRed,
		PhaseEWGreen:  timing.MinGreen,
		PhaseEWAmber:  timing.Amber,
		PhaseAllRedEW: timing.AllRed,
	}
	for p, m := range mins {
		assert.GreaterOrEqual(t, s.dwellFor(p)+1e-9, m, "phase %s dwell below minimum", p)
	}
}

func TestSignalAdaptiveGreenBoundedAndMonotonic(t *testing.T) {
	s := newTestSignal(t, false)
	timing := testTiming()

	s.ReportQueue(ApproachNS, 0)
	base := s.nextGreen[ApproachNS]
	assert.Equal(t, timing.MinGreen, base)

	s.ReportQueue(ApproachNS, 3)
	three := s.nextGreen[ApproachNS]
	s.ReportQueue(ApproachNS, 6)
	six := s.nextGreen[ApproachNS]
	assert.GreaterOrEqual(t, three, base)
	assert.GreaterOrEqual(t, six, three, "dwell monotonic in queue length")

	s.ReportQueue(ApproachNS, 1000)
	assert.Equal(t, timing.MaxGreen, s.nextGreen[ApproachNS], "clamped at max green")
}

func TestSignalPrincipalBonus(t *testing.T) {
	timing := testTiming()
	timing.PrincipalGreenBonus = 4
	s, err := NewTrafficSignal(&Node{ID: "P", Principal: true}, timing)
	require.NoError(t, err)
	s.ReportQueue(ApproachEW, 0)
	assert.Equal(t, timing.MinGreen+4, s.nextGreen[ApproachEW])
}

func TestRightOfWay(t *testing.T) {
	s := newTestSignal(t, false)

	// NS green.
	assert.True(t, s.RightOfWay(ApproachNS))
	assert.False(t, s.RightOfWay(ApproachEW))

	// Amber grants no one the right of way.
	p, _ := advanceUntilChange(t, s)
	require.Equal(t, PhaseNSAmber, p)
	assert.False(t, s.RightOfWay(ApproachNS))
	assert.False(t, s.RightOfWay(ApproachEW))

	// All-red likewise.
	p, _ = advanceUntilChange(t, s)
	require.Equal(t, PhaseAllRedNS, p)
	assert.False(t, s.RightOfWay(ApproachNS))
	assert.False(t, s.RightOfWay(ApproachEW))

	// Then the crossing group gets its turn.
	p, _ = advanceUntilChange(t, s)
	require.Equal(t, PhaseEWGreen, p)
	assert.True(t, s.RightOfWay(ApproachEW))
	assert.False(t, s.RightOfWay(ApproachNS))
}

func TestSignalRemaining(t *testing.T) {
	s := newTestSignal(t, false)
	full := s.Remaining()
	_, err := s.Advance(1)
	require.NoError(t, err)
	assert.InDelta(t, full-1, s.Remaining(), 1e-9)
}
