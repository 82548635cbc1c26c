package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadTuning(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dt", func(c *Config) { c.DT = 0 }},
		{"zero max vehicles", func(c *Config) { c.MaxVehicles = 0 }},
		{"gap wider than slot", func(c *Config) { c.MinGap = c.SlotLength + 1 }},
		{"tick outruns gap", func(c *Config) { c.DT = 1 }},
		{"inverted spawn interval", func(c *Config) { c.SpawnIntervalMax = c.SpawnIntervalMin / 2 }},
		{"inverted dwell", func(c *Config) { c.MinibusDwellMax = c.MinibusDwellMin / 2 }},
		{"amber too short", func(c *Config) { c.Signals.Amber = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrBadConfig)
		})
	}
}

func TestWindowForCoversTheClock(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "morning", cfg.WindowFor(6).Name)
	assert.Equal(t, "morning", cfg.WindowFor(11.99).Name)
	assert.Equal(t, "afternoon", cfg.WindowFor(12).Name)
	assert.Equal(t, "evening", cfg.WindowFor(20).Name)
	assert.Equal(t, "night", cfg.WindowFor(23).Name)
	assert.Equal(t, "night", cfg.WindowFor(2).Name, "night wraps past midnight")
}

func TestSpawnWindowContains(t *testing.T) {
	w := SpawnWindow{From: 22, To: 6}
	assert.True(t, w.Contains(23))
	assert.True(t, w.Contains(0))
	assert.True(t, w.Contains(5.5))
	assert.False(t, w.Contains(6))
	assert.False(t, w.Contains(12))
}
