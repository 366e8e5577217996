package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/types"
)

func TestParseEmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
server:
  base_url: https://workflows.internal
polling:
  interval: 500ms
layout:
  node_width: 200
  v_gap: 40
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "https://workflows.internal", cfg.Server.BaseURL)
	assert.Equal(t, Default().Server.Timeout, cfg.Server.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval)
	assert.Equal(t, 3, cfg.Polling.TerminalThreshold)
	assert.Equal(t, 200.0, cfg.Layout.NodeWidth)
	assert.Equal(t, 80.0, cfg.Layout.NodeHeight)
	assert.Equal(t, 40.0, cfg.Layout.VGap)
	assert.Equal(t, 30.0, cfg.Layout.HGap)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "server: [unclosed"},
		{"negative threshold", "polling:\n  terminal_threshold: -2\n"},
		{"negative interval", "polling:\n  interval: -1s\n"},
		{"negative gap", "layout:\n  h_gap: -5\n"},
		{"unknown level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flowscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  terminal_threshold: 5\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Polling.TerminalThreshold)
	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOptionsApply(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte("layout:\n  node_width: 100\n  padding: 5\n"))
	require.NoError(t, err)

	var nodes types.NodeSet
	nodes.Add("a", types.Node{Type: types.NodeTrigger})
	nodes.Add("b", types.Node{Type: types.NodeSendEmail})
	l := graph.Compute(nodes, []types.Edge{{From: "a", To: "b"}}, cfg.LayoutOptions()...)
	assert.Equal(t, 100.0, l.Geometry.NodeWidth)
	assert.Equal(t, 80.0, l.Geometry.NodeHeight)
	// one node per level: the box plus padding on both sides
	assert.Equal(t, 110.0, l.Bounds.Width)
	assert.Len(t, cfg.ClientOptions(), 1)
	assert.Len(t, cfg.PollerOptions(), 2)
}
