package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/materialize"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.Equal(t, "spark", cfg.Backend)
	require.Equal(t, materialize.GreatestBenefit, cfg.Materialize.Strategy)
	require.Equal(t, 0.9, cfg.Materialize.ProbThreshold)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"backend":"flinks","profiling":true,"materialize":{"probThreshold":0.5,"strategy":"ALL_ABOVE_THRESHOLD"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "flinks", cfg.Backend)
	require.True(t, cfg.Profiling)
	require.Equal(t, 0.5, cfg.Materialize.ProbThreshold)
	require.Equal(t, materialize.AllAboveThreshold, cfg.Materialize.Strategy)
	// Fields the file doesn't name keep their defaults.
	require.Equal(t, "local[*]", cfg.Master)
}

func TestLoadConfigMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}
