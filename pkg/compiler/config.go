package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/materialize"
)

// DefaultConfigPath is ~/.piglet/config.json, next to the profiling
// snapshot in the same persisted-state directory.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".piglet", "config.json"), nil
}

// DefaultConfig returns the configuration a compilation runs with when no
// config file overrides it.
func DefaultConfig() Config {
	return Config{
		Backend: "spark",
		Master:  "local[*]",
		Materialize: materialize.Config{
			WriteThroughputMiBs: 100,
			ReadThroughputMiBs:  150,
			ProbStrategy:        markov.ProbAvg,
			CostStrategy:        markov.CostMax,
			ProbThreshold:       0.9,
			MinBenefit:          1000,
			Strategy:            materialize.GreatestBenefit,
		},
	}
}

// LoadConfig reads a Config from path, layered over DefaultConfig so a
// partial file only overrides the fields it names. A missing file returns
// the defaults unchanged; a malformed one is an error (the user asked for
// specific settings and silently ignoring them would be worse than failing).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
