package markov

import (
	"fmt"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Snapshot is the on-disk JSON document persisted to
// ~/.piglet/profiling.json, serialized via sigs.k8s.io/yaml exactly as
// pkg/materialize's catalogue.
type Snapshot struct {
	Nodes     map[string]NodeStat `json:"nodes"`
	Edges     []Edge              `json:"edges"`
	TotalRuns int64               `json:"totalRuns"`
	SavedAt   metav1.Time         `json:"savedAt"`
}

// ToSnapshot captures m's current state as a Snapshot.
func (m *Model) ToSnapshot(savedAt metav1.Time) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make(map[string]NodeStat, len(m.nodes))
	for v, n := range m.nodes {
		nodes[v] = *n
	}
	var edges []Edge
	for u, dests := range m.edges {
		for v, c := range dests {
			edges = append(edges, Edge{From: u, To: v, Count: c})
		}
	}
	return Snapshot{Nodes: nodes, Edges: edges, TotalRuns: m.totalRuns, SavedAt: savedAt}
}

// FromSnapshot rebuilds a Model from a previously saved Snapshot.
func FromSnapshot(s Snapshot) *Model {
	m := NewModel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, n := range s.Nodes {
		cp := n
		m.nodes[v] = &cp
	}
	for _, e := range s.Edges {
		if m.edges[e.From] == nil {
			m.edges[e.From] = make(map[string]int64)
		}
		m.edges[e.From][e.To] = e.Count
	}
	m.totalRuns = s.TotalRuns
	return m
}

// DefaultProfilingPath is ~/.piglet/profiling.json, next to the user's
// config file in the same persisted-state directory.
func DefaultProfilingPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".piglet", "profiling.json"), nil
}

// Save writes m's snapshot to path atomically (temp file + os.Rename),
// matching pkg/materialize.Catalogue.Save, so a crash mid-write never
// leaves a half-written snapshot behind.
func (m *Model) Save(path string, savedAt metav1.Time) error {
	data, err := yaml.Marshal(m.ToSnapshot(savedAt))
	if err != nil {
		return fmt.Errorf("marshal profiling snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create profiling dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profiling-*.tmp")
	if err != nil {
		return fmt.Errorf("create profiling temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write profiling temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close profiling temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename profiling temp file: %w", err)
	}
	return nil
}

// LoadModel reads a Snapshot from path and rebuilds a Model from it. A
// missing file returns a fresh empty model, not an error: the first
// compilation on a machine has no prior profiling history.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewModel(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiling snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal profiling snapshot: %w", err)
	}
	return FromSnapshot(snap), nil
}
