// Package markov implements the operator-transition cost model: a
// directed multigraph over lineage signatures plus the synthetic "start"
// and "end" endpoints, recording visit counts and running cost/size
// statistics folded in by pkg/profiling after every execution.
package markov

import (
	"fmt"
	"sync"
)

// Start and End are the synthetic endpoints every path begins/ends at.
// Bootstrap is the node the runtime's fixed startup overhead is attributed
// to; BeginRun adds the bootstrap edge Bootstrap -> Start once per run.
const (
	Start     = "start"
	End       = "end"
	Bootstrap = "sparkcontext"
)

// MaxPathsPerQuery bounds the simple-path enumeration TotalCost performs:
// exhaustive enumeration is exponential in general graphs, and past this
// ceiling TotalCost stops collecting further paths rather than hanging on
// a pathological transition history. No profiled plan graph comes close
// to the ceiling.
const MaxPathsPerQuery = 10000

// Stat is a running {sum, count, min, max} summary, from which avg derives.
type Stat struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (s *Stat) update(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Sum += v
	s.Count++
}

// Avg returns the running average, or 0 if no observations were folded in.
func (s Stat) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// NodeStat is one node's persisted statistics.
type NodeStat struct {
	VisitCount     int64   `json:"visitCount"`
	CostMs         Stat    `json:"costMs"`
	InputSize      int64   `json:"inputSize,omitempty"`
	OutputRecords  int64   `json:"outputRecords,omitempty"`
	BytesPerRecord float64 `json:"bytesPerRecord,omitempty"`
}

// Edge is one transition u -> v with its observed count.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
}

// ProbStrategy combines parallel paths' probabilities.
type ProbStrategy string

const (
	ProbMin     ProbStrategy = "MIN"
	ProbMax     ProbStrategy = "MAX"
	ProbAvg     ProbStrategy = "AVG"
	ProbProduct ProbStrategy = "PRODUCT"
)

// CostStrategy picks one cost out of the costs of several parallel paths
// (each path's cost is the sum of its nodes' average costs).
type CostStrategy string

const (
	CostMin CostStrategy = "MIN"
	CostMax CostStrategy = "MAX"
)

// Model is the directed multigraph described above. Safe for concurrent
// use: pkg/profiling's single worker goroutine is the only writer while
// pkg/materialize's candidate-selection pass reads it, but both can run
// against the same *Model across compilations.
type Model struct {
	mu        sync.RWMutex
	nodes     map[string]*NodeStat
	edges     map[string]map[string]int64 // from -> to -> count
	totalRuns int64
}

// NewModel returns an empty model with the two synthetic endpoints present.
func NewModel() *Model {
	m := &Model{
		nodes: make(map[string]*NodeStat),
		edges: make(map[string]map[string]int64),
	}
	m.nodes[Start] = &NodeStat{}
	m.nodes[End] = &NodeStat{}
	return m
}

func (m *Model) ensureNode(v string) *NodeStat {
	n, ok := m.nodes[v]
	if !ok {
		n = &NodeStat{}
		m.nodes[v] = n
	}
	return n
}

// Add increments the edge count u->v and v's visit count.
func (m *Model) Add(u, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(u, v)
}

func (m *Model) addLocked(u, v string) {
	m.ensureNode(u)
	m.ensureNode(v).VisitCount++
	if m.edges[u] == nil {
		m.edges[u] = make(map[string]int64)
	}
	m.edges[u][v]++
}

// BeginRun records the start of one compilation run: totalRuns increments
// once, together with the bootstrap edge Bootstrap -> Start covering the
// runtime's fixed startup overhead. Doing both in one step is what keeps
// the invariant totalRuns == visitCount(start).
func (m *Model) BeginRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(Bootstrap, Start)
	m.totalRuns++
}

// UpdateCost folds a duration observation (milliseconds) into v's cost stat.
func (m *Model) UpdateCost(v string, durationMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNode(v).CostMs.update(durationMs)
}

// UpdateSize records v's output size statistics.
func (m *Model) UpdateSize(v string, records int64, bytesPerRecord float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.ensureNode(v)
	n.OutputRecords = records
	n.BytesPerRecord = bytesPerRecord
}

// UpdateBytes folds a /sizes observation into v's input size. The
// wire message carries one total-bytes figure per lineage per partition,
// with no independent record count, so each observation is treated as a
// single-record sample: it both accumulates InputSize and refreshes the
// OutputRecords/BytesPerRecord pair InsertNewMaterializations reads.
func (m *Model) UpdateBytes(v string, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.ensureNode(v)
	n.InputSize += totalBytes
	n.OutputRecords++
	n.BytesPerRecord = float64(n.InputSize) / float64(n.OutputRecords)
}

// Parents returns every node with an edge into v.
func (m *Model) Parents(v string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for u, dests := range m.edges {
		if _, ok := dests[v]; ok {
			out = append(out, u)
		}
	}
	return out
}

// InputSize, ResultRecords, and BytesPerRecord are the accessors the
// materialization planner reads candidate statistics through.
func (m *Model) InputSize(v string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[v]; ok {
		return n.InputSize
	}
	return 0
}

func (m *Model) ResultRecords(v string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[v]; ok {
		return n.OutputRecords
	}
	return 0
}

func (m *Model) BytesPerRecord(v string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[v]; ok {
		return n.BytesPerRecord
	}
	return 0
}

// TotalRuns is the number of times start has been visited.
func (m *Model) TotalRuns() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRuns
}

type path struct {
	nodes []string
	prob  float64
	cost  float64
}

// TotalCost enumerates every simple path start ⇝ v, combines each path's
// edge probabilities (relative to the source node's total outgoing count)
// into a path probability and sums the average costs of the path's nodes
// into a path cost, then aggregates probabilities across parallel paths via
// probAgg and costs via costFold. Returns (expectedCost, pathProbability).
func (m *Model) TotalCost(v string, probAgg ProbStrategy, costFold CostStrategy) (float64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := m.enumeratePaths(v)
	if len(paths) == 0 {
		return 0, 0
	}

	probs := make([]float64, len(paths))
	costs := make([]float64, len(paths))
	for i, p := range paths {
		probs[i] = p.prob
		costs[i] = p.cost
	}

	prob := combineProb(probs, probAgg)
	cost := foldCost(costs, costFold)
	return cost, prob
}

// enumeratePaths walks every simple path from Start to v, bounded by
// MaxPathsPerQuery: once the ceiling is hit the walk stops collecting, so
// the result is "the first MaxPathsPerQuery real paths" rather than every
// path. Aggregations over a truncated set are still built from real
// observed paths, just not exhaustive ones.
func (m *Model) enumeratePaths(v string) []path {
	var out []path
	var walk func(cur string, visited map[string]bool, acc []string, prob, cost float64)
	walk = func(cur string, visited map[string]bool, acc []string, prob, cost float64) {
		if len(out) >= MaxPathsPerQuery {
			return
		}
		acc = append(acc, cur)
		if cur == v && len(acc) > 1 {
			out = append(out, path{nodes: append([]string(nil), acc...), prob: prob, cost: cost})
			return
		}
		total := int64(0)
		for _, c := range m.edges[cur] {
			total += c
		}
		if total == 0 {
			return
		}
		visited[cur] = true
		for next, c := range m.edges[cur] {
			if visited[next] {
				continue // simple paths only
			}
			edgeProb := float64(c) / float64(total)
			nodeCost := m.nodes[next].CostMs.Avg()
			walk(next, visited, acc, prob*edgeProb, cost+nodeCost)
			if len(out) >= MaxPathsPerQuery {
				break
			}
		}
		delete(visited, cur)
	}
	walk(Start, map[string]bool{}, nil, 1.0, 0)
	return out
}

func combineProb(probs []float64, strategy ProbStrategy) float64 {
	if len(probs) == 0 {
		return 0
	}
	switch strategy {
	case ProbMin:
		v := probs[0]
		for _, p := range probs[1:] {
			if p < v {
				v = p
			}
		}
		return v
	case ProbMax:
		v := probs[0]
		for _, p := range probs[1:] {
			if p > v {
				v = p
			}
		}
		return v
	case ProbProduct:
		v := 1.0
		for _, p := range probs {
			v *= p
		}
		return v
	default: // ProbAvg
		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		return sum / float64(len(probs))
	}
}

func foldCost(costs []float64, strategy CostStrategy) float64 {
	if len(costs) == 0 {
		return 0
	}
	v := costs[0]
	for _, c := range costs[1:] {
		switch strategy {
		case CostMax:
			if c > v {
				v = c
			}
		default: // CostMin
			if c < v {
				v = c
			}
		}
	}
	return v
}

// Merge folds other's nodes and edges into m, summing visit/edge counts and
// combining cost/size stats. Used by tests reconstructing a model from two
// partial profiling runs.
func (m *Model) Merge(other *Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for v, n := range other.nodes {
		dest := m.ensureNode(v)
		dest.VisitCount += n.VisitCount
		if n.CostMs.Count > 0 {
			dest.CostMs.Sum += n.CostMs.Sum
			dest.CostMs.Count += n.CostMs.Count
			if dest.CostMs.Min == 0 || n.CostMs.Min < dest.CostMs.Min {
				dest.CostMs.Min = n.CostMs.Min
			}
			if n.CostMs.Max > dest.CostMs.Max {
				dest.CostMs.Max = n.CostMs.Max
			}
		}
		if n.OutputRecords > 0 {
			dest.OutputRecords = n.OutputRecords
			dest.BytesPerRecord = n.BytesPerRecord
		}
		if n.InputSize > 0 {
			dest.InputSize = n.InputSize
		}
	}
	for u, dests := range other.edges {
		if m.edges[u] == nil {
			m.edges[u] = make(map[string]int64)
		}
		for v, c := range dests {
			m.edges[u][v] += c
		}
	}
	m.totalRuns += other.totalRuns
}

func (m *Model) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("markov.Model{nodes=%d, totalRuns=%d}", len(m.nodes), m.totalRuns)
}
