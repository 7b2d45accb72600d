package materialize

import (
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
)

// pruneUpstreamIfOrphaned recursively deletes id and then its producers,
// stopping as soon as a node is still referenced elsewhere. Ancestors
// shared with a branch outside the detached cone survive: a shared Load
// feeding two downstream operators must not disappear just because one of
// its consumers got cache-substituted.
func pruneUpstreamIfOrphaned(p *plan.Plan, id operator.NodeID) error {
	node, ok := p.Node(id)
	if !ok {
		return nil
	}
	for _, name := range node.Op.Outputs() {
		if pipe, ok := p.Pipe(name); ok && len(pipe.Consumers) > 0 {
			return nil
		}
	}
	producers := append([]operator.NodeID(nil), node.Op.Inputs()...)
	if err := p.PruneOrphan(id); err != nil {
		return err
	}
	for _, pid := range producers {
		if err := pruneUpstreamIfOrphaned(p, pid); err != nil {
			return err
		}
	}
	return nil
}

// LoadAlreadyCached is the first materialization pass, run before the
// rewrite engine: for
// every non-sink operator whose lineage signature is already in the
// catalogue, detach its transitive upstream cone and replace it with a
// Load reading the cached URI. Signatures are snapshotted up front (before
// any substitution), so a hit deep in the plan is evaluated against the
// same identity a second invocation would see, giving the
// load-cached ∘ load-cached = load-cached idempotence property: once a
// node becomes a freshly-built Load, its own recomputed lineage will not
// itself be a catalogue key, so nothing more fires on a second call.
func LoadAlreadyCached(p *plan.Plan, cat *Catalogue) (*plan.Plan, error) {
	sinks := make(map[operator.NodeID]bool)
	for _, id := range p.SinkNodes() {
		sinks[id] = true
	}

	type hit struct {
		id  operator.NodeID
		uri string
	}
	var hits []hit
	for _, n := range p.Nodes() {
		if sinks[n.ID] {
			continue
		}
		if uri, ok := cat.Lookup(n.Signature); ok {
			hits = append(hits, hit{id: n.ID, uri: uri})
		}
	}

	for _, h := range hits {
		node, ok := p.Node(h.id)
		if !ok {
			continue // already pruned as an ancestor of an earlier hit this pass
		}
		producers := append([]operator.NodeID(nil), node.Op.Inputs()...)
		load := operator.NewLoad("", h.uri, "CachedLoader", -1, node.Op.Schema())
		if _, err := p.Replace(h.id, load); err != nil {
			return p, err
		}
		for _, pid := range producers {
			if err := pruneUpstreamIfOrphaned(p, pid); err != nil {
				return p, err
			}
		}
	}
	return p, nil
}

// ApplyMaterializeHints resolves every user-placed Materialize marker:
// the marker's upstream operator gets
// an unconditional Store branch (bypassing the benefit/probability
// thresholds InsertNewMaterializations applies to its own candidates, since
// a Materialize hint is an explicit user request, not a profile-driven
// guess), the marker itself is spliced out as a no-op passthrough, and the
// new Store's path is recorded in the catalogue. Must run before
// InsertNewMaterializations so Materialize never reaches candidate scoring
// or emission (pkg/emit/render.go treats a surviving Materialize as a
// BackendError).
func ApplyMaterializeHints(p *plan.Plan, cat *Catalogue, matBaseDir string, createdAt metav1.Time) (*plan.Plan, error) {
	for {
		var hint operator.NodeID
		found := false
		for _, n := range p.Nodes() {
			if _, ok := n.Op.(*operator.Materialize); ok {
				hint, found = n.ID, true
				break
			}
		}
		if !found {
			return p, nil
		}

		node, _ := p.Node(hint)
		producers := node.Op.Inputs()
		if len(producers) != 1 {
			return p, plan.NewInvalidPlan("materialize: hint must be unary", hint)
		}
		producer := producers[0]
		producerNode, ok := p.Node(producer)
		if !ok {
			return p, plan.NewInvalidPlan("materialize: dangling producer", hint)
		}
		// Snapshot the signature before InsertAfter/Remove trigger a rebuild:
		// producerNode is a live pointer into the plan's arena, and while the
		// producer's own lineage is unaffected by downstream edits, capturing
		// plain strings up front keeps path and the catalogue key from ever
		// drifting apart.
		signature := producerNode.Signature
		path := filepath.Join(matBaseDir, signature)

		store := operator.NewStore("", path, "BinaryStorer")
		if _, err := p.InsertAfter(producer, store); err != nil {
			return p, err
		}
		if err := p.Remove(hint, false); err != nil {
			return p, err
		}
		cat.Put(signature, path, createdAt)
	}
}

// GlobalStrategy picks the final materialization set from the filtered
// candidate list.
type GlobalStrategy string

const (
	GreatestBenefit   GlobalStrategy = "GREATEST_BENEFIT"
	GreatestProb      GlobalStrategy = "GREATEST_PROB"
	Product           GlobalStrategy = "PRODUCT"
	AllAboveThreshold GlobalStrategy = "ALL_ABOVE_THRESHOLD"
)

// MaterializationPoint is a candidate operator for persistence.
type MaterializationPoint struct {
	Lineage string
	Cost    float64 // milliseconds, from markov.Model.TotalCost
	Prob    float64
	Bytes   int64
	Benefit float64 // milliseconds
}

// Config bundles the tunables the benefit formula and candidate selection
// need, sourced from compiler.Config (and ultimately the user's persisted
// config file, hence the JSON tags).
type Config struct {
	WriteThroughputMiBs float64             `json:"writeThroughputMiBs"`
	ReadThroughputMiBs  float64             `json:"readThroughputMiBs"`
	ProbStrategy        markov.ProbStrategy `json:"probStrategy"`
	CostStrategy        markov.CostStrategy `json:"costStrategy"`
	ProbThreshold       float64             `json:"probThreshold"`
	MinBenefit          float64             `json:"minBenefitMs"` // milliseconds
	Strategy            GlobalStrategy      `json:"strategy"`
	MatBaseDir          string              `json:"matBaseDir"`
	CacheMode           operator.CacheMode  `json:"cacheMode,omitempty"`
}

// candidateOperators enumerates every non-sink, non-source operator
// except TimingOp, in plan order. Sources are already cheap to recompute
// and sinks already persist, so neither is worth materializing.
func candidateOperators(p *plan.Plan) []operator.NodeID {
	sinks := make(map[operator.NodeID]bool)
	for _, id := range p.SinkNodes() {
		sinks[id] = true
	}
	sources := make(map[operator.NodeID]bool)
	for _, id := range p.SourceNodes() {
		sources[id] = true
	}
	var out []operator.NodeID
	for _, n := range p.Nodes() {
		if sinks[n.ID] || sources[n.ID] {
			continue
		}
		if _, isTiming := n.Op.(*operator.TimingOp); isTiming {
			continue
		}
		if _, isHint := n.Op.(*operator.Materialize); isHint {
			continue // ApplyMaterializeHints should already have removed these
		}
		out = append(out, n.ID)
	}
	return out
}

func benefit(cost float64, bytes int64, writeThroughputMiBs float64) float64 {
	if writeThroughputMiBs <= 0 {
		return cost
	}
	writeMs := (float64(bytes) / (1024 * 1024)) / writeThroughputMiBs * 1000
	return cost - writeMs
}

// InsertNewMaterializations is the second materialization pass, run after
// the rewrite engine reaches its fixed point: enumerate candidates, score
// each against the
// Markov model, filter, apply the configured GlobalStrategy, then splice a
// Store (and optional Cache) after every chosen operator and record it in
// the catalogue.
func InsertNewMaterializations(p *plan.Plan, model *markov.Model, cat *Catalogue, cfg Config, createdAt metav1.Time) (*plan.Plan, error) {
	var candidates []scoredCandidate
	for _, id := range candidateOperators(p) {
		node, ok := p.Node(id)
		if !ok {
			continue
		}
		cost, prob := model.TotalCost(node.Signature, cfg.ProbStrategy, cfg.CostStrategy)
		records := model.ResultRecords(node.Signature)
		bytesPerRecord := model.BytesPerRecord(node.Signature)
		bytes := int64(float64(records) * bytesPerRecord)
		b := benefit(cost, bytes, cfg.WriteThroughputMiBs)

		if b <= 0 || b < cfg.MinBenefit || prob < cfg.ProbThreshold {
			continue
		}
		candidates = append(candidates, scoredCandidate{id: id, point: MaterializationPoint{
			Lineage: node.Signature, Cost: cost, Prob: prob, Bytes: bytes, Benefit: b,
		}})
	}

	chosen := applyGlobalStrategy(candidates, cfg.Strategy, cfg.ProbThreshold)

	for _, c := range chosen {
		path := filepath.Join(cfg.MatBaseDir, c.point.Lineage)

		// Cache goes first and inline (a real alias, so InsertAfter reroutes
		// the operator's existing downstream consumers through it), sitting
		// between the operator and its downstream consumers. Store goes
		// second as a branch (empty alias => an additional consumer of the
		// operator's own pipe, untouched by the cache splice), so both read
		// the operator's original output.
		if cfg.CacheMode != "" {
			cache := operator.NewCache(c.point.Lineage+"$cache", "", cfg.CacheMode)
			if _, err := p.InsertAfter(c.id, cache); err != nil {
				return p, err
			}
		}
		store := operator.NewStore("", path, "BinaryStorer")
		if _, err := p.InsertAfter(c.id, store); err != nil {
			return p, err
		}
		cat.Put(c.point.Lineage, path, createdAt)
	}
	return p, nil
}

type scoredCandidate struct {
	id    operator.NodeID
	point MaterializationPoint
}

func applyGlobalStrategy(candidates []scoredCandidate, strategy GlobalStrategy, probThreshold float64) []scoredCandidate {
	if len(candidates) == 0 {
		return nil
	}
	switch strategy {
	case GreatestBenefit:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.point.Benefit > best.point.Benefit {
				best = c
			}
		}
		return []scoredCandidate{best}
	case GreatestProb:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.point.Prob > best.point.Prob {
				best = c
			}
		}
		return []scoredCandidate{best}
	case Product:
		best := candidates[0]
		bestScore := best.point.Benefit * best.point.Prob
		for _, c := range candidates[1:] {
			score := c.point.Benefit * c.point.Prob
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		return []scoredCandidate{best}
	default: // AllAboveThreshold
		var out []scoredCandidate
		for _, c := range candidates {
			if c.point.Prob >= probThreshold {
				out = append(out, c)
			}
		}
		return out
	}
}
