// Package compiler threads the whole compilation pipeline end to end:
// plan construction, cache loading, rewriting to a fixed point,
// materialization insertion, and emission. There are no package-level
// singletons; every collaborator lives on an explicit CompilerContext
// built once and passed by reference.
package compiler

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/client"
	"github.com/pigletlang/core/pkg/emit"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/materialize"
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/plan"
	"github.com/pigletlang/core/pkg/rewrite"
)

// Config bundles every per-compilation tunable. Backend selects the
// emitted target language's flavor ("spark" or "flinks", matching
// pkg/rewrite's backend-string convention).
type Config struct {
	Name         string             `json:"name,omitempty"`
	Backend      string             `json:"backend"`
	Master       string             `json:"master,omitempty"`
	OutDir       string             `json:"outDir,omitempty"`
	Profiling    bool               `json:"profiling"`
	ProfilingURL string             `json:"profilingURL,omitempty"` // collector base URL handed to the emitted job
	NotifyURL    string             `json:"notifyURL,omitempty"`    // end-of-run webhook, empty disables it
	Params       map[string]string  `json:"params,omitempty"`
	Materialize  materialize.Config `json:"materialize"`
}

// CompilerContext holds every collaborator a compilation needs, built
// once by the caller (typically a CLI entry point, external to this
// module) and passed by reference into Compile.
type CompilerContext struct {
	Config    Config
	Logger    *log.Logger
	Markov    *markov.Model
	Catalogue *materialize.Catalogue
	Registry  *rewrite.Registry
	Notifier  *client.NotifyClient // nil disables the end-of-run webhook
	FS        FileSystem           // defaults to OSFS
}

// New constructs a CompilerContext with the default rule registry already
// populated. Callers needing different rule sets can build their own
// Registry instead.
func New(cfg Config, markovModel *markov.Model, catalogue *materialize.Catalogue, logger *log.Logger) *CompilerContext {
	if logger == nil {
		logger = log.Default()
	}
	reg := rewrite.NewRegistry(64)
	reg.Register("filter-merge", rewrite.FilterMerge)
	reg.Register("predicate-pushdown", rewrite.PredicatePushdown)
	reg.RegisterBackend("flinks", "window-rewrite", rewrite.WindowRewrite)
	if cfg.Profiling {
		// Opt-in: only wrap pipes with TimingOp when this compilation's
		// profiling flag is set, so a non-profiled run emits no timing
		// shims.
		reg.Register("timing-instrument", rewrite.TimingInstrument)
	}

	cc := &CompilerContext{
		Config:    cfg,
		Logger:    logger,
		Markov:    markovModel,
		Catalogue: catalogue,
		Registry:  reg,
		FS:        OSFS{},
	}
	if cfg.NotifyURL != "" {
		cc.Notifier = client.New(client.Config{URL: cfg.NotifyURL})
	}
	return cc
}

// stampLoads fixes each Load's lastModified lineage component before plan
// construction: the input file's mtime when profiling is on, so an edited
// file produces a different signature and therefore a cache miss; -1 when
// profiling is off. An unreadable file degrades to -1 rather than aborting.
func (cc *CompilerContext) stampLoads(ops []operator.Operator) {
	fs := cc.FS
	if fs == nil {
		fs = OSFS{}
	}
	for _, op := range ops {
		load, ok := op.(*operator.Load)
		if !ok {
			continue
		}
		if !cc.Config.Profiling {
			load.LastModified = -1
			continue
		}
		mtime, err := fs.LastModified(load.File)
		if err != nil {
			cc.Logger.Degrade("stat load input "+load.File, err)
			load.LastModified = -1
			continue
		}
		load.LastModified = mtime
	}
}

// Compile runs the full pipeline over ops: construct plan, load
// already-cached subtrees, rewrite to a fixed point, insert new
// materializations, emit, and persist the manifest. Compilation aborts on
// the first InvalidPlan/SchemaError; materialization, profiling, and
// notification failures degrade instead (logged, then ignored).
func (cc *CompilerContext) Compile(ctx context.Context, ops []operator.Operator) (*emit.CompiledArtifact, error) {
	cc.stampLoads(ops)

	p, err := plan.New(ops)
	if err != nil {
		return nil, log.FatalOrWrap("construct plan", err)
	}

	now := metav1.NewTime(timeNow())

	if cc.Catalogue != nil {
		if fs := cc.FS; fs != nil {
			for _, miss := range cc.Catalogue.Prune(fs.Exists) {
				cc.Logger.Degrade("cache catalogue hygiene", miss)
			}
		}
		if cached, err := materialize.LoadAlreadyCached(p, cc.Catalogue); err != nil {
			cc.Logger.Degrade("load cached materializations", err)
		} else {
			p = cached
		}
	}

	if cc.Registry != nil {
		rewritten, err := cc.Registry.Rewrite(p, cc.Config.Backend)
		if err != nil {
			return nil, log.FatalOrWrap("rewrite plan", err)
		}
		p = rewritten
	}

	if cc.Catalogue != nil {
		hinted, err := materialize.ApplyMaterializeHints(p, cc.Catalogue, cc.Config.Materialize.MatBaseDir, now)
		if err != nil {
			return nil, log.FatalOrWrap("apply materialize hints", err)
		}
		p = hinted
	}

	if cc.Markov != nil && cc.Catalogue != nil {
		if withMats, err := materialize.InsertNewMaterializations(p, cc.Markov, cc.Catalogue, cc.Config.Materialize, now); err != nil {
			cc.Logger.Degrade("insert materializations", err)
		} else {
			p = withMats
		}
	}

	if err := p.CheckConsistency(); err != nil {
		return nil, log.FatalOrWrap("check consistency", err)
	}
	if err := p.CheckSchemaConformance(); err != nil {
		return nil, log.FatalOrWrap("check schema conformance", err)
	}

	source, err := emit.NewEmitter().Emit(p, emit.Options{
		Backend:   cc.Config.Backend,
		Master:    cc.Config.Master,
		Profiling: cc.Config.Profiling,
	})
	if err != nil {
		return nil, log.FatalOrWrap("emit", err)
	}

	artifact := emit.NewArtifact(cc.Config.Name, emit.ArtifactSpec{
		Backend:        cc.Config.Backend,
		Master:         cc.Config.Master,
		OutDir:         cc.Config.OutDir,
		Params:         cc.Config.Params,
		Profiling:      cc.Config.Profiling,
		AdditionalJars: p.AdditionalJars(),
	})
	if _, err := artifact.WriteManifest(cc.Config.OutDir, source); err != nil {
		return nil, log.FatalOrWrap("write manifest", err)
	}

	if cc.Catalogue != nil {
		cc.Logger.DegradeOrIgnore("save catalogue", cc.Catalogue.Save())
	}
	if cc.Markov != nil {
		if path, err := markov.DefaultProfilingPath(); err == nil {
			cc.Logger.DegradeOrIgnore("save profiling snapshot", cc.Markov.Save(path, now))
		}
	}

	if cc.Notifier != nil {
		artifact.Status = emit.ArtifactStatus{Phase: "Succeeded", FinishedAt: now}
		if err := cc.Notifier.Notify(ctx, client.Notification{
			Artifact: artifact.Name,
			Status:   artifact.Status,
		}); err != nil {
			cc.Logger.Degrade("notify webhook", err)
		}
	}

	return artifact, nil
}

// timeNow is a thin indirection so tests can pin the artifact's
// timestamp without depending on wall-clock time.
var timeNow = func() time.Time { return time.Now() }
