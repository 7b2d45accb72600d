// Package emit walks the final (rewritten, materialization-annotated)
// plan and renders backend-specific target code from parameterized
// per-operator templates. It is the last stage of compilation: the plan
// it receives is treated as immutable.
package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pigletlang/core/pkg/plan"
)

// Options configures one emission pass.
type Options struct {
	Backend   string
	Master    string
	Profiling bool
}

// Emitter renders a Plan into one backend source file.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

// Emit assembles: an imports header, the schema class declarations, every
// operator's rendered snippet in topological order, and a main wrapper
// that instantiates the execution context, installs the performance
// listener when profiling is enabled, and tears it down on exit.
func (e *Emitter) Emit(p *plan.Plan, opts Options) (string, error) {
	classes := newSchemaClassSet()
	var body []string
	helperSeen := make(map[string]bool)
	var helpers []string

	for _, n := range p.Nodes() {
		snip, err := renderOperator(p, n, classes, opts.Backend)
		if err != nil {
			return "", err
		}
		if snip.body != "" {
			body = append(body, snip.body)
		}
		if snip.helper != "" && !helperSeen[snip.helper] {
			helperSeen[snip.helper] = true
			helpers = append(helpers, snip.helper)
		}
	}

	var out strings.Builder
	out.WriteString(importsHeader(opts.Backend))
	out.WriteString("\n\n")

	if decls := classes.declarations(); len(decls) > 0 {
		out.WriteString(strings.Join(decls, "\n"))
		out.WriteString("\n\n")
	}

	if len(helpers) > 0 {
		sort.Strings(helpers) // deterministic output regardless of discovery order
		out.WriteString(strings.Join(helpers, "\n\n"))
		out.WriteString("\n\n")
	}

	out.WriteString(mainWrapperOpen(opts))
	for _, line := range body {
		out.WriteString("  ")
		out.WriteString(strings.ReplaceAll(line, "\n", "\n  "))
		out.WriteString("\n")
	}
	out.WriteString(mainWrapperClose(opts))

	return out.String(), nil
}

func importsHeader(backend string) string {
	switch backend {
	case "flinks":
		return "import org.apache.flink.streaming.api.scala._\nimport org.apache.flink.streaming.api.windowing.time.Time"
	default:
		return "import org.apache.spark.rdd.RDD\nimport org.apache.spark.storage.StorageLevel"
	}
}

func mainWrapperOpen(opts Options) string {
	ctxType := "SparkContext"
	if opts.Backend == "flinks" {
		ctxType = "StreamExecutionEnvironment"
	}
	var b strings.Builder
	b.WriteString("object CompiledJob {\n")
	b.WriteString(fmt.Sprintf("  def main(args: Array[String]): Unit = {\n    val ctx = %s.forMaster(%q)\n", ctxType, opts.Master))
	if opts.Profiling {
		b.WriteString("    val profiler = PerformanceListener.install(ctx)\n")
	}
	return b.String()
}

func mainWrapperClose(opts Options) string {
	var b strings.Builder
	if opts.Profiling {
		b.WriteString("    profiler.flush()\n")
	}
	b.WriteString("    ctx.stop()\n  }\n}\n")
	return b.String()
}
