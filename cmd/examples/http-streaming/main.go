// Command http-streaming runs a local HTTP listener standing in for an
// external webhook receiver, then compiles a small plan end to end and
// lets pkg/compiler notify that receiver on completion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	pglog "github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/client"
	"github.com/pigletlang/core/pkg/compiler"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/materialize"
	"github.com/pigletlang/core/pkg/operator"
	"github.com/pigletlang/core/pkg/schema"
)

func main() {
	received := make(chan client.Notification, 1)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n client.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received <- n
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	dir, err := os.MkdirTemp("", "piglet-http-streaming-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdtemp: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	matDir := filepath.Join(dir, "mat")
	cat := materialize.NewCatalogue(matDir)
	model := markov.NewModel()

	cc := compiler.New(compiler.Config{
		Name:    "http-streaming-demo",
		Backend: "spark",
		Master:  "local[*]",
		OutDir:  filepath.Join(dir, "out"),
		Materialize: materialize.Config{
			MatBaseDir: matDir,
		},
	}, model, cat, pglog.Default())
	cc.Notifier = client.New(client.Config{URL: webhook.URL})

	sch := schema.NewBag(schema.NewTuple(schema.Field{Name: "x", Type: schema.Int}))
	ops := []operator.Operator{
		operator.NewLoad("a", "events.txt", "PigStorage", -1, sch),
		operator.NewStore("a", filepath.Join(dir, "sink"), "PigStorage"),
	}

	artifact, err := cc.Compile(context.Background(), ops)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("compiled artifact %q written to %s\n", artifact.Name, artifact.Spec.OutDir)

	n := <-received
	fmt.Printf("webhook received notification for %q, phase=%s\n", n.Artifact, n.Status.Phase)
}
