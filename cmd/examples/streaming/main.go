// Command streaming starts a profiling collector and feeds it synthetic
// /times and /sizes pings, demonstrating the channel-based pipeline that
// backs pkg/profiling.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	pglog "github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/profiling"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	model := markov.NewModel()
	collector := profiling.New(model, pglog.Default())
	if err := collector.Start(ctx, "127.0.0.1:0"); err != nil {
		fmt.Fprintf(os.Stderr, "start collector: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("profiling collector listening on %s\n", collector.Addr())

	ping(collector.Addr(), "/times", "L;0;start,-1#;1000")
	ping(collector.Addr(), "/times", "L;1;start,-1#;1200")
	ping(collector.Addr(), "/sizes", "L:4096")

	time.Sleep(200 * time.Millisecond)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), profiling.Quiescence)
	defer cancelShutdown()
	if err := collector.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown collector: %v\n", err)
		os.Exit(1)
	}

	durations := collector.Collect()
	fmt.Println("observed durations:")
	for lineage, ms := range durations {
		fmt.Printf("  %s: %.0fms\n", lineage, ms)
	}
	fmt.Printf("markov model: %s\n", model)
}

func ping(addr, path, data string) {
	u := "http://" + addr + path + "?data=" + url.QueryEscape(data)
	resp, err := http.Get(u)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ping %s: %v\n", path, err)
		return
	}
	resp.Body.Close()
}
