// Package profiling implements the runtime profiling collector: a small
// HTTP server that receives /times and /sizes pings from a running
// backend job and folds them into a pkg/markov.Model. The ingestion path
// is a pkg/stream pipeline with a single consumer, so one worker
// goroutine is the only writer of the shared state.
package profiling

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/markov"
	"github.com/pigletlang/core/pkg/stream"
	"github.com/pigletlang/core/pkg/stream/source"
)

// Quiescence is the window the collector waits, after it stops accepting
// new connections, before it drains the last in-flight messages and
// returns.
const Quiescence = 3 * time.Second

// queueDepth bounds the MPSC buffer between the HTTP handlers and the
// single fold-worker; handlers enqueue and return immediately.
const queueDepth = 1024

// Envelope is the one message type pushed through the internal pipeline;
// exactly one of Time or Sizes is populated.
type Envelope struct {
	Time  *TimeMessage
	Sizes []SizeMessage
}

type partitionKey struct {
	lineage   string
	partition int
}

type timeRecord struct {
	millis  int64
	parents []ParentRef
}

// Collector is the single-process profiling endpoint. Its worker
// goroutine is the sole writer of currentTimes and the sole caller into
// model; handlers never touch either directly.
type Collector struct {
	model  *markov.Model
	logger *log.Logger

	in chan Envelope

	mu           sync.Mutex
	currentTimes map[partitionKey]timeRecord

	server   *http.Server
	listener net.Listener
	runErr   chan error

	bootstrapOnce sync.Once
}

// New returns a Collector that folds observations into model.
func New(model *markov.Model, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		model:        model,
		logger:       logger,
		in:           make(chan Envelope, queueDepth),
		currentTimes: make(map[partitionKey]timeRecord),
		runErr:       make(chan error, 1),
	}
}

// sink folds decoded envelopes into the collector's state. It is the
// single consumer of the stream.Pipeline driving this collector, so there
// is exactly one worker goroutine.
type sink struct{ c *Collector }

func (s *sink) Write(_ context.Context, msg stream.Message[Envelope]) error {
	env := msg.Value
	if env.Time != nil {
		s.c.foldTime(*env.Time)
	}
	for _, sz := range env.Sizes {
		s.c.model.UpdateBytes(sz.Lineage, sz.Bytes)
	}
	return nil
}

func (s *sink) Close() error { return nil }

func (c *Collector) foldTime(msg TimeMessage) {
	// One collector lifetime covers one executed job, so the run counter
	// and the sparkcontext->start bootstrap edge advance exactly once no
	// matter how many partitions report in.
	c.bootstrapOnce.Do(c.model.BeginRun)
	for _, parent := range msg.Parents {
		c.model.Add(parent.Lineage, msg.Lineage)
	}

	key := partitionKey{lineage: msg.Lineage, partition: msg.PartitionID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.currentTimes[key]; exists {
		c.logger.Warnf("duplicate time message for (%s, %d), discarding", msg.Lineage, msg.PartitionID)
		return
	}
	c.currentTimes[key] = timeRecord{millis: msg.TimeMillis, parents: msg.Parents}
}

// Start binds addr and begins serving /times and /sizes, backed by a
// stream.Pipeline draining into this collector's single fold-worker.
func (c *Collector) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return wrap("listen", err)
	}
	c.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/times", c.handleTimes)
	mux.HandleFunc("/sizes", c.handleSizes)
	c.server = &http.Server{Handler: mux}

	pipeline := stream.New[Envelope]("profiling-collector", source.NewChannel(c.in)).
		WithBufferSize(queueDepth).
		Filter(func(e Envelope) bool { return e.Time != nil || len(e.Sizes) > 0 }).
		To(&sink{c: c})

	go func() { c.runErr <- pipeline.Run(ctx) }()
	go func() {
		if err := c.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Degrade("profiling collector serve", err)
		}
	}()

	return nil
}

func (c *Collector) handleTimes(w http.ResponseWriter, r *http.Request) {
	msg, err := parseTimeMessage(r.URL.Query().Get("data"))
	if err != nil {
		c.logger.Degrade("decode /times payload", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c.enqueue(w, Envelope{Time: &msg})
}

func (c *Collector) handleSizes(w http.ResponseWriter, r *http.Request) {
	msgs, err := parseSizeMessages(r.URL.Query().Get("data"))
	if err != nil {
		c.logger.Degrade("decode /sizes payload", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c.enqueue(w, Envelope{Sizes: msgs})
}

// enqueue responds 200 "ok" immediately, before the message is actually
// folded; the wire contract is fire-and-forget.
func (c *Collector) enqueue(w http.ResponseWriter, env Envelope) {
	select {
	case c.in <- env:
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	default:
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}
}

// Addr returns the collector's bound listen address, useful once Start
// was called with a ":0" port.
func (c *Collector) Addr() string {
	return c.listener.Addr().String()
}

// Shutdown stops accepting new connections, honors the quiescence window,
// then closes the internal channel and waits for the fold-worker to drain.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, Quiescence)
	defer cancel()
	err := c.server.Shutdown(shutdownCtx)

	select {
	case <-time.After(Quiescence):
	case <-ctx.Done():
	}

	close(c.in)
	pipelineErr := <-c.runErr
	if err == nil {
		err = pipelineErr
	}
	return wrap("shutdown", err)
}

// Collect walks every recorded partition and computes each operator's
// effective duration as time - max(parentTimes) (the latest parent wins,
// modeling barrier semantics), folding the result into the Markov cost
// statistics. Returns the
// per-lineage durations observed, for callers that want to log a summary.
func (c *Collector) Collect() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	durations := make(map[string]float64)
	for key, rec := range c.currentTimes {
		var maxParent int64
		for _, parent := range rec.parents {
			for _, pid := range parent.PartitionIDs {
				if pt, ok := c.currentTimes[partitionKey{lineage: parent.Lineage, partition: pid}]; ok {
					if pt.millis > maxParent {
						maxParent = pt.millis
					}
				}
			}
		}
		duration := float64(rec.millis - maxParent)
		c.model.UpdateCost(key.lineage, duration)
		durations[key.lineage] = duration
	}
	return durations
}
