package stream_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/stream"
	"github.com/pigletlang/core/pkg/stream/source"
)

// timingPing mirrors the shape the profiling collector pushes through its
// pipeline: a lineage signature plus an observed duration, where a zero
// lineage marks a ping that decoded to nothing and must be dropped.
type timingPing struct {
	Lineage string
	Millis  int64
}

// foldSink accumulates the total observed milliseconds per lineage, the
// way the collector's sink folds observations into the Markov model.
type foldSink struct {
	mu     sync.Mutex
	totals map[string]int64
}

func (s *foldSink) Write(_ context.Context, msg stream.Message[timingPing]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[msg.Value.Lineage] += msg.Value.Millis
	return nil
}

func (s *foldSink) Close() error { return nil }

func TestPipelineDropsEmptyPingsAndFoldsTheRest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := make(chan timingPing, 10)
	go func() {
		in <- timingPing{Lineage: "L1", Millis: 100}
		in <- timingPing{} // decoded to nothing, filtered out
		in <- timingPing{Lineage: "L1", Millis: 150}
		in <- timingPing{Lineage: "L2", Millis: 40}
		close(in)
	}()

	sink := &foldSink{totals: make(map[string]int64)}
	pipeline := stream.New[timingPing]("timing-fold", source.NewChannel(in)).
		Filter(func(p timingPing) bool { return p.Lineage != "" }).
		Map(func(p timingPing) timingPing {
			p.Millis = p.Millis / 10 * 10 // clamp to the collector's ms granularity
			return p
		}).
		To(sink)

	require.NoError(t, pipeline.Run(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, map[string]int64{"L1": 250, "L2": 40}, sink.totals)
}

func TestPipelineRequiresSink(t *testing.T) {
	in := make(chan timingPing)
	close(in)
	pipeline := stream.New[timingPing]("no-sink", source.NewChannel(in))
	require.Error(t, pipeline.Run(context.Background()))
}
