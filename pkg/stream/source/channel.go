package source

import (
	"context"

	"github.com/pigletlang/core/pkg/stream"
)

// ChannelSource adapts a plain Go channel into a pipeline source: the
// producing side (e.g. the profiling collector's HTTP handlers) pushes raw
// values in, and the pipeline's single consumer drains them as messages.
// Closing the channel ends the stream, which is how the collector's
// shutdown path tells its fold-worker to finish.
type ChannelSource[T any] struct {
	in chan T
}

// NewChannel wraps an existing channel; the caller keeps the sending end.
func NewChannel[T any](in chan T) *ChannelSource[T] {
	return &ChannelSource[T]{in: in}
}

// Stream wraps each received value in a pipeline message until the channel
// closes or the context is cancelled.
func (c *ChannelSource[T]) Stream(ctx context.Context) (<-chan stream.Message[T], error) {
	out := make(chan stream.Message[T], 100)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case val, ok := <-c.in:
				if !ok {
					return
				}
				msg := stream.Message[T]{
					Value:    val,
					Metadata: make(map[string]string),
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op: the sending side owns the channel's lifecycle.
func (c *ChannelSource[T]) Close() error {
	return nil
}
