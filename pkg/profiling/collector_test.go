package profiling

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/internal/log"
	"github.com/pigletlang/core/pkg/markov"
)

func startTestCollector(t *testing.T) (*Collector, *markov.Model) {
	t.Helper()
	model := markov.NewModel()
	c := New(model, log.Default())
	require.NoError(t, c.Start(context.Background(), "127.0.0.1:0"))
	return c, model
}

func get(t *testing.T, c *Collector, path, data string) *http.Response {
	t.Helper()
	u := "http://" + c.Addr() + path + "?data=" + url.QueryEscape(data)
	resp, err := http.Get(u)
	require.NoError(t, err)
	return resp
}

func TestCollectorFoldsTimesAndComputesDuration(t *testing.T) {
	c, model := startTestCollector(t)

	resp := get(t, c, "/times", "L;0;start,-1#;1000")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.currentTimes[partitionKey{lineage: "L", partition: 0}]
		return ok
	}, time.Second, 5*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))

	durations := c.Collect()
	require.Equal(t, float64(1000), durations["L"])

	cost, _ := model.TotalCost("L", markov.ProbAvg, markov.CostMin)
	require.Equal(t, float64(1000), cost)
}

func TestCollectorDuplicateTimeIsDiscarded(t *testing.T) {
	c, _ := startTestCollector(t)

	get(t, c, "/times", "L;0;start,-1#;1000").Body.Close()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.currentTimes) == 1
	}, time.Second, 5*time.Millisecond)

	get(t, c, "/times", "L;0;start,-1#;9999").Body.Close()
	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	rec := c.currentTimes[partitionKey{lineage: "L", partition: 0}]
	c.mu.Unlock()
	require.Equal(t, int64(1000), rec.millis)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
}

func TestCollectorFoldsSizesIntoModel(t *testing.T) {
	c, model := startTestCollector(t)

	get(t, c, "/sizes", "L:2048").Body.Close()
	require.Eventually(t, func() bool {
		return model.InputSize("L") == 2048
	}, time.Second, 5*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
}

func TestCollectorMalformedPayloadIsBadRequest(t *testing.T) {
	c, _ := startTestCollector(t)

	resp := get(t, c, "/times", "not-enough-fields")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
}
