package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrybook/syncgw/internal/gateway/query"
)

type latencyStats struct {
	Min, Max, Mean, P50, P95 time.Duration
	Ops                      int
	Errors                   int
}

func summarize(durations []time.Duration, errs int) latencyStats {
	s := latencyStats{Ops: len(durations), Errors: errs}
	if len(durations) == 0 {
		return s
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	s.Min = durations[0]
	s.Max = durations[len(durations)-1]
	s.Mean = total / time.Duration(len(durations))
	s.P50 = durations[len(durations)*50/100]
	s.P95 = durations[len(durations)*95/100]
	return s
}

// TestConcurrentClients runs several sync clients against one store, each
// writing and reading its own account, and checks that nothing leaks across
// accounts or fails under lock contention.
func TestConcurrentClients(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	f := newFixture(t)
	ctx := context.Background()

	const clients = 8
	const perClient = 10

	collections := make([]int64, clients)
	for i := range collections {
		collections[i] = f.collection(t, fmt.Sprintf("client-%d", i))
	}

	var (
		mu        sync.Mutex
		durations []time.Duration
		errs      int
		wg        sync.WaitGroup
	)
	record := func(d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		durations = append(durations, d)
		if err != nil {
			errs++
			t.Logf("client op failed: %v", err)
		}
	}

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := fmt.Sprintf("client-%d", i)
			for n := 0; n < perClient; n++ {
				start := time.Now()
				_, err := f.gw.Insert(ctx, reqFor(account, "entry"), map[string]any{
					"collection_id": collections[i],
					"summary":       fmt.Sprintf("%s #%d", account, n),
				})
				record(time.Since(start), err)

				start = time.Now()
				_, err = f.gw.Query(ctx, reqFor(account, "entry"), query.Filter{})
				record(time.Since(start), err)
			}
		}(i)
	}
	wg.Wait()

	stats := summarize(durations, errs)
	t.Logf("ops=%d errors=%d min=%v p50=%v p95=%v max=%v mean=%v",
		stats.Ops, stats.Errors, stats.Min, stats.P50, stats.P95, stats.Max, stats.Mean)

	require.Zero(t, stats.Errors)
	assert.Equal(t, clients*perClient*2, stats.Ops)

	for i := 0; i < clients; i++ {
		rows, err := f.gw.Query(ctx, reqFor(fmt.Sprintf("client-%d", i), "entry"), query.Filter{})
		require.NoError(t, err)
		assert.Len(t, rows, perClient, "client-%d", i)
	}
	assert.Equal(t, clients*perClient, f.count(t, "SELECT COUNT(*) FROM entry"))
}

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := summarize(ds, 2)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 51*time.Millisecond, s.P50)
	assert.Equal(t, 96*time.Millisecond, s.P95)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 100, s.Ops)

	assert.Zero(t, summarize(nil, 0).Ops)
}
