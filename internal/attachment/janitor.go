package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/entrybook/syncgw/internal/store/db"
)

// JanitorConfig holds configuration for the background sweep worker.
type JanitorConfig struct {
	// Debounce is how long to wait after the last request before sweeping.
	// Bursts of deletes are coalesced into one sweep.
	Debounce time.Duration

	// Interval forces a sweep this often even without requests. Zero
	// disables periodic sweeps.
	Interval time.Duration
}

// DefaultJanitorConfig returns sensible defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Debounce: 2 * time.Second,
		Interval: time.Hour,
	}
}

// Janitor runs orphan sweeps off the request path.
type Janitor struct {
	manager *Manager
	q       db.DBTX
	grants  *Grants
	config  JanitorConfig
	logger  *slog.Logger

	requestedAt time.Time // zero when no sweep is pending
	mu          sync.Mutex
	lastResult  SweepResult

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewJanitor creates a Janitor sweeping manager's directory against q.
func NewJanitor(manager *Manager, q db.DBTX, config JanitorConfig, logger *slog.Logger) (*Janitor, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if q == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultJanitorConfig().Debounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		manager: manager,
		q:       q,
		config:  config,
		logger:  logger.With("component", "janitor"),
	}, nil
}

// PruneGrants makes every sweep also drop expired capability grants and
// the grants of files it removed.
func (j *Janitor) PruneGrants(g *Grants) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.grants = g
}

// Schedule requests a sweep. It never blocks; requests arriving before the
// pending sweep runs push it back and are folded into it.
func (j *Janitor) Schedule() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.requestedAt = time.Now()
}

// Pending reports whether a sweep has been requested but not run.
func (j *Janitor) Pending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.requestedAt.IsZero()
}

// LastResult returns the result of the most recent sweep.
func (j *Janitor) LastResult() SweepResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

// Start launches the worker goroutine. It returns immediately.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.loop()
	j.logger.Debug("janitor started", "debounce", j.config.Debounce)
}

// Stop shuts the worker down and waits for an in-flight sweep to finish.
// A pending request is dropped; the next sweep will pick its files up.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.cancel()
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Debug("janitor stopped")
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(max(j.config.Debounce/2, time.Millisecond))
	defer ticker.Stop()

	var periodic <-chan time.Time
	if j.config.Interval > 0 {
		t := time.NewTicker(j.config.Interval)
		defer t.Stop()
		periodic = t.C
	}

	for {
		select {
		case <-j.ctx.Done():
			return

		case <-ticker.C:
			j.processPending()

		case <-periodic:
			j.Schedule()
		}
	}
}

// processPending sweeps once the last request is older than the debounce
// interval.
func (j *Janitor) processPending() {
	j.mu.Lock()
	requested := j.requestedAt
	if requested.IsZero() || time.Since(requested) < j.config.Debounce {
		j.mu.Unlock()
		return
	}
	j.requestedAt = time.Time{}
	j.mu.Unlock()

	if _, err := j.SweepNow(j.ctx); err != nil {
		j.logger.Warn("attachment sweep failed", "error", err)
	}
}

// SweepNow runs a sweep synchronously.
func (j *Janitor) SweepNow(ctx context.Context) (SweepResult, error) {
	res, err := j.manager.Sweep(ctx, j.q)
	if err != nil {
		return res, err
	}
	j.mu.Lock()
	j.lastResult = res
	grants := j.grants
	j.mu.Unlock()

	if grants != nil {
		for _, name := range res.Names {
			grants.Revoke(j.manager.URI(name))
		}
		if n := grants.Prune(); n > 0 {
			j.logger.Debug("pruned expired grants", "count", n)
		}
	}
	return res, nil
}
