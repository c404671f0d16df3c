package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker periodically invokes the runner's poll sweep. It is the in-process
// equivalent of an external cron trigger; deployments that prefer an external
// trigger can call Runner.PollAndRun directly instead.
type Ticker struct {
	runner          *Runner
	store           *Store
	interval        time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	log             *zap.SugaredLogger
	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the scheduler ticker
type TickerConfig struct {
	Interval time.Duration // How often to sweep for due jobs (default: 1 minute)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: time.Minute,
	}
}

// NewTicker creates a ticker that sweeps at the configured interval
func NewTicker(runner *Runner, store *Store, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), runner, store, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, runner *Runner, store *Store, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		runner:   runner,
		store:    store,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		log:      log,
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.log.Infow("Scheduler ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.log.Infow("Scheduler ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			t.logNextJobInfo(tickTime)

			results, err := t.runner.PollAndRun(t.ctx, tickTime)
			if err != nil {
				// Don't spam logs - sweep errors surface at warn level
				t.log.Warnw("Poll sweep error", "error", err, "tick", t.ticksSinceStart)
				continue
			}
			if len(results) > 0 {
				ok := 0
				for _, res := range results {
					if res.Success {
						ok++
					}
				}
				t.log.Infow("Poll sweep complete",
					"ran", len(results),
					"succeeded", ok,
					"failed", len(results)-ok)
			}
		}
	}
}

// logNextJobInfo logs time until the next scheduled job
func (t *Ticker) logNextJobInfo(now time.Time) {
	nextJob, err := t.store.NextPendingJob()
	if err != nil {
		t.log.Warnw("Failed to get next pending job", "error", err)
		return
	}
	if nextJob == nil || nextJob.NextRunAt == nil {
		return
	}

	timeUntil := nextJob.NextRunAt.Sub(now)
	if timeUntil < 0 {
		timeUntil = 0
	}

	t.log.Debugw("Next scheduled job",
		"job_id", nextJob.ID,
		"name", nextJob.Name,
		"in", timeUntil.Round(time.Second))
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
}
