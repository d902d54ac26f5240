/*
scheduler.go - Automated annual rollover scheduler

PURPOSE:
  Periodically resets coverage ledgers whose annual period has ended.
  Ledgers also roll over lazily on first touch (submission, approval,
  coverage lookup); the scheduler makes the reset visible for members who
  are not active, and keeps the transaction log current for audits.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls Service.RolloverDue(today)
  - Idempotent: a ledger already in its current period is skipped

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRollover endpoint (manual rollover)
  - claims/service.go: RolloverDue
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/generic"
)

// RolloverScheduler handles automated annual ledger resets.
type RolloverScheduler struct {
	Service       *claims.Service
	CheckInterval time.Duration
	Enabled       bool

	// Clock returns "today". Defaults to the service clock.
	Clock func() generic.TimePoint

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(svc *claims.Service) *RolloverScheduler {
	return &RolloverScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         svc.Today,
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Info().Msg("Rollover scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	log.Info().Dur("interval", rs.CheckInterval).Msg("Rollover scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Info().Msg("Rollover scheduler stopped")
	}
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-ticker.C:
			rs.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (rs *RolloverScheduler) checkAndProcess() int {
	asOf := rs.Clock()
	n, err := rs.Service.RolloverDue(context.Background(), asOf)
	if err != nil {
		log.Error().Err(err).Str("as_of", asOf.String()).Int("rolled_over", n).Msg("Rollover run failed")
	}
	return n
}

// RunNow triggers an immediate check (for testing/admin) and returns the
// number of ledgers reset.
func (rs *RolloverScheduler) RunNow() int {
	return rs.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RolloverScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
