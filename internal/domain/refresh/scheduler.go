// Package refresh implements scheduled and event-driven rebuilding of the
// Bridge's rule families from an AnchorRepository (spec.md §4.5).
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

// DefaultInterval is the default scheduled-refresh wakeup period.
const DefaultInterval = 6 * time.Hour

// Stats reports the outcome of one refresh cycle.
type Stats struct {
	RulesRefreshed int
	Duration       time.Duration
	Timestamp      time.Time
	Err            error
}

// Scheduler periodically rebuilds every family's snapshot from a
// repository, and accepts on-demand refresh calls. On-demand refreshes are
// serialized with the scheduled loop via a single mutex: whichever call
// runs last wins (spec.md §9 Open Question decision — there is no
// precedence beyond mutual exclusion).
type Scheduler struct {
	bridge *bridge.Bridge
	repo   outbound.AnchorRepository
	logger *slog.Logger

	interval time.Duration
	disabled bool

	mu          sync.Mutex
	lastRefresh time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewScheduler creates a Scheduler. interval <= 0 selects DefaultInterval;
// disabled suppresses the periodic loop entirely (Start becomes a no-op)
// while still allowing RefreshNow calls.
func NewScheduler(b *bridge.Bridge, repo outbound.AnchorRepository, interval time.Duration, disabled bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		bridge:   b,
		repo:     repo,
		logger:   logger,
		interval: interval,
		disabled: disabled,
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic refresh loop in the background. A no-op if
// the scheduler was constructed with disabled=true.
func (s *Scheduler) Start(ctx context.Context) {
	if s.disabled {
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			stats := s.RefreshNow(ctx)
			if stats.Err != nil {
				// A failed cycle never aborts the scheduler; the previous
				// snapshot remains in service (spec.md §4.5).
				s.logger.Error("scheduled refresh failed", "error", stats.Err)
				continue
			}
			s.logger.Info("scheduled refresh completed",
				"rules_refreshed", stats.RulesRefreshed,
				"duration_ms", stats.Duration.Milliseconds())
		}
	}
}

// RefreshNow rebuilds every family's Bridge table from the repository and
// reports the outcome. Safe to call concurrently with the scheduled loop;
// calls are serialized.
func (s *Scheduler) RefreshNow(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	total := 0

	for _, family := range rule.AllFamilies {
		rules, err := s.repo.ListFamily(ctx, family)
		if err != nil {
			return Stats{Duration: time.Since(start), Timestamp: time.Now(), Err: err}
		}
		s.bridge.Install(family, rules)
		total += len(rules)
	}

	s.lastRefresh = time.Now()
	return Stats{RulesRefreshed: total, Duration: time.Since(start), Timestamp: s.lastRefresh}
}

// LastRefresh returns the timestamp of the most recently completed cycle,
// zero value if none has run yet.
func (s *Scheduler) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// Stop halts the periodic loop and waits for it to exit. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}
