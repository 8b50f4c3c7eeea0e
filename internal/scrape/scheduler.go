// Package scrape drives the periodic collection loops of the exporter and
// turns typed directory snapshots into metric emissions.
package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dirsrv-monitor/internal/metrics"
	"github.com/dirsrv-monitor/pkg/logger"
)

// Func is one scrape pass. Implementations own their cross-pass state; the
// scheduler never retains results, only the error.
type Func func(ctx context.Context) error

type loop struct {
	kind     string
	interval time.Duration
	fn       Func
	disabled bool
}

// Scheduler runs one goroutine per registered scraper kind. A failing pass is
// logged and reflected in the per-kind health gauge; it never stops the loop
// or affects other kinds.
type Scheduler struct {
	sink  *metrics.Sink
	loops []loop
}

func NewScheduler(sink *metrics.Sink) *Scheduler {
	sink.Describe("internal_health", "Whether the last pass of each scraper succeeded")
	return &Scheduler{sink: sink}
}

// Register adds an enabled scraper kind.
func (s *Scheduler) Register(kind string, interval time.Duration, fn Func) {
	s.loops = append(s.loops, loop{kind: kind, interval: interval, fn: fn})
}

// RegisterDisabled adds a kind that only logs its absence. Keeping a parked
// goroutine per disabled kind makes the running-loop inventory uniform.
func (s *Scheduler) RegisterDisabled(kind string) {
	s.loops = append(s.loops, loop{kind: kind, disabled: true})
}

// Kinds lists every registered kind, enabled or not, in registration order.
func (s *Scheduler) Kinds() []string {
	kinds := make([]string, 0, len(s.loops))
	for _, l := range s.loops {
		kinds = append(kinds, l.kind)
	}
	return kinds
}

func (s *Scheduler) run(ctx context.Context, l loop) {
	if l.disabled {
		logger.Info("scraper disabled", zap.String("scraper", l.kind))
		<-ctx.Done()
		return
	}

	logger.Info("scraper started",
		zap.String("scraper", l.kind),
		zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		healthy := 1.0
		if err := l.fn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("scrape failed", zap.String("scraper", l.kind), zap.Error(err))
			healthy = 0
		}
		s.sink.Set("internal_health", prometheus.Labels{"scraper": l.kind}, healthy)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run starts every registered loop and blocks until the context is cancelled
// and all loops have drained.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.loops {
		wg.Add(1)
		go func(l loop) {
			defer wg.Done()
			s.run(ctx, l)
		}(l)
	}
	wg.Wait()
}
