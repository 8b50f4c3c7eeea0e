package scrape

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dirsrv-monitor/internal/metrics"
)

// SelfScraper reports the daemon's own liveness and resource use: an uptime
// counter advanced by the scrape interval plus process RSS and CPU figures.
type SelfScraper struct {
	sink     *metrics.Sink
	interval time.Duration
	proc     *process.Process
}

func NewSelfScraper(sink *metrics.Sink, interval time.Duration) (*SelfScraper, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	sink.Describe("internal_runtime_seconds_active", "How long the daemon has been running")
	sink.Describe("internal_scrape_interval_seconds", "Configured scrape interval")
	sink.Describe("internal_process_rss_bytes", "Resident set size of the daemon process")
	sink.Describe("internal_process_cpu_percent", "CPU use of the daemon process")

	sink.Set("internal_scrape_interval_seconds", nil, interval.Seconds())

	return &SelfScraper{sink: sink, interval: interval, proc: proc}, nil
}

// Scrape advances the uptime counter and samples the process figures.
func (s *SelfScraper) Scrape(ctx context.Context) error {
	s.sink.Add("internal_runtime_seconds_active", nil, s.interval.Seconds())

	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return err
	}
	s.sink.Set("internal_process_rss_bytes", nil, float64(mem.RSS))

	cpu, err := s.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return err
	}
	s.sink.Set("internal_process_cpu_percent", nil, cpu)

	return nil
}
