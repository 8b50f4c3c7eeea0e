package scrape

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirsrv-monitor/internal/dsctl"
	"github.com/dirsrv-monitor/internal/metrics"
)

// DsctlScraper runs the full dsctl healthcheck suite and exposes one error
// gauge per finding. Findings that recover are reset to zero with the
// severity they last reported.
type DsctlScraper struct {
	cmd  dsctl.Command
	sink *metrics.Sink

	// failing maps a finding's dsle code to its last reported severity.
	failing map[string]dsctl.Severity
}

func NewDsctlScraper(cmd dsctl.Command, sink *metrics.Sink) *DsctlScraper {
	sink.Describe("dsctl_healthcheck_healthy", "1 when dsctl healthcheck reports no findings")
	sink.Describe("dsctl_healthcheck_error", "1 per active dsctl healthcheck finding, 0 once recovered")
	return &DsctlScraper{
		cmd:     cmd,
		sink:    sink,
		failing: make(map[string]dsctl.Severity),
	}
}

// Scrape runs every non-log check group once.
func (d *DsctlScraper) Scrape(ctx context.Context) error {
	results, err := d.cmd.Healthchecks(ctx)
	if err != nil {
		return err
	}

	instance := prometheus.Labels{"instance": d.cmd.Instance}

	healthy := 0.0
	if len(results) == 0 {
		healthy = 1
	}
	d.sink.Set("dsctl_healthcheck_healthy", instance, healthy)

	current := make(map[string]dsctl.Severity, len(results))
	for _, result := range results {
		current[result.DSLE] = result.Severity
	}

	for dsle, severity := range d.failing {
		if _, ok := current[dsle]; !ok {
			d.sink.Set("dsctl_healthcheck_error", prometheus.Labels{
				"instance": d.cmd.Instance,
				"dsle":     dsle,
				"severity": severity.String(),
			}, 0)
			delete(d.failing, dsle)
		}
	}

	for dsle, severity := range current {
		d.sink.Set("dsctl_healthcheck_error", prometheus.Labels{
			"instance": d.cmd.Instance,
			"dsle":     dsle,
			"severity": severity.String(),
		}, 1)
		d.failing[dsle] = severity
	}

	return nil
}
