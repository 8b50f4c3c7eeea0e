package scrape

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/metrics"
)

// GidsScraper counts posixAccount entries whose primary gid resolves to no
// posixGroup.
type GidsScraper struct {
	cfg  ldapx.Config
	sink *metrics.Sink
}

func NewGidsScraper(cfg ldapx.Config, sink *metrics.Sink) *GidsScraper {
	sink.Describe("query_gids_unresolvable_count", "Accounts whose primary gid matches no posixGroup, per gid")
	return &GidsScraper{cfg: cfg, sink: sink}
}

// Scrape runs the account and group queries and emits one gauge per missing
// gid.
func (g *GidsScraper) Scrape(ctx context.Context) error {
	missing, err := dirsrv.MissingGids(ctx, g.cfg)
	if err != nil {
		return err
	}

	for gid, count := range missing {
		g.sink.Set("query_gids_unresolvable_count",
			prometheus.Labels{"gid": strconv.FormatInt(gid, 10)}, float64(count))
	}
	return nil
}
