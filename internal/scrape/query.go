package scrape

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/metrics"
	"github.com/dirsrv-monitor/internal/query"
	"github.com/dirsrv-monitor/pkg/logger"
)

// QueryScraper executes the configured custom queries concurrently on each
// pass. A failing query is logged and leaves its previous series untouched;
// it does not fail the pass for the other queries.
type QueryScraper struct {
	base    ldapx.Config
	queries []query.Query
	sink    *metrics.Sink
}

func NewQueryScraper(base ldapx.Config, queries []query.Query, sink *metrics.Sink) *QueryScraper {
	sink.Describe("custom_query_duration_ms", "Wall time of the custom query in milliseconds")
	sink.Describe("custom_query_object_count", "Entries returned by the custom query")
	sink.Describe("custom_query_attrs_count", "Entry-attribute pairs returned by the custom query")
	sink.Describe("custom_query_bytes", "Total attribute value bytes returned by the custom query")
	sink.Describe("custom_query_ldap_code", "Final protocol result code of the custom query")
	sink.Describe("custom_query_checksum_info", "Order-independent content digest of the custom query result")
	return &QueryScraper{base: base, queries: queries, sink: sink}
}

func (q *QueryScraper) emit(name string, result *query.Result) {
	labels := prometheus.Labels{"query": name}
	q.sink.Set("custom_query_duration_ms", labels, float64(result.Elapsed.Milliseconds()))
	q.sink.Set("custom_query_object_count", labels, float64(result.ObjectCount))
	q.sink.Set("custom_query_attrs_count", labels, float64(result.AttrCount))
	q.sink.Set("custom_query_bytes", labels, float64(result.Bytes))
	q.sink.Set("custom_query_ldap_code", labels, float64(result.LDAPCode))
	q.sink.Set("custom_query_checksum_info",
		prometheus.Labels{"query": name, "checksum": result.Checksum}, 1)
}

// Scrape runs every configured query once.
func (q *QueryScraper) Scrape(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, qry := range q.queries {
		qry := qry
		g.Go(func() error {
			result, err := qry.Execute(gctx, q.base)
			if err != nil {
				logger.Error("custom query failed", zap.String("query", qry.Name), zap.Error(err))
				return nil
			}
			q.emit(qry.Name, result)
			return nil
		})
	}
	return g.Wait()
}
