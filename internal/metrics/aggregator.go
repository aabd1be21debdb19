// Package metrics rolls per-variant click counters up into one total
// per link. Metric records are written elsewhere by the redirect path;
// this package only ever reads them.
package metrics

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/linkly/admin/internal"
	"github.com/linkly/admin/internal/registry"
	"github.com/linkly/admin/internal/store"
)

const defaultStoreTimeout = 3 * time.Second

type Aggregator struct {
	registry *registry.Registry
	store    store.Store
	timeout  time.Duration
}

func NewAggregator(reg *registry.Registry, s store.Store, storeTimeout time.Duration) *Aggregator {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Aggregator{registry: reg, store: s, timeout: storeTimeout}
}

// metricDoc is the loosely-typed stored shape. Values stay `any` so one
// junk field skews nothing: non-numeric counts are skipped, not fatal.
type metricDoc struct {
	Clicks    any            `json:"clicks"`
	ByDevice  map[string]any `json:"byDevice"`
	ByCountry map[string]any `json:"byCountry"`
}

// GetMetrics aggregates every variant's counters for one link. The
// variant set is the union of what the store actually holds and what
// the link declares, so undeclared variants with recorded clicks still
// count and declared variants without clicks show up as zero.
func (a *Aggregator) GetMetrics(ctx context.Context, linkID string) (*internal.AggregatedMetrics, error) {
	link, err := a.registry.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	recs, err := a.store.ScanPrefix(scanCtx, store.MetricScanPrefix(link.Slug))
	if err != nil {
		return nil, &internal.StorageError{Op: "scan metrics", Err: err}
	}

	byVariantDoc := make(map[string]metricDoc, len(recs))
	for _, rec := range recs {
		var doc metricDoc
		if err := json.Unmarshal(rec.Doc, &doc); err != nil {
			log.Warn().Str("key", rec.Key).Err(err).Msg("skipping undecodable metric record")
			continue
		}
		byVariantDoc[store.VariantFromMetricKey(rec.Key)] = doc
	}

	seen := make(map[string]bool, len(byVariantDoc)+len(link.Variants))
	var variants []string
	for v := range byVariantDoc {
		seen[v] = true
		variants = append(variants, v)
	}
	for _, v := range link.Variants {
		if !seen[v] {
			variants = append(variants, v)
		}
	}
	sort.Strings(variants)

	totals := internal.MetricTotals{
		ByVariant: make(map[string]int64, len(variants)),
		ByDevice:  make(map[string]int64),
		ByCountry: make(map[string]int64),
	}
	for _, variant := range variants {
		doc, ok := byVariantDoc[variant]
		if !ok {
			totals.ByVariant[variant] = 0
			continue
		}

		clicks, _ := asCount(doc.Clicks)
		totals.ByVariant[variant] = clicks
		totals.Clicks += clicks

		sumCounts(totals.ByDevice, doc.ByDevice)
		sumCounts(totals.ByCountry, doc.ByCountry)
	}

	return &internal.AggregatedMetrics{
		Slug:   link.Slug,
		LinkID: link.LinkID,
		Totals: totals,
	}, nil
}

// sumCounts folds src into dst key-wise, skipping non-numeric values.
// Order-independent, so variant iteration order never matters.
func sumCounts(dst map[string]int64, src map[string]any) {
	for key, val := range src {
		if n, ok := asCount(val); ok {
			dst[key] += n
		}
	}
}

func asCount(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
