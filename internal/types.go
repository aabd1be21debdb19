package internal

import "time"

// LinkRecord is the master record for a short link. It is owned by the
// registry; once created it only ever gets deleted, never updated.
type LinkRecord struct {
	LinkID         string    `json:"linkId"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	DestinationURL string    `json:"destinationUrl"`
	Variants       []string  `json:"variants"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewLink is the normalized create payload handed to the registry.
// Slug may be empty, in which case one is derived from the title.
type NewLink struct {
	Title          string
	Slug           string
	DestinationURL string
	Variants       []string
}

// SlugAlias maps a slug to the link that owns it. Its lifecycle is
// coupled to the LinkRecord: written together, deleted together.
type SlugAlias struct {
	Slug   string `json:"slug"`
	LinkID string `json:"linkId"`
}

type MetricTotals struct {
	Clicks    int64            `json:"clicks"`
	ByVariant map[string]int64 `json:"byVariant"`
	ByDevice  map[string]int64 `json:"byDevice"`
	ByCountry map[string]int64 `json:"byCountry"`
}

type AggregatedMetrics struct {
	Slug   string       `json:"slug"`
	LinkID string       `json:"linkId"`
	Totals MetricTotals `json:"totals"`
}
