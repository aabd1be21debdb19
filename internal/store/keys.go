package store

import "strings"

// All record kinds share one keyspace, so every key carries a kind
// prefix. Slugs and variants cannot contain '#' (validation enforces
// that upstream), which keeps the segments unambiguous.
const (
	LinkPrefix   = "link#"
	AliasPrefix  = "alias#"
	MetricPrefix = "metric#"
)

func LinkKey(linkID string) string {
	return LinkPrefix + linkID
}

func AliasKey(slug string) string {
	return AliasPrefix + slug
}

func MetricKey(slug, variant string) string {
	return MetricPrefix + slug + "#" + variant
}

// MetricScanPrefix matches every variant's metric record for a slug.
func MetricScanPrefix(slug string) string {
	return MetricPrefix + slug + "#"
}

// VariantFromMetricKey extracts the variant segment of a metric key.
// Falls back to "default" for malformed keys.
func VariantFromMetricKey(key string) string {
	parts := strings.SplitN(key, "#", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "default"
	}
	return parts[2]
}
