package store

import "testing"

func TestVariantFromMetricKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{MetricKey("promo", "ig"), "ig"},
		{MetricKey("promo", "default"), "default"},
		{"metric#promo", "default"},
		{"metric#promo#", "default"},
		{"garbage", "default"},
	}
	for _, c := range cases {
		if got := VariantFromMetricKey(c.key); got != c.want {
			t.Errorf("VariantFromMetricKey(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}
