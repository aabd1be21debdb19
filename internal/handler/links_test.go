package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/linkly/admin/internal"
	"github.com/linkly/admin/internal/metrics"
	"github.com/linkly/admin/internal/registry"
	"github.com/linkly/admin/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	reg := registry.NewRegistry(mem, 0)
	agg := metrics.NewAggregator(reg, mem, 0)
	h := NewLinkHandler(reg, agg)

	e := echo.New()
	api := e.Group("/api")
	api.POST("/links", h.CreateLink)
	api.GET("/links", h.ListLinks)
	api.GET("/links/:id", h.GetLink)
	api.DELETE("/links/:id", h.DeleteLink)
	api.GET("/links/:id/metrics", h.GetLinkMetrics)
	api.GET("/slugs/:slug", h.ResolveSlug)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, mem
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestLinkLifecycle(t *testing.T) {
	server, mem := newTestServer(t)

	// Create
	resp := postJSON(t, server.URL+"/api/links", map[string]any{
		"title":          "Promo",
		"slug":           "promo",
		"destinationUrl": "https://x.com",
		"variants":       []string{"default", "ig", "ig"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[internal.LinkRecord](t, resp)
	if created.LinkID == "" || created.Slug != "promo" {
		t.Fatalf("unexpected create body: %+v", created)
	}
	if len(created.Variants) != 2 {
		t.Fatalf("variants = %v, want deduped pair", created.Variants)
	}

	// List includes it
	resp, err := http.Get(server.URL + "/api/links")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	listed := decodeJSON[ListLinksResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].LinkID != created.LinkID {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	// Get by id
	resp, err = http.Get(server.URL + "/api/links/" + created.LinkID)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[internal.LinkRecord](t, resp)
	if got.Slug != "promo" {
		t.Fatalf("unexpected get body: %+v", got)
	}

	// Metrics with seeded records
	seedMetric(t, mem, "promo", "default", `{"clicks":10,"byDevice":{"mobile":7,"desktop":3}}`)
	seedMetric(t, mem, "promo", "ig", `{"clicks":5,"byDevice":{"mobile":5}}`)

	resp, err = http.Get(server.URL + "/api/links/" + created.LinkID + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
	agg := decodeJSON[internal.AggregatedMetrics](t, resp)
	if agg.Totals.Clicks != 15 || agg.Totals.ByDevice["mobile"] != 12 {
		t.Fatalf("unexpected aggregate: %+v", agg.Totals)
	}

	// Delete
	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/links/"+created.LinkID, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	// Gone from listing, from get, and from slug resolution
	resp, err = http.Get(server.URL + "/api/links")
	if err != nil {
		t.Fatal(err)
	}
	listed = decodeJSON[ListLinksResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("deleted link still listed: %+v", listed)
	}

	for _, path := range []string{
		"/api/links/" + created.LinkID,
		"/api/slugs/promo",
	} {
		resp, err = http.Get(server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func seedMetric(t *testing.T, mem *store.Memory, slug, variant, doc string) {
	t.Helper()
	if err := mem.PutIfAbsent(context.Background(), store.MetricKey(slug, variant), []byte(doc)); err != nil {
		t.Fatal(err)
	}
}

func TestCreateStatusMapping(t *testing.T) {
	server, _ := newTestServer(t)

	// Validation failure
	resp := postJSON(t, server.URL+"/api/links", map[string]any{
		"title": "", "destinationUrl": "https://x.com",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Conflict on second create
	payload := map[string]any{
		"title": "Promo", "slug": "promo", "destinationUrl": "https://x.com",
	}
	resp = postJSON(t, server.URL+"/api/links", payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp = postJSON(t, server.URL+"/api/links", payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestDeleteUnknownLink(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/links/lk_missing0", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateAcceptsCommaJoinedVariants(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/links", map[string]any{
		"title":          "Promo",
		"slug":           "promo",
		"destinationUrl": "https://x.com",
		"variants":       "default, ig ,tw",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[internal.LinkRecord](t, resp)

	want := []string{"default", "ig", "tw"}
	if fmt.Sprint(created.Variants) != fmt.Sprint(want) {
		t.Fatalf("variants = %v, want %v", created.Variants, want)
	}
}

func TestVariantListUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`["a","b"]`, []string{"a", "b"}},
		{`"a,b"`, []string{"a", "b"}},
		{`"  a , b  "`, []string{"a", "b"}},
		{`""`, nil},
		{`null`, nil},
	}
	for _, c := range cases {
		var got VariantList
		if err := json.Unmarshal([]byte(c.in), &got); err != nil {
			t.Errorf("unmarshal %s: %v", c.in, err)
			continue
		}
		if fmt.Sprint([]string(got)) != fmt.Sprint(c.want) {
			t.Errorf("unmarshal %s = %v, want %v", c.in, got, c.want)
		}
	}

	var got VariantList
	if err := json.Unmarshal([]byte(`42`), &got); err == nil {
		t.Error("expected error for numeric variants")
	}
}
