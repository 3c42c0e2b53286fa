// Package e2e contains end-to-end tests that exercise a running searcher
// (and, indirectly, the indexer that produced its snapshot) over HTTP,
// with real Redis when caching is enabled.
//
// Prerequisites:
//   - indexer has written at least one snapshot into the shared data dir
//   - searcher running against that data dir
//
// Run with:
//
//	go test -v -timeout=60s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

func searcherURL() string {
	if v := os.Getenv("E2E_SEARCHER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

var client = &http.Client{Timeout: 5 * time.Second}

func getOrSkip(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := client.Get(searcherURL() + path)
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			resp := getOrSkip(t, path)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

func TestSearchReturnsRankedHits(t *testing.T) {
	resp := getOrSkip(t, "/api/v1/search?q="+url.QueryEscape("search engine")+"&top_k=5")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Hits []struct {
			URL   string  `json:"url"`
			Score float64 `json:"score"`
		} `json:"hits"`
		TookMs int64 `json:"took_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(result.Hits) > 5 {
		t.Errorf("got %d hits, want at most 5", len(result.Hits))
	}
	for i := 1; i < len(result.Hits); i++ {
		if result.Hits[i-1].Score < result.Hits[i].Score {
			t.Errorf("hits not ordered by score: %v then %v",
				result.Hits[i-1].Score, result.Hits[i].Score)
		}
	}
}

func TestSearchValidation(t *testing.T) {
	resp := getOrSkip(t, "/api/v1/search")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing query: expected 400, got %d", resp.StatusCode)
	}
}

func TestStatsExposed(t *testing.T) {
	resp := getOrSkip(t, "/api/v1/stats")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats struct {
		Documents int `json:"documents"`
		Terms     int `json:"terms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Documents == 0 {
		t.Error("expected a non-empty snapshot in e2e environment")
	}
}

func TestCacheHitOnRepeatedQuery(t *testing.T) {
	query := fmt.Sprintf("/api/v1/search?q=%s&top_k=3", url.QueryEscape("repeated cache probe"))
	for i := 0; i < 2; i++ {
		resp := getOrSkip(t, query)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	resp := getOrSkip(t, "/api/v1/cache/stats")
	defer resp.Body.Close()
	var stats struct {
		Status string `json:"status"`
		Hits   int64  `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding cache stats: %v", err)
	}
	if stats.Status == "disabled" {
		t.Skip("caching disabled in this environment")
	}
	if stats.Hits == 0 {
		t.Error("expected at least one cache hit after repeating a query")
	}
}
