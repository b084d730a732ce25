package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/PaathGuide/core/corpus"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
	"github.com/FocuswithJustin/PaathGuide/internal/loader"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	repo := st.Repository()
	c := corpus.New(corpus.Config{})
	ldr := &loader.Loader{Repo: repo, Corpus: c}
	return New(cfg, c, repo, ldr)
}

func seedServer(t *testing.T, s *Server) []verse.Record {
	t.Helper()
	ctx := context.Background()
	seed := []verse.Record{
		{Gurmukhi: "ਸਚੁ ਨਾਮੁ", Page: 1, Line: 1, Raag: "ਜਪੁ"},
		{Gurmukhi: "ਹਰਿ ਨਾਮੁ", Page: 1, Line: 2},
		{Gurmukhi: "ਸਤਿ ਗੁਰ", Page: 2, Line: 1},
	}
	out := make([]verse.Record, 0, len(seed))
	for _, rec := range seed {
		created, err := s.repo.Create(ctx, rec)
		if err != nil {
			t.Fatalf("seed Create failed: %v", err)
		}
		if err := s.corpus.Upsert(created); err != nil {
			t.Fatalf("seed Upsert failed: %v", err)
		}
		out = append(out, created)
	}
	return out
}

func doRequest(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s returned invalid JSON: %v (%s)", method, path, err, w.Body.String())
	}
	return w, resp
}

func decodeData(t *testing.T, resp APIResponse, out any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data failed: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
}

func TestRootEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})

	w, resp := doRequest(t, s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !resp.Success {
		t.Errorf("GET / = %d success=%v", w.Code, resp.Success)
	}

	w, resp = doRequest(t, s, http.MethodGet, "/no-such-endpoint", nil)
	if w.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown path = %d %+v, want 404 NOT_FOUND", w.Code, resp.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var health HealthInfo
	decodeData(t, resp, &health)
	if health.Status != "healthy" || health.Verses != 3 {
		t.Errorf("health = %+v, want healthy with 3 verses", health)
	}
}

func TestVerseCRUD(t *testing.T) {
	s := newTestServer(t, Config{})

	// Create.
	w, resp := doRequest(t, s, http.MethodPost, "/verses", map[string]any{
		"gurmukhi_text": "ਸਚੁ ਨਾਮੁ",
		"page_number":   1,
		"line_number":   1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /verses = %d: %+v", w.Code, resp.Error)
	}
	var created verse.Record
	decodeData(t, resp, &created)
	if created.ID == 0 {
		t.Fatal("created verse has no ID")
	}

	// Read.
	w, resp = doRequest(t, s, http.MethodGet, fmt.Sprintf("/verses/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /verses/%d = %d", created.ID, w.Code)
	}
	var got verse.Record
	decodeData(t, resp, &got)
	if got.Gurmukhi != "ਸਚੁ ਨਾਮੁ" {
		t.Errorf("Gurmukhi = %q", got.Gurmukhi)
	}

	// Update.
	w, resp = doRequest(t, s, http.MethodPut, fmt.Sprintf("/verses/%d", created.ID), map[string]any{
		"gurmukhi_text": "ਸਚੁ ਨਾਮੁ ਕਰਤਾ",
		"page_number":   1,
		"line_number":   1,
		"translation":   "True is the Name",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %+v", w.Code, resp.Error)
	}
	decodeData(t, resp, &got)
	if got.Translation != "True is the Name" {
		t.Errorf("Translation = %q after update", got.Translation)
	}

	// The corpus sees the update immediately.
	results, err := s.corpus.Search("ਕਰਤਾ", 5)
	if err != nil || len(results) == 0 {
		t.Errorf("updated verse not fuzzy-searchable: %v %v", results, err)
	}

	// Delete.
	w, _ = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/verses/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE = %d", w.Code)
	}
	w, resp = doRequest(t, s, http.MethodGet, fmt.Sprintf("/verses/%d", created.ID), nil)
	if w.Code != http.StatusNotFound || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("GET after delete = %d %+v", w.Code, resp.Error)
	}
}

func TestCreateVerseValidation(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing text",
			body:     map[string]any{"page_number": 5, "line_number": 1},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_INPUT",
		},
		{
			name:     "zero page",
			body:     map[string]any{"gurmukhi_text": "ਸਚੁ", "page_number": 0, "line_number": 1},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_INPUT",
		},
		{
			name:     "occupied location",
			body:     map[string]any{"gurmukhi_text": "ਟਕਰਾਅ", "page_number": 1, "line_number": 1},
			wantCode: http.StatusConflict,
			wantErr:  "ALREADY_EXISTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doRequest(t, s, http.MethodPost, "/verses", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestVerseByRef(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet, "/verses/page/1/line/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET by ref = %d: %+v", w.Code, resp.Error)
	}
	var rec verse.Record
	decodeData(t, resp, &rec)
	if rec.Gurmukhi != "ਹਰਿ ਨਾਮੁ" {
		t.Errorf("Gurmukhi = %q, want ਹਰਿ ਨਾਮੁ", rec.Gurmukhi)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/verses/page/9/line/9", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown ref = %d, want 404", w.Code)
	}
	w, _ = doRequest(t, s, http.MethodGet, "/verses/page/0/line/1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero page = %d, want 400", w.Code)
	}
}

func TestVerseContext(t *testing.T) {
	s := newTestServer(t, Config{})
	recs := seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/verses/%d/context?radius=1", recs[1].ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET context = %d: %+v", w.Code, resp.Error)
	}
	var info ContextInfo
	decodeData(t, resp, &info)
	if info.Verse.ID != recs[1].ID || len(info.Context) != 3 || info.Radius != 1 {
		t.Errorf("context = %+v, want 3 records around verse %d", info, recs[1].ID)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/verses/999/context", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown verse context = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet, "/search?q=ਨਾਮੁ", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /search = %d: %+v", w.Code, resp.Error)
	}
	var sr SearchResponse
	decodeData(t, resp, &sr)
	if sr.Total != 2 || len(sr.Verses) != 2 {
		t.Errorf("search = %+v, want 2 hits", sr)
	}

	w, resp = doRequest(t, s, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest || resp.Error.Code != "MISSING_QUERY" {
		t.Errorf("missing q = %d %+v", w.Code, resp.Error)
	}
}

func TestFuzzySearchEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	// One confusable character off from the stored ਹਰਿ ਨਾਮੁ verse.
	w, resp := doRequest(t, s, http.MethodGet, "/fuzzy-search?q=ਹਰਿ+ਨਾਮ", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /fuzzy-search = %d: %+v", w.Code, resp.Error)
	}
	var fr FuzzySearchResponse
	decodeData(t, resp, &fr)
	if fr.Total == 0 {
		t.Fatalf("no fuzzy results: %+v", fr)
	}
	if fr.Results[0].Record.Page != 1 || fr.Results[0].Record.Line != 2 {
		t.Errorf("top result = %+v, want the (1-2) verse", fr.Results[0])
	}
	if fr.Results[0].Rank != 1 {
		t.Errorf("top rank = %d, want 1", fr.Results[0].Rank)
	}

	w, resp = doRequest(t, s, http.MethodGet, "/fuzzy-search?q=ਨਾਮੁ&min_similarity=2", nil)
	if w.Code != http.StatusBadRequest || resp.Error.Code != "INVALID_INPUT" {
		t.Errorf("bad min_similarity = %d %+v", w.Code, resp.Error)
	}
}

func TestPageEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet, "/pages/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /pages/1 = %d", w.Code)
	}
	var page PageInfo
	decodeData(t, resp, &page)
	if page.Page != 1 || page.TotalLines != 2 {
		t.Errorf("page = %+v, want 2 lines on page 1", page)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/pages/99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("empty page = %d, want 404", w.Code)
	}
	w, _ = doRequest(t, s, http.MethodGet, "/pages/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric page = %d, want 400", w.Code)
	}
}

func TestRandomEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})

	w, _ := doRequest(t, s, http.MethodGet, "/random", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("random on empty corpus = %d, want 404", w.Code)
	}

	seedServer(t, s)
	w, resp := doRequest(t, s, http.MethodGet, "/random", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /random = %d", w.Code)
	}
	var rec verse.Record
	decodeData(t, resp, &rec)
	if rec.ID == 0 {
		t.Error("random verse has no ID")
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, resp := doRequest(t, s, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d", w.Code)
	}
	var stats corpus.Stats
	decodeData(t, resp, &stats)
	if stats.TotalRecords != 3 || stats.TotalPages != 2 {
		t.Errorf("stats = %+v, want 3 verses on 2 pages", stats)
	}
}

func TestLoadJobLifecycle(t *testing.T) {
	s := newTestServer(t, Config{})

	path := filepath.Join(t.TempDir(), "corpus.txt")
	content := "ਸਚੁ ਨਾਮੁ (1-1)\nਹਰਿ ਨਾਮੁ (1-2)\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	w, resp := doRequest(t, s, http.MethodPost, "/admin/load", LoadRequest{Path: path})
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /admin/load = %d: %+v", w.Code, resp.Error)
	}
	var job Job
	decodeData(t, resp, &job)
	if job.ID == "" {
		t.Fatal("job has no ID")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w, resp = doRequest(t, s, http.MethodGet, "/jobs/"+job.ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET /jobs/%s = %d", job.ID, w.Code)
		}
		decodeData(t, resp, &job)
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %+v", job)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if job.Status != JobStatusCompleted {
		t.Fatalf("job = %+v, want completed", job)
	}
	if job.Result == nil || job.Result.Loaded != 2 {
		t.Errorf("result = %+v, want 2 loaded", job.Result)
	}
	if s.corpus.Len() != 2 {
		t.Errorf("corpus Len = %d, want 2 after load", s.corpus.Len())
	}
}

func TestLoadValidation(t *testing.T) {
	s := newTestServer(t, Config{})

	w, resp := doRequest(t, s, http.MethodPost, "/admin/load", LoadRequest{})
	if w.Code != http.StatusBadRequest || resp.Error.Code != "MISSING_PARAMS" {
		t.Errorf("empty path = %d %+v", w.Code, resp.Error)
	}

	w, _ = doRequest(t, s, http.MethodGet, "/jobs/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job = %d, want 404", w.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	seedServer(t, s)

	w, _ := doRequest(t, s, http.MethodDelete, "/admin/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE /admin/clear = %d", w.Code)
	}
	if s.corpus.Len() != 0 {
		t.Errorf("corpus Len = %d, want 0 after clear", s.corpus.Len())
	}
	n, err := s.repo.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("store Count = %d (%v), want 0", n, err)
	}

	w, _ = doRequest(t, s, http.MethodPost, "/admin/clear", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /admin/clear = %d, want 405", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, Config{
		Auth: AuthConfig{Enabled: true, APIKey: "test-key-1234567890"},
	})
	seedServer(t, s)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-Key", "test-key-1234567890")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("correct key = %d, want 200", w.Code)
	}

	// Health stays public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health without key = %d, want 200", w.Code)
	}
}
