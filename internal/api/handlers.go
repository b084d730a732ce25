package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/search"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Verses  int    `json:"verses"`
}

// SearchResponse wraps exact-search results with paging information.
type SearchResponse struct {
	Query  string         `json:"query"`
	Verses []verse.Record `json:"verses"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// FuzzySearchResponse wraps ranked fuzzy matches.
type FuzzySearchResponse struct {
	Query   string               `json:"query"`
	Results []search.MatchResult `json:"results"`
	Total   int                  `json:"total"`
}

// PageInfo is one full page of verses in line order.
type PageInfo struct {
	Page       int            `json:"page_number"`
	Verses     []verse.Record `json:"verses"`
	TotalLines int            `json:"total_lines"`
}

// ContextInfo is a verse with its surrounding lines.
type ContextInfo struct {
	Verse   verse.Record   `json:"verse"`
	Context []verse.Record `json:"context"`
	Radius  int            `json:"radius"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "PaathGuide API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /verses",
			"POST /verses",
			"GET /verses/:id",
			"PUT /verses/:id",
			"DELETE /verses/:id",
			"GET /verses/:id/context",
			"GET /verses/page/:page/line/:line",
			"GET /search",
			"GET /fuzzy-search",
			"GET /pages/:page",
			"GET /random",
			"GET /stats",
			"POST /admin/load",
			"DELETE /admin/clear",
			"GET /jobs/:id",
			"DELETE /jobs/:id",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.startTime).String(),
		Verses:  s.corpus.Len(),
	})
}

func (s *Server) handleVerses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listVersesHandler(w, r)
	case http.MethodPost:
		s.createVerseHandler(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) listVersesHandler(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := s.clampLimit(queryInt(r, "limit", s.cfg.DefaultLimit))

	verses, err := s.repo.List(r.Context(), skip, limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	response := APIResponse{
		Success: true,
		Data:    verses,
		Meta: &APIMeta{
			Total:     len(verses),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) createVerseHandler(w http.ResponseWriter, r *http.Request) {
	var rec verse.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if err := validateRecord(rec); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	created, err := s.repo.Create(r.Context(), rec)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if err := s.corpus.Upsert(created); err != nil {
		logging.Error("corpus upsert after create failed", "id", created.ID, "error", err)
	}

	respond(w, http.StatusCreated, created)
}

// handleVerseSubpath dispatches everything under /verses/: a numeric ID
// with optional /context suffix, or the page/:page/line/:line locator.
func (s *Server) handleVerseSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/verses/"), "/")
	parts := strings.Split(rest, "/")

	if parts[0] == "page" {
		s.verseByRefHandler(w, r, parts)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Verse ID must be a positive integer")
		return
	}

	switch {
	case len(parts) == 1:
		s.verseByIDHandler(w, r, id)
	case len(parts) == 2 && parts[1] == "context":
		s.verseContextHandler(w, r, id)
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
	}
}

func (s *Server) verseByIDHandler(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.repo.GetByID(r.Context(), id)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		respond(w, http.StatusOK, rec)

	case http.MethodPut:
		var rec verse.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
			return
		}
		rec.ID = id
		if err := validateRecord(rec); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		if err := s.repo.Update(r.Context(), rec); err != nil {
			s.respondDomainError(w, err)
			return
		}
		updated, err := s.repo.GetByID(r.Context(), id)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		if err := s.corpus.Upsert(updated); err != nil {
			logging.Error("corpus upsert after update failed", "id", id, "error", err)
		}
		respond(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := s.repo.Delete(r.Context(), id); err != nil {
			s.respondDomainError(w, err)
			return
		}
		if err := s.corpus.Delete(id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			logging.Error("corpus delete failed", "id", id, "error", err)
		}
		respond(w, http.StatusOK, map[string]interface{}{
			"message": "Verse deleted",
			"id":      id,
		})

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET, PUT and DELETE are allowed")
	}
}

func (s *Server) verseContextHandler(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	radius := queryInt(r, "radius", 3)
	if radius < 0 {
		radius = 0
	}
	if radius > 25 {
		radius = 25
	}

	ctx, err := s.corpus.ContextAround(id, radius)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	rec, ok := s.corpus.RecordByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Verse %d not found", id))
		return
	}

	respond(w, http.StatusOK, ContextInfo{
		Verse:   rec,
		Context: ctx,
		Radius:  radius,
	})
}

// verseByRefHandler handles /verses/page/{page}/line/{line}.
func (s *Server) verseByRefHandler(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	if len(parts) != 4 || parts[0] != "page" || parts[2] != "line" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	page, err1 := strconv.Atoi(parts[1])
	line, err2 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || page <= 0 || line <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REF", "Page and line must be positive integers")
		return
	}

	rec, err := s.corpus.RecordAt(page, line)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	query, ok := s.searchQuery(w, r)
	if !ok {
		return
	}

	limit := s.clampLimit(queryInt(r, "limit", s.cfg.DefaultLimit))
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	verses, total, err := s.repo.Search(r.Context(), store.SearchQuery{
		Query:  query,
		Page:   queryInt(r, "page", 0),
		Raag:   r.URL.Query().Get("raag"),
		Author: r.URL.Query().Get("author"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	logging.SearchEvent("exact", query, len(verses), time.Since(start))

	respond(w, http.StatusOK, SearchResponse{
		Query:  query,
		Verses: verses,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleFuzzySearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	query, ok := s.searchQuery(w, r)
	if !ok {
		return
	}

	limit := s.clampLimit(queryInt(r, "limit", s.cfg.DefaultLimit))
	minScore := queryFloat(r, "min_similarity", 0)
	if minScore < 0 || minScore > 1 {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "min_similarity must be between 0 and 1")
		return
	}

	start := time.Now()
	results, err := s.corpus.SearchMinScore(query, limit, minScore)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	logging.SearchEvent("fuzzy", query, len(results), time.Since(start))

	respond(w, http.StatusOK, FuzzySearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/pages/"), "/")
	page, err := strconv.Atoi(raw)
	if err != nil || page <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PAGE", "Page must be a positive integer")
		return
	}

	verses := s.corpus.Page(page)
	if len(verses) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("No verses on page %d", page))
		return
	}

	respond(w, http.StatusOK, PageInfo{
		Page:       page,
		Verses:     verses,
		TotalLines: len(verses),
	})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	rec, err := s.corpus.RandomRecord()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	respond(w, http.StatusOK, s.corpus.Stats())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only DELETE is allowed")
		return
	}

	if err := s.repo.Clear(r.Context()); err != nil {
		s.respondDomainError(w, err)
		return
	}
	if err := s.corpus.Replace(nil); err != nil {
		s.respondDomainError(w, err)
		return
	}

	logging.SecurityEvent("corpus_cleared", "api")
	respond(w, http.StatusOK, map[string]string{"message": "All verses deleted"})
}

// searchQuery extracts and bounds the q parameter shared by the search
// endpoints, writing the error response itself on failure.
func (s *Server) searchQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "MISSING_QUERY", "Query parameter q is required")
		return "", false
	}
	if len(query) > s.cfg.MaxQueryBytes {
		respondError(w, http.StatusBadRequest, "QUERY_TOO_LONG",
			fmt.Sprintf("Query must not exceed %d bytes", s.cfg.MaxQueryBytes))
		return "", false
	}
	return query, true
}

func (s *Server) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// respondDomainError maps domain errors onto HTTP status codes. Anything
// unrecognized is reported as a 500 without leaking internals.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, errors.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
	default:
		logging.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func validateRecord(rec verse.Record) error {
	if strings.TrimSpace(rec.Gurmukhi) == "" {
		return errors.NewValidation("gurmukhi_text", "gurmukhi_text must not be empty")
	}
	if rec.Page <= 0 {
		return errors.NewValidation("page_number", "page_number must be a positive integer")
	}
	if rec.Line <= 0 {
		return errors.NewValidation("line_number", "line_number must be a positive integer")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
