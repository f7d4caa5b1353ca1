// Package handler contains HTTP handlers for the tabsync API.
//
// This file implements the search usage endpoints called by the extension
// on every search action.
//
// Routes:
//   - POST    /api/increment-search   -> IncrementSearch
//   - POST    /api/check-search-usage -> CheckUsage
//   - OPTIONS on both                 -> CORS preflight
//
// These routes are PUBLIC: the extension calls them directly with only an
// email in the body, so every response carries permissive CORS headers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/service"
)

// SearchHandler handles search usage recording and quota queries.
type SearchHandler struct {
	usage  service.UsageService
	logger *slog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(usage service.UsageService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		usage:  usage,
		logger: logger,
	}
}

// RegisterRoutes registers search usage routes on the provided mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/increment-search", h.IncrementSearch)
	mux.HandleFunc("OPTIONS /api/increment-search", handlePreflight("POST, OPTIONS"))
	mux.HandleFunc("POST /api/check-search-usage", h.CheckUsage)
	mux.HandleFunc("OPTIONS /api/check-search-usage", handlePreflight("POST, OPTIONS"))
}

type searchRequest struct {
	Email string `json:"email"`
}

// IncrementSearch records one search event and reports quota state.
// The usage row is appended regardless of the quota outcome; the response
// only advises the caller.
func (h *SearchHandler) IncrementSearch(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("usage.increment", "Email is required"))
		return
	}

	usage, err := h.usage.IncrementSearch(r.Context(), req.Email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if usage.Degraded {
		// The insert succeeded but the read-back count failed; never fail
		// the caller for that.
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"message":     "Search recorded",
			"searchCount": usage.SearchCount,
			"remaining":   usage.Remaining,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Search recorded successfully",
		"searchCount":  usage.SearchCount,
		"remaining":    usage.Remaining,
		"limitReached": usage.LimitReached,
		"isPro":        usage.IsPro,
	})
}

// CheckUsage reports quota state without recording a search.
func (h *SearchHandler) CheckUsage(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("usage.check", "Email is required"))
		return
	}

	check, err := h.usage.CheckUsage(r.Context(), req.Email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if check.IsPro {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"searchCount": 0,
			"canSearch":   true,
			"isPro":       true,
		})
		return
	}

	var resetsAt *string
	if check.ResetsAt != nil {
		s := check.ResetsAt.UTC().Format(time.RFC3339)
		resetsAt = &s
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"searchCount": check.SearchCount,
		"canSearch":   check.CanSearch,
		"remaining":   check.Remaining,
		"resetsAt":    resetsAt,
		"isPro":       false,
	})
}
