package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/psalter/core/errors"
	"github.com/FocuswithJustin/psalter/internal/logging"
	"github.com/FocuswithJustin/psalter/internal/server"
)

// maxQueryLength caps the free-text reference accepted by /api/psalm/lookup.
const maxQueryLength = 256

// APIResponse is the error response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// MaxVerseResponse answers /api/psalm/max.
type MaxVerseResponse struct {
	Psalm   int    `json:"psalm"`
	MaxVers int    `json:"max_vers"`
	Bron    string `json:"bron"`
}

// VerseResponse answers /api/psalm/vers.
type VerseResponse struct {
	Psalm int    `json:"psalm"`
	Vers  int    `json:"vers"`
	Tekst string `json:"tekst"`
	Bron  string `json:"bron"`
}

// HealthInfo answers /health.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Psalter API",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /api/psalm/lookup?query=",
			"GET /api/psalm/max?psalm=",
			"GET /api/psalm/vers?psalm=&vers=",
			"GET /api/psalm/healthz",
			"GET /health",
			"GET /metrics",
		},
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query := server.SanitizeUserInput(r.URL.Query().Get("query"))
	if len(query) > maxQueryLength {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("query exceeds %d bytes", maxQueryLength))
		return
	}

	env, err := s.lookup.Lookup(r.Context(), query)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "CONTRACT_VIOLATION", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleMax(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	psalm, err := intParam(r, "psalm")
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	max, err := s.lookup.MaxVerse(r.Context(), psalm)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MaxVerseResponse{
		Psalm:   psalm,
		MaxVers: max,
		Bron:    s.lookup.SourceURL(psalm),
	})
}

func (s *Server) handleVerse(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	psalm, err := intParam(r, "psalm")
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	verse, err := intParam(r, "vers")
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	text, err := s.lookup.Verse(r.Context(), psalm, verse)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerseResponse{
		Psalm: psalm,
		Vers:  verse,
		Tekst: text,
		Bron:  s.lookup.SourceURL(psalm),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, HealthInfo{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, HealthInfo{
		Status:  "ok",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
	return false
}

// intParam reads a required integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, errors.NewInvalidRequest(name, "missing query parameter "+name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequest(name, name+" must be an integer")
	}
	return n, nil
}

// respondEngineError maps engine errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, errors.ErrVerseNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		logging.WarnContext(r.Context(), "source lookup failed", "path", r.URL.Path, "error", err.Error())
		respondError(w, r, http.StatusBadGateway, "SOURCE_UNAVAILABLE", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			RequestID: logging.GetRequestID(r.Context()),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	writeJSON(w, status, response)
}
