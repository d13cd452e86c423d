// Package web exposes the calendar state to the rendering
// collaborator over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/ics"
	"github.com/liveopshq/opscal/internal/ingest"
	"github.com/liveopshq/opscal/internal/state"
	"github.com/liveopshq/opscal/internal/webhook"
)

// Server serves the calendar JSON API.
type Server struct {
	cal    *state.Calendar
	logger *slog.Logger
}

// NewServer creates a server over the calendar state.
func NewServer(cal *state.Calendar, logger *slog.Logger) *Server {
	return &Server{cal: cal, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/day", s.handleDay)
	mux.HandleFunc("GET /api/fairs", s.handleFairs)
	mux.HandleFunc("POST /api/events", s.handleAdd)
	mux.HandleFunc("POST /api/events/{id}/select", s.handleSelect)
	mux.HandleFunc("DELETE /api/events/{id}", s.handleRemove)
	mux.HandleFunc("DELETE /api/events", s.handleClear)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /calendar.ics", s.handleICS)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: invalid
// files and parse failures are the caller's fault, a busy fetch is a
// conflict, webhook transport trouble is a bad gateway.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var parseErr *ingest.ParseError
	var netErr *webhook.NetworkError
	switch {
	case errors.Is(err, ingest.ErrInvalidFile), errors.As(err, &parseErr):
		status = http.StatusBadRequest
	case errors.Is(err, state.ErrFetchInProgress):
		status = http.StatusConflict
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"events":   len(s.cal.All()),
		"fetching": s.cal.Fetching(),
	})
}

// handleEvents returns either the whole store or one month's grid
// buckets, plus the active highlight.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if hl, ok := s.cal.Highlighted(); ok {
		resp["highlighted"] = hl.String()
	}

	yearStr, monthStr := r.URL.Query().Get("year"), r.URL.Query().Get("month")
	if yearStr == "" && monthStr == "" {
		resp["events"] = s.cal.All()
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad year"})
		return
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad month"})
		return
	}

	buckets := s.cal.Month(year, month)
	days := make(map[string][]event.Event, len(buckets))
	for day, events := range buckets {
		days[strconv.Itoa(day)] = events
	}
	resp["year"] = year
	resp["month"] = month
	resp["days"] = days
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := event.SearchQuery{
		Text:    r.URL.Query().Get("q"),
		FairTag: r.URL.Query().Get("fair"),
	}
	results, err := s.cal.Search(q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []event.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   map[string]string{"text": q.Text, "fair": q.FairTag},
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, err := dates.ParseISO(r.URL.Query().Get("date"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
		return
	}
	events := s.cal.EventsOn(date, r.URL.Query().Get("q"))
	if events == nil {
		events = []event.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"date":   date.String(),
		"events": events,
	})
}

func (s *Server) handleFairs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"fairs": s.cal.Fairs()})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date  string `json:"date"`
		Title string `json:"title"`
		Fair  string `json:"fair"`
		Link  string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request body"})
		return
	}

	stats, err := s.cal.AddManual(body.Date, body.Title, body.Fair, body.Link)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Imported: stats.Imported, Skipped: stats.Skipped})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	filtered, date, err := s.cal.SelectEvent(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if filtered == nil {
		filtered = []event.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"highlighted": date.String(),
		"results":     filtered,
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cal.Remove(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "event not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cal.Clear(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport accepts a multipart upload under the "file" field. The
// filename extension selects the reader.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file upload"})
		return
	}
	defer file.Close()

	records, err := ingest.Read(file, filepath.Ext(header.Filename))
	if err != nil {
		s.writeError(w, err)
		return
	}

	stats, err := s.cal.ImportRecords(records, event.SourceTabular)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Imported: stats.Imported, Skipped: stats.Skipped})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cal.FetchWebhook(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Imported: stats.Imported, Skipped: stats.Skipped})
}

func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if _, err := w.Write([]byte(ics.Export(s.cal.All()))); err != nil {
		s.logger.Error("write ics feed", "error", err)
	}
}
