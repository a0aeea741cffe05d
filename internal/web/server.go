// Package web provides the read-only HTTP status server for the fermenter controller.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/status"
	"github.com/sweeney/fermenter-controller/internal/store"
)

const (
	defaultHistoryHours = 24
	maxHistoryHours     = 504
	queryTimeout        = 5 * time.Second
)

// HistoryStore answers time-series queries for the history endpoints.
type HistoryStore interface {
	ThermalSince(ctx context.Context, channel string, since time.Time) ([]store.ThermalRecord, error)
	FlowSince(ctx context.Context, channel string, since time.Time) ([]store.FlowRecord, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistoryStore
	log        *logger.Logger
	now        func() time.Time
}

// New creates a Server that reads state from the given tracker. history may be nil, in
// which case the history endpoints answer 503. metrics may be nil.
func New(addr string, tracker *status.Tracker, history HistoryStore, metrics http.Handler, log *logger.Logger) *Server {
	s := &Server{tracker: tracker, history: history, log: log, now: time.Now}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	api := r.PathPrefix("/api/channels").Subrouter()
	api.HandleFunc("/{name}/thermal", s.handleThermal).Methods("GET")
	api.HandleFunc("/{name}/flow", s.handleFlow).Methods("GET")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warnw("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// historyRequest resolves the channel and window shared by both history endpoints.
func (s *Server) historyRequest(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	name := mux.Vars(r)["name"]
	if !s.knownChannel(name) {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return "", time.Time{}, false
	}
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusServiceUnavailable)
		return "", time.Time{}, false
	}
	hours := defaultHistoryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 || h > maxHistoryHours {
			http.Error(w, "hours must be between 1 and 504", http.StatusBadRequest)
			return "", time.Time{}, false
		}
		hours = h
	}
	return name, s.now().Add(-time.Duration(hours) * time.Hour), true
}

func (s *Server) knownChannel(name string) bool {
	snap := s.tracker.Snapshot()
	if _, ok := snap.Vessel(name); ok {
		return true
	}
	for _, f := range snap.Flows {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) handleThermal(w http.ResponseWriter, r *http.Request) {
	name, since, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	recs, err := s.history.ThermalSince(ctx, name, since)
	if err != nil {
		s.queryFailed(w, name, err)
		return
	}
	writeJSON(w, formatThermalHistory(name, since, recs))
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	name, since, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	recs, err := s.history.FlowSince(ctx, name, since)
	if err != nil {
		s.queryFailed(w, name, err)
		return
	}
	writeJSON(w, formatFlowHistory(name, since, recs))
}

func (s *Server) queryFailed(w http.ResponseWriter, channel string, err error) {
	s.log.Warnw("history query failed", "channel", channel, "error", err)
	code := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	http.Error(w, "history query failed", code)
}

func writeJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
