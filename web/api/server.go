package api

import (
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

// Store interface for run persistence
type Store interface {
	ListAll() ([]*domain.RunMetadata, error)
	LoadLatest(runID string) (*domain.Run, error)
	LoadVersion(runID string, version int) (*domain.Run, error)
	LoadSources(runID string, version int) (domain.SourceMap, error)
}

// Server is the HTTP API server
type Server struct {
	store Store
	addr  string
	mux   *http.ServeMux
	hub   *EventHub
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store: store,
		addr:  addr,
		mux:   http.NewServeMux(),
		hub:   NewEventHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/events", s.eventsHandler())
}

// Handler returns the server's route multiplexer
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.hub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all connected clients
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
