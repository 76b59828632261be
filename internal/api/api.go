// internal/api/api.go
// Provides the HTTP side of the server: health, peer listing and the
// websocket entry point.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/erilali/bombnet/internal/events"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/nats-io/nats.go"
)

const version = "1.0.0"

// HubStatus is the read-only view of the hub the API reports on.
type HubStatus interface {
	IsAccepting() bool
	ConnectedCount() int
	Peers() []string
}

type streamInfoer interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

type natsStatuser interface {
	Status() nats.Status
}

type Server struct {
	hub HubStatus
	nc  natsStatuser
	js  streamInfoer
	ws  http.Handler
	log *logger.Logger
	now func() time.Time
}

type Option func(*Server)

// WithNATS reports the connection and the GAME stream in /health. Either may
// be nil.
func WithNATS(nc *nats.Conn, js nats.JetStreamContext) Option {
	return func(s *Server) {
		if nc != nil {
			s.nc = nc
		}
		if js != nil {
			s.js = js
		}
	}
}

// WithWebSocket mounts h at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(hub HubStatus, opts ...Option) *Server {
	s := &Server{hub: hub, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewLogger("api")
	}
	return s
}

// Handler returns the routes served by the HTTP listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/peers", s.peers)
	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	natsStatus := "disconnected"
	if s.nc != nil && s.nc.Status() == nats.CONNECTED {
		natsStatus = "connected"
	}
	health := map[string]interface{}{
		"status":    "ok",
		"version":   version,
		"accepting": s.hub.IsAccepting(),
		"connected": s.hub.ConnectedCount(),
		"nats":      natsStatus,
	}
	if s.js != nil {
		var stream map[string]interface{}
		info, err := s.js.StreamInfo(events.StreamName)
		if err == nil {
			stream = map[string]interface{}{
				"messages":  info.State.Msgs,
				"bytes":     info.State.Bytes,
				"subjects":  info.Config.Subjects,
				"retention": fmt.Sprintf("%v", info.Config.MaxAge),
			}
		} else {
			stream = map[string]interface{}{"error": err.Error()}
		}
		health["jetstream"] = map[string]interface{}{
			"streams": map[string]interface{}{events.StreamName: stream},
		}
	}
	s.writeJSON(w, health)
}

func (s *Server) peers(w http.ResponseWriter, r *http.Request) {
	peers := s.hub.Peers()
	s.writeJSON(w, map[string]interface{}{
		"peers":     peers,
		"count":     len(peers),
		"timestamp": s.now(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Failed to write response: %v", err)
	}
}
