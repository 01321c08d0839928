package control

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"evm-volbot/internal/volume"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type startRequest struct {
	Chain     string    `json:"chain"`
	Overrides Overrides `json:"overrides"`
}

// Server is the HTTP control surface over a Manager.
type Server struct {
	manager *Manager
	router  *mux.Router

	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[chan volume.Event]struct{}
}

func NewServer(m *Manager) *Server {
	s := &Server{
		manager: m,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[chan volume.Event]struct{}{},
	}
	m.Subscribe(s.broadcast)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Chain == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "chain is required"})
		return
	}

	err := s.manager.Start(context.Background(), req.Chain, req.Overrides)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, apiResponse{OK: true})
	case errors.Is(err, volume.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, apiResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: err.Error()})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(); err != nil {
		writeJSON(w, http.StatusConflict, apiResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// handleEvents upgrades to a websocket and streams bot events as JSON.
// Slow clients get dropped rather than blocking the broadcaster.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[warn] control: ws upgrade: %v", err)
		return
	}

	ch := make(chan volume.Event, wsSendBuffer)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ch)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	// Reader only consumes control frames; any read error ends the
	// session.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) broadcast(ev volume.Event) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- ev:
		default:
			// buffer full; the client is too slow, drop it
			delete(s.clients, ch)
			close(ch)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[warn] control: write response: %v", err)
	}
}
