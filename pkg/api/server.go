package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/dixieflatline76/squareframe/config"
	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

// DefaultAddr is the loopback address the server listens on unless told otherwise.
const DefaultAddr = config.DefaultServerAddr

// Server represents the local REST/WebSocket server in front of a frame session.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	addr       string
	page       []byte
	session    *frame.Session

	// WebSocket management
	clients   map[*client]bool
	clientsMu sync.Mutex

	renders  singleflight.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithPage sets the HTML served at "/".
func WithPage(page []byte) Option {
	return func(s *Server) {
		s.page = page
	}
}

// NewServer creates a new API server for session and starts watching it for
// state changes. Call Stop to release it.
func NewServer(session *frame.Session, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		addr:    DefaultAddr,
		session: session,
		clients: make(map[*client]bool),
		stopCh:  make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}
	go s.watchSession()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("/image", s.enableCORS(s.handleImage))
	s.mux.HandleFunc("/state", s.enableCORS(s.handleState))
	s.mux.HandleFunc("/preview", s.enableCORS(s.handlePreview))
	s.mux.HandleFunc("/export", s.enableCORS(s.handleExport))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Frame-Revision")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// sameOrigin accepts socket upgrades from non-browser clients and from pages
// served by this server.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the server. It blocks until the server stops.
func (s *Server) Start() error {
	log.Printf("Local API listening on http://%s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop disconnects all clients and shuts the server down.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	return s.httpServer.Shutdown(context.Background())
}

// watchSession queues a state push to every client after each session change.
func (s *Server) watchSession() {
	updates := s.session.Updates()
	for {
		select {
		case <-s.stopCh:
			return
		case <-updates:
			// Re-arm before broadcasting so a change made during the
			// broadcast is not missed.
			updates = s.session.Updates()
			s.broadcastState()
		}
	}
}

// broadcastState queues a state message for all connected clients.
func (s *Server) broadcastState() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.queue()
	}
}

func (s *Server) register(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c] = true
	log.Debugf("Client %s connected (%d total)", c.id, len(s.clients))
}

func (s *Server) unregister(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, c)
	log.Debugf("Client %s disconnected (%d total)", c.id, len(s.clients))
}

// clientCount reports the number of connected sockets.
func (s *Server) clientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}
