package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/tilecap/internal/capture"
	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/logger"
	"github.com/bryanchriswhite/tilecap/internal/output"
	"github.com/bryanchriswhite/tilecap/internal/window"
)

// FrameSource is the read side of a capture.Manager.
type FrameSource interface {
	Window() window.WindowInfo
	Backend() capture.Kind
	State() capture.State
	FrameCount() uint64
	ConsecutiveFailures() uint64
	// Snapshot copies the latest published frame into dst.
	Snapshot(dst *frame.Buffer) (uint64, bool)
	Order() frame.ChannelOrder
}

// Status is the body of /api/status and of every websocket message.
type Status struct {
	Window   window.WindowInfo `json:"window"`
	Backend  string            `json:"backend"`
	State    string            `json:"state"`
	Frames   uint64            `json:"frames"`
	Failures uint64            `json:"consecutive_failures"`
	FPS      float64           `json:"fps"`
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	source   FrameSource
	interval time.Duration
	upgrader websocket.Upgrader

	rate rateMeter
}

// NewServer creates a server over source. interval paces the status
// stream and the fps sampler; zero means one second.
func NewServer(source FrameSource, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Server{
		router:   mux.NewRouter(),
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/ws", s.handleStatusStream)
	api.HandleFunc("/window", s.handleWindow).Methods("GET")
	api.HandleFunc("/frame", s.handleFrame).Methods("GET")
}

// Handler returns the router wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sample(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Server shutdown")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Starting server")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) sample(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.rate.observe(s.source.FrameCount(), time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.rate.observe(s.source.FrameCount(), now)
		}
	}
}

// Status snapshots the source.
func (s *Server) Status() Status {
	return Status{
		Window:   s.source.Window(),
		Backend:  s.source.Backend().String(),
		State:    s.source.State().String(),
		Frames:   s.source.FrameCount(),
		Failures: s.source.ConsecutiveFailures(),
		FPS:      s.rate.fps(),
	}
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	win := s.source.Window()
	if !win.Found {
		http.Error(w, "no window captured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// handleFrame encodes the latest frame. Query parameters: width (maximum
// width, aspect preserved), format (png or jpeg) and order (override the
// backend's channel order).
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := output.Options{Order: s.source.Order()}
	if v := q.Get("width"); v != "" {
		width, err := strconv.Atoi(v)
		if err != nil || width < 0 {
			http.Error(w, fmt.Sprintf("invalid width %q", v), http.StatusBadRequest)
			return
		}
		opts.MaxWidth = width
	}
	format, err := output.ParseFormat(q.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts.Format = format
	if v := q.Get("order"); v != "" {
		order, ok := frame.ParseChannelOrder(v)
		if !ok {
			http.Error(w, fmt.Sprintf("invalid channel order %q", v), http.StatusBadRequest)
			return
		}
		opts.Order = order
	}

	var snapshot frame.Buffer
	n, ok := s.source.Snapshot(&snapshot)
	if !ok {
		http.Error(w, "no frame captured yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Number", strconv.FormatUint(n, 10))
	if err := output.Snapshot(w, &snapshot, opts); err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("Failed to encode frame")
	}
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Drain reads so close frames are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.Status()); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// rateMeter turns successive frame counts into frames per second.
type rateMeter struct {
	mu         sync.Mutex
	lastFrames uint64
	lastAt     time.Time
	rate       float64
}

func (m *rateMeter) observe(frames uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastAt.IsZero() {
		elapsed := now.Sub(m.lastAt).Seconds()
		switch {
		case frames < m.lastFrames:
			// Counter reset by a re-Init.
			m.rate = 0
		case elapsed > 0:
			m.rate = float64(frames-m.lastFrames) / elapsed
		}
	}
	m.lastFrames = frames
	m.lastAt = now
}

func (m *rateMeter) fps() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}
