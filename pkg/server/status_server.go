// Package server exposes the service status over HTTP: a JSON snapshot, a
// websocket feed of status events and the prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realtime-ai/asr-indicator/pkg/pipeline"
	"github.com/realtime-ai/asr-indicator/pkg/session"
)

const (
	clientBuffer    = 64
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// StateReader reports the session state.
type StateReader interface {
	State() session.State
}

// QueueReader reports how many segments await transcription.
type QueueReader interface {
	Depth() int
}

// Config holds the configuration for the status server.
type Config struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:9090").
	Addr string

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int
}

// Status is the body of GET /status.
type Status struct {
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
}

// StatusServer serves /status, /events and /metrics.
type StatusServer struct {
	config Config
	state  StateReader
	queue  QueueReader
	bus    pipeline.Bus
	logger *slog.Logger

	mux      *http.ServeMux
	upgrader websocket.Upgrader

	clients   map[string]*websocket.Conn
	clientsMu sync.RWMutex

	// Closed when the server shuts down; event feeds end with it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a status server. gatherer backs /metrics; nil uses the
// default registry.
func New(cfg Config, state StateReader, queue QueueReader, bus pipeline.Bus, gatherer prometheus.Gatherer, logger *slog.Logger) *StatusServer {
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = 4096
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &StatusServer{
		config:  cfg,
		state:   state,
		queue:   queue,
		bus:     bus,
		logger:  logger.With("component", "server"),
		mux:     http.NewServeMux(),
		clients: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		ctx:    ctx,
		cancel: cancel,
	}

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the HTTP handler.
func (s *StatusServer) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address until ctx is done, then shuts the
// server down and closes every event feed.
func (s *StatusServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}

func (s *StatusServer) snapshot() Status {
	return Status{
		State:      s.state.State().String(),
		QueueDepth: s.queue.Depth(),
	}
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Warn("failed to write status", "error", err)
	}
}

// handleEvents streams status events to a websocket client. The first
// message is a snapshot of the current status.
func (s *StatusServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()[:8]
	events := make(chan pipeline.Event, clientBuffer)
	s.bus.SubscribeAll(events)
	s.registerClient(id, conn)
	defer func() {
		s.bus.Unsubscribe(events)
		s.unregisterClient(id)
		conn.Close()
	}()

	// Clients only listen; reading detects when they go away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "client", id, "error", err)
				}
				return
			}
		}
	}()

	if err := s.write(conn, pipeline.NewEvent("status", s.snapshot())); err != nil {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "service stopping"),
				time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case evt := <-events:
			if err := s.write(conn, evt); err != nil {
				s.logger.Debug("websocket write failed", "client", id, "error", err)
				return
			}
		}
	}
}

func (s *StatusServer) write(conn *websocket.Conn, evt pipeline.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(evt)
}

func (s *StatusServer) registerClient(id string, conn *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[id] = conn
	s.clientsMu.Unlock()

	s.logger.Debug("status client connected", "client", id, "remote", conn.RemoteAddr().String())
}

func (s *StatusServer) unregisterClient(id string) {
	s.clientsMu.Lock()
	delete(s.clients, id)
	s.clientsMu.Unlock()

	s.logger.Debug("status client disconnected", "client", id)
}

// ClientCount returns the number of connected event feeds.
func (s *StatusServer) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
