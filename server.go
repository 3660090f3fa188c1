package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicegate/internal/metrics"
	"github.com/oszuidwest/zwfm-voicegate/internal/server"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// Server is the read-only status server of the recorder.
type Server struct {
	status       func() types.SessionStatus
	version      *VersionChecker
	metrics      *metrics.Metrics
	eventLogPath string
	interval     time.Duration
}

// NewServer returns a Server reporting status. version, m and eventLogPath are optional.
func NewServer(status func() types.SessionStatus, version *VersionChecker, m *metrics.Metrics, eventLogPath string) *Server {
	return &Server{
		status:       status,
		version:      version,
		metrics:      m,
		eventLogPath: eventLogPath,
		interval:     types.StatusInterval,
	}
}

// handleWebSocket streams status snapshots until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	ws := server.WithWriteDeadline(conn)

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go server.RunWriter(ws, send)
	go s.runWebSocketReader(ws, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketReader reads client commands. A "status" command requests an immediate push.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Type != "status" {
			slog.Debug("ignoring WebSocket command", "type", cmd.Type)
			continue
		}
		select {
		case statusUpdate <- struct{}{}:
		default:
		}
	}
}

// runWebSocketEventLoop pushes status on every tick and on request.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(send)

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
		case <-ticker.C:
		}
		if !trySend(s.buildWSStatus()) {
			return
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:    "status",
		Session: s.status(),
		Version: s.version.Info(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	server.WriteJSON(w, http.StatusOK, s.buildWSStatus())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLogPath == "" {
		http.Error(w, "Event log not configured", http.StatusNotFound)
		return
	}
	q, err := server.ParseEventQuery(r)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err)
		return
	}
	events, more, err := eventlog.ReadLast(s.eventLogPath, q.Limit, q.Offset, q.Filter)
	if err != nil {
		slog.Error("failed to read event log", "error", err)
		server.WriteError(w, http.StatusInternalServerError, fmt.Errorf("read event log"))
		return
	}
	server.WriteJSON(w, http.StatusOK, server.EventsResponse{Events: events, HasMore: more})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	code := http.StatusOK
	if st.State == types.SessionFailed {
		code = http.StatusServiceUnavailable
	}
	server.WriteJSON(w, code, map[string]string{"state": string(st.State)})
}

// SetupRoutes returns an [http.Handler] configured with all status routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins serving on port in the background.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start(port int) *http.Server {
	addr := fmt.Sprintf(":%d", port)
	slog.Info("starting status server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
