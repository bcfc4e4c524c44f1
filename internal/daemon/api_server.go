package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"drowsy/internal/api"
	"drowsy/internal/config"
	"drowsy/internal/logging"
	"drowsy/internal/services"
	"drowsy/internal/session"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	upgrader websocket.Upgrader
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	baseCtx  context.Context
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", authMiddleware(s.token, s.handleSession))
	mux.HandleFunc("POST /api/session/start", authMiddleware(s.token, s.handleStart))
	mux.HandleFunc("POST /api/session/stop", authMiddleware(s.token, s.handleStop))
	mux.HandleFunc("GET /api/session/events", authMiddleware(s.token, s.handleEvents))
	mux.HandleFunc("GET /api/sessions", authMiddleware(s.token, s.handleSessions))
	mux.HandleFunc("GET /api/sessions/{id}", authMiddleware(s.token, s.handleSessionDetail))
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	metrics := s.daemon.Metrics().Handler()
	mux.HandleFunc("GET /metrics", authMiddleware(s.token, metrics.ServeHTTP))
	return withRequestID(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	// WriteTimeout stays unset so the event stream is not cut off.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.baseCtx = ctx
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

// address reports the bound listener address, or the configured bind when idle.
func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: api.FromSnapshot(s.daemon.Snapshot())})
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.StartSession(s.sessionContext(r))
	view := api.FromSnapshot(snap)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: view})
	case errors.Is(err, session.ErrClosed):
		s.writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "daemon is shutting down", Session: &view})
	case errors.Is(err, session.ErrAborted):
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "start cancelled by stop request", Session: &view})
	case errors.Is(err, context.Canceled):
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "start cancelled", Session: &view})
	default:
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: session.UserMessage(err), Session: &view})
	}
}

// sessionContext detaches a session start from the request so a client that
// disconnects mid-start does not fail the session. The request id is kept.
func (s *apiServer) sessionContext(r *http.Request) context.Context {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if id, ok := services.RequestIDFromContext(r.Context()); ok {
		ctx = services.WithRequestID(ctx, id)
	}
	return ctx
}

func (s *apiServer) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: api.FromSnapshot(s.daemon.StopSession())})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	if !s.daemon.broadcaster.add(conn, s.daemon.Snapshot()) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	records, err := s.daemon.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromRecords(records)})
}

func (s *apiServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	rec, events, err := s.daemon.SessionDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionDetailResponse{Session: api.FromRecord(*rec), Events: api.FromEvents(events)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, FromStatus(s.daemon.Status()))
}

// FromStatus converts daemon status to its API representation.
func FromStatus(st Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:        st.Running,
		PID:            st.PID,
		Session:        api.FromSnapshot(st.Session),
		CameraDevice:   st.CameraDevice,
		ServiceURL:     st.ServiceURL,
		HistoryPath:    st.HistoryPath,
		LogPath:        st.LogPath,
		LockFilePath:   st.LockFilePath,
		APIBind:        st.APIBind,
		WatchingDevice: st.WatchingDevice,
		Subscribers:    st.Subscribers,
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

// withRequestID tags each request context with a correlation id.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
