package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"drowsy/internal/api"
	"drowsy/internal/daemon"
	"drowsy/internal/logging"
	"drowsy/internal/session"
)

// ServiceName is the JSON-RPC receiver name clients call through.
const ServiceName = "Drowsy"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun drowsy daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("session start requested")
	snap, err := s.daemon.StartSession(s.ctx)
	resp.Session = api.FromSnapshot(snap)
	if err != nil {
		resp.Started = false
		resp.Message = session.UserMessage(err)
		return nil
	}
	resp.Started = snap.State.HoldsCamera()
	if resp.Started {
		resp.Message = "detection session active"
	} else {
		resp.Message = "session is " + snap.State.String()
	}
	s.logger.Info("session started via IPC",
		logging.String(logging.FieldEventType, "ipc_session_start"),
		logging.String(logging.FieldSessionID, snap.SessionID))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("session stop requested")
	snap := s.daemon.StopSession()
	resp.Stopped = true
	resp.Session = api.FromSnapshot(snap)
	s.logger.Info("session stopped via IPC",
		logging.String(logging.FieldEventType, "ipc_session_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.FromStatus(s.daemon.Status())
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	records, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Sessions = api.FromRecords(records)
	return nil
}

func (s *service) SessionDetail(req SessionDetailRequest, resp *SessionDetailResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("session id is required")
	}
	rec, events, err := s.daemon.SessionDetail(s.ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}
	resp.Session = api.FromRecord(*rec)
	resp.Events = api.FromEvents(events)
	return nil
}

func (s *service) Prune(req PruneRequest, resp *PruneResponse) error {
	if req.OlderThanSeconds <= 0 {
		return errors.New("prune requires a positive age")
	}
	cutoff := time.Now().Add(-time.Duration(req.OlderThanSeconds) * time.Second)
	removed, err := s.daemon.PruneHistory(s.ctx, cutoff)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
