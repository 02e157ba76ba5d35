// Package transport implements the HTTP surface: the upgrade route
// that hands connections off to internal/room's session protocol, plus
// health and metrics endpoints. It owns everything socket-shaped so
// internal/room never has to know gobwas/ws exists.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/global"
	"github.com/kalgynirae/sudoku/internal/metrics"
	"github.com/kalgynirae/sudoku/internal/protocol"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/roomid"
)

const realtimePrefix = "/api/v1/realtime"

// Config bundles the transport-layer tunables that are not otherwise
// owned by internal/room.
type Config struct {
	CPURejectThreshold float64 // percent; 0 disables the CPU check
	MaxConnections     int     // 0 disables the connection-count check
	SessionRatePerSec  float64
	SessionRateBurst   int
}

// Server wires internal/global to the WebSocket upgrade path.
type Server struct {
	global *global.State
	guard  *ResourceGuard
	cfg    Config
	logger zerolog.Logger

	mux *http.ServeMux

	shuttingDown int32 // atomic bool
}

// New returns a Server ready to be handed to an *http.Server as its
// Handler.
func New(g *global.State, cfg Config, logger zerolog.Logger) *Server {
	s := &Server{
		global: g,
		guard:  NewResourceGuard(cfg.CPURejectThreshold, cfg.MaxConnections, logger),
		cfg:    cfg,
		logger: logger,
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc(realtimePrefix, s.handleRealtime)
	s.mux.HandleFunc(realtimePrefix+"/", s.handleRealtime)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartMonitoring begins the resource guard's periodic CPU sampling.
func (s *Server) StartMonitoring(ctx context.Context, interval time.Duration) {
	s.guard.StartMonitoring(ctx, interval)
}

// PrepareShutdown makes the upgrade route reject new connections; the
// caller is still responsible for the *http.Server's own Shutdown.
func (s *Server) PrepareShutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleRealtime implements the /api/v1/realtime[/<roomId>] route: no
// id mints a fresh room, a present id joins an existing one or 404s.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if accept, reason := s.guard.ShouldAcceptConnection(); !accept {
		metrics.IncSessionRejected(metrics.RejectReasonResources)
		s.logger.Warn().Str("reason", reason).Msg("connection rejected by resource guard")
		http.Error(w, "server overloaded", http.StatusServiceUnavailable)
		return
	}

	roomState, err := s.resolveRoom(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, global.ErrNotFound) {
			metrics.IncSessionRejected(metrics.RejectReasonNotFound)
			http.NotFound(w, r)
			return
		}
		s.logger.Error().Err(err).Msg("failed to resolve room")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess, err := roomState.NewSession()
	if err != nil {
		metrics.IncSessionRejected(metrics.RejectReasonRoomFull)
		s.rejectUpgraded(netConn, err)
		return
	}

	s.guard.ConnectionOpened()
	metrics.IncSessionsActive()
	metrics.SetRoomsActive(s.global.RoomCount())

	limiter := newSessionLimiter(s.cfg.SessionRatePerSec, s.cfg.SessionRateBurst)
	conn := newWSConn(netConn, limiter, s.logger)

	go s.runSession(roomState, sess, conn)
}

func (s *Server) runSession(roomState *room.State, sess *room.Session, conn *wsConn) {
	defer func() {
		if err := sess.Cursor.Tx.Close(); err != nil {
			s.logger.Warn().Err(err).Uint64("session_id", sess.SessionID).Msg("failed to release cursor slot")
		}
		sess.DiffRx.Close()
		conn.Close()
		s.guard.ConnectionClosed()
		metrics.DecSessionsActive()
	}()

	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := conn.WriteMessage(initCtx, mustEncodeInit(roomState))
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to send init frame")
		return
	}

	if sessErr := room.RunSession(context.Background(), roomState, sess, conn); sessErr != nil {
		logEvent := s.logger.Warn()
		if sessErr.Severity == room.SeverityError {
			logEvent = s.logger.Error()
		}
		logEvent.Err(sessErr.Err).Uint64("session_id", sess.SessionID).Msg("session ended")
	}
}

func mustEncodeInit(roomState *room.State) []byte {
	data, err := protocol.EncodeResponse(protocol.InitResponse{
		RoomID:     roomState.RoomID.String(),
		BoardState: roomState.Board(),
	})
	if err != nil {
		// InitResponse always encodes; board.State has no cyclic or
		// unmarshalable fields.
		panic(err)
	}
	return data
}

// rejectUpgraded sends an error frame over an already-upgraded
// connection and closes it. Used when the room has no free session
// slot: the room-full check runs after the upgrade, so the client is
// told over the socket rather than with an HTTP status.
func (s *Server) rejectUpgraded(netConn net.Conn, roomErr error) {
	data, err := protocol.EncodeResponse(protocol.ErrorResponse{Message: roomErr.Error()})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode room-full error response")
		netConn.Close()
		return
	}
	if err := wsutil.WriteServerMessage(netConn, ws.OpText, data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send room-full error response")
	}
	netConn.Close()
}

// resolveRoom parses the optional room id suffix from path and either
// loads the existing room or mints a fresh one.
func (s *Server) resolveRoom(ctx context.Context, path string) (*room.State, error) {
	suffix := strings.TrimPrefix(path, realtimePrefix)
	suffix = strings.Trim(suffix, "/")
	if suffix == "" {
		return s.global.CreateRoom()
	}
	id, err := roomid.Parse(suffix)
	if err != nil {
		return nil, global.ErrNotFound
	}
	return s.global.GetRoom(ctx, id)
}
