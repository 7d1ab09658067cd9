// Package ws is the realtime session handler: it authenticates the
// websocket handshake, runs the per-connection state machine
// (Connecting → Authenticated → Closed), and dispatches the validated
// inbound event set to the delivery protocol.
//
// The bearer credential is checked exactly once, before the upgrade; events
// on an established connection are not re-authenticated. Crypto and
// persistence failures are reported back to the originating connection
// only; malformed or unknown inbound events are dropped without closing
// the connection.
package ws

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peertutor/tutorchat/internal/common"
	"github.com/peertutor/tutorchat/internal/logging"
	"github.com/peertutor/tutorchat/internal/server/auth"
	"github.com/peertutor/tutorchat/internal/server/chat"
	"github.com/peertutor/tutorchat/internal/server/events"
	"github.com/peertutor/tutorchat/internal/server/presence"
	"github.com/peertutor/tutorchat/internal/server/repositories/repomanager"
)

// Server upgrades and drives chat connections.
type Server struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	chat        *chat.Service
	registry    presence.Registry
	jwtSecret   []byte
	logger      logging.Logger
	upgrader    websocket.Upgrader
}

// NewServer constructs the realtime session handler.
func NewServer(db *sql.DB, m repomanager.RepositoryManager, chatSvc *chat.Service, registry presence.Registry, secretKey string, logger logging.Logger) *Server {
	return &Server{
		db:          db,
		repomanager: m,
		chat:        chatSvc,
		registry:    registry,
		jwtSecret:   []byte(secretKey),
		logger:      logger.With("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The platform serves pages and chat from the same origin;
			// cross-origin checks happen at the proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS is the websocket endpoint. The bearer token comes from the
// handshake (query parameter or Authorization header); an invalid or
// missing credential rejects the connection before any event handler
// exists.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	userID, sessionID, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(uuid.NewString(), socket)
	conn.authenticate(user.ID, user.FullName, sessionID)

	s.logger.Info(ctx, "connection established", "user", user.ID, "conn", conn.ID())

	go conn.writePump()

	s.registry.Register(user.ID, user.FullName, conn)

	snapshot := s.registry.Snapshot()
	online := make([]events.OnlineUser, 0, len(snapshot))
	for _, e := range snapshot {
		online = append(online, events.OnlineUser{UserID: e.UserID, FullName: e.FullName})
	}
	conn.Send(events.TypeOnlineUsers, online)

	s.readLoop(ctx, conn)

	s.chat.LeaveAll(conn)
	s.registry.Unregister(user.ID, conn)
	conn.close()

	s.logger.Info(ctx, "connection closed", "user", user.ID, "conn", conn.ID())
}

// readLoop processes the connection's events sequentially, which is what
// preserves per-sender submission order all the way through persistence.
func (s *Server) readLoop(ctx context.Context, conn *Conn) {
	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(timeNow().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(timeNow().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		parsed, err := events.ParseInbound(data)
		if err != nil {
			// Unknown and malformed events are dropped, not fatal.
			s.logger.Debug(ctx, "inbound event dropped", "conn", conn.ID(), "error", err)
			continue
		}

		s.dispatch(ctx, conn, parsed)
	}
}

func (s *Server) dispatch(ctx context.Context, conn *Conn, parsed any) {
	switch p := parsed.(type) {
	case events.JoinConversation:
		s.chat.Join(chat.ConversationID(conn.userID, p.OtherUserID), conn)

	case events.LeaveConversation:
		s.chat.Leave(chat.ConversationID(conn.userID, p.OtherUserID), conn)

	case events.SendMessage:
		_, err := s.chat.SendMessage(ctx, conn.userID, conn.fullName, p.ReceiverID, p.Message, p.Encrypted())
		if err != nil {
			conn.Send(events.TypeMessageError, events.MessageError{Error: sendErrorText(err)})
		}

	case events.TypingStart:
		s.chat.TypingStart(conn.userID, conn.fullName, p.ReceiverID)

	case events.TypingStop:
		s.chat.TypingStop(conn.userID, conn.fullName, p.ReceiverID)

	case events.MarkRead:
		if err := s.chat.MarkAsRead(ctx, conn.userID, p.OtherUserID); err != nil {
			conn.Send(events.TypeMessageError, events.MessageError{Error: "could not mark messages as read"})
		}

	case events.SessionConfirmed:
		s.chat.EmitToUser(p.ToUserID, events.TypeSessionUpdate, events.SessionUpdate{
			Type: events.TypeSessionConfirmed, Session: p.Session, Message: p.Message,
		})

	case events.SessionCancelled:
		s.chat.EmitToUser(p.ToUserID, events.TypeSessionUpdate, events.SessionUpdate{
			Type: events.TypeSessionCancelled, Session: p.Session, Message: p.Message,
		})
	}
}

// timeNow is a seam for deadline tests.
var timeNow = time.Now

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, common.ErrorEmptyMessage):
		return "message cannot be empty"
	case errors.Is(err, common.ErrorCrypto):
		return "message could not be encrypted"
	default:
		return "message could not be delivered"
	}
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}
