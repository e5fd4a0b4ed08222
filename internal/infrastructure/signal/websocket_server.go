package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/internal/core/services"
	apperrors "carebridge/pkg/errors"
	rlog "carebridge/pkg/logger"
	"carebridge/pkg/tracing"
	"carebridge/pkg/validation"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
	// NewLimiter builds the inbound message limiter of each connection; nil disables limiting.
	NewLimiter func() *rate.Limiter
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 64 * 1024,
	}
}

// Authenticator resolves who is connecting from the upgrade request.
type Authenticator func(r *http.Request) (domain.ParticipantID, domain.Role, error)

// QueryAuthenticator trusts the participant_id and role query parameters.
func QueryAuthenticator(r *http.Request) (domain.ParticipantID, domain.Role, error) {
	q := r.URL.Query()
	id := q.Get("participant_id")
	if err := validation.ValidateID(id, "participant_id"); err != nil {
		return "", "", apperrors.NewInvalidInputError(err.Error())
	}
	role, err := domain.ParseRole(q.Get("role"))
	if err != nil {
		return "", "", apperrors.NewInvalidInputError(err.Error())
	}
	return domain.ParticipantID(id), role, nil
}

// TokenAuthenticator reads a participant token from the token query
// parameter or a Bearer Authorization header.
func TokenAuthenticator(auth *services.AuthService) Authenticator {
	return func(r *http.Request) (domain.ParticipantID, domain.Role, error) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			return "", "", apperrors.NewUnauthorizedError("participant token required")
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			return "", "", apperrors.NewUnauthorizedError(err.Error())
		}
		return claims.ParticipantID, claims.Role, nil
	}
}

// WebSocketServer is the realtime signaling transport. Each connection has
// one reader and one writer goroutine; all outbound traffic goes through the
// writer so a participant receives events in the order they were queued.
type WebSocketServer struct {
	signaling    ports.SignalingService
	authenticate Authenticator
	upgrader     websocket.Upgrader
	opts         Options

	connections map[*connection]struct{}
	mu          sync.RWMutex

	logger *zap.SugaredLogger
}

func NewWebSocketServer(signaling ports.SignalingService, authenticate Authenticator, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if authenticate == nil {
		authenticate = QueryAuthenticator
	}
	defaults := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaults.PongTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}

	s := &WebSocketServer{
		signaling:    signaling,
		authenticate: authenticate,
		opts:         opts,
		connections:  make(map[*connection]struct{}),
		logger:       logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID, role, err := s.authenticate(r)
	if err != nil {
		status := http.StatusBadRequest
		if appErr := apperrors.GetAppError(err); appErr != nil {
			status = appErr.HTTPStatus
		}
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "participant_id", participantID, "error", err)
		return
	}

	conn := newConnection(participantID, role, ws, s.opts.SendBuffer)
	if s.opts.NewLimiter != nil {
		conn.limiter = s.opts.NewLimiter()
	}

	s.mu.Lock()
	s.connections[conn] = struct{}{}
	s.mu.Unlock()

	ctx := rlog.WithParticipantID(context.Background(), string(participantID))
	go s.writePump(conn)

	if err := s.signaling.Connect(ctx, participantID, role, conn); err != nil {
		s.sendError(conn, err)
		conn.Close()
		s.forget(conn)
		return
	}
	s.logger.Infow("participant connected via WebSocket", "participant_id", participantID, "role", role)

	s.readPump(ctx, conn)

	conn.Close()
	s.signaling.Disconnect(ctx, participantID, conn)
	s.forget(conn)
	s.logger.Infow("participant disconnected", "participant_id", participantID)
}

func (s *WebSocketServer) readPump(ctx context.Context, conn *connection) {
	conn.ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message from participant", "participant_id", conn.id, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if conn.limiter != nil && !conn.limiter.Allow() {
			s.sendError(conn, apperrors.NewRateLimitError())
			continue
		}

		var msg domain.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, apperrors.NewInvalidInputError("malformed message"))
			continue
		}

		if err := s.handleMessage(ctx, conn, msg); err != nil {
			s.logger.Debugw("error handling message from participant",
				"participant_id", conn.id,
				"type", msg.Type,
				"error", err,
			)
			s.sendError(conn, err)
		}
	}
}

func (s *WebSocketServer) writePump(conn *connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case msg := <-conn.send:
			if err := s.write(conn, msg); err != nil {
				conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-conn.done:
			// Flush what was queued before the close, then say goodbye.
			for {
				select {
				case msg := <-conn.send:
					if err := s.write(conn, msg); err != nil {
						return
					}
				default:
					_ = conn.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(s.opts.WriteTimeout))
					return
				}
			}
		}
	}
}

func (s *WebSocketServer) write(conn *connection, msg domain.Envelope) error {
	_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := conn.ws.WriteJSON(msg); err != nil {
		s.logger.Debugw("error writing to participant", "participant_id", conn.id, "error", err)
		return err
	}
	return nil
}

func (s *WebSocketServer) handleMessage(ctx context.Context, conn *connection, msg domain.Envelope) error {
	ctx, span := tracing.TraceWebSocketMessage(ctx, string(msg.Type), string(conn.id))
	defer span.End()
	tracing.AddSpanAttributes(ctx, messageAttributes(conn.role, msg)...)

	err := s.dispatch(ctx, conn, msg)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *WebSocketServer) dispatch(ctx context.Context, conn *connection, msg domain.Envelope) error {
	if msg.Type == "" {
		return apperrors.NewInvalidInputError("message type is required")
	}
	if msg.CallerType != "" && msg.CallerType != conn.role {
		return apperrors.NewInvalidInputError("callerType does not match the connected role")
	}

	if kind, ok := domain.SignalKindFor(msg.Type); ok {
		if msg.CallID == "" {
			return apperrors.NewInvalidInputError("callId is required")
		}
		s.signaling.Forward(ctx, msg.CallID, conn.id, kind, msg.Payload)
		return nil
	}

	switch msg.Type {
	case domain.EventProviderReady:
		if err := conn.requireRole(domain.RoleProvider); err != nil {
			return err
		}
		return s.signaling.ProviderReady(ctx, conn.id)

	case domain.EventJoinWaitingRoom:
		if err := conn.requireRole(domain.RolePatient); err != nil {
			return err
		}
		c, err := s.signaling.JoinWaitingRoom(ctx, msg.ConsultationID, conn.id)
		if err != nil {
			return err
		}
		return conn.Send(domain.Envelope{
			Type:           domain.EventWaitingRoomJoined,
			ConsultationID: c.ID,
		})

	case domain.EventStartCall:
		if err := conn.requireRole(domain.RoleProvider); err != nil {
			return err
		}
		if msg.ProviderID != "" && msg.ProviderID != conn.id {
			return apperrors.NewInvalidInputError("providerId does not match the connected provider")
		}
		_, err := s.signaling.StartCall(ctx, msg.ConsultationID, conn.id)
		return err

	case domain.EventAcceptCall:
		return s.signaling.AcceptCall(ctx, msg.CallID, conn.id)

	case domain.EventEndCall:
		return s.signaling.EndCall(ctx, msg.CallID, conn.id)

	default:
		return apperrors.NewInvalidInputError("unknown message type: " + string(msg.Type))
	}
}

func messageAttributes(role domain.Role, msg domain.Envelope) []attribute.KeyValue {
	attrs := []attribute.KeyValue{tracing.ParticipantRole.String(string(role))}
	if msg.CallID != "" {
		attrs = append(attrs, tracing.CallIDKey.String(string(msg.CallID)))
	}
	if msg.ConsultationID != "" {
		attrs = append(attrs, tracing.ConsultationIDKey.String(string(msg.ConsultationID)))
	}
	return attrs
}

// sendError reports a failed request to the sender only. Errors without a
// code are reported as internal so their text never reaches the client.
func (s *WebSocketServer) sendError(conn *connection, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		s.logger.Errorw("Unhandled signaling error", "participant_id", conn.id, "error", err)
		appErr = apperrors.NewInternalError("internal error")
	}
	_ = conn.Send(domain.Envelope{
		Type:    domain.EventError,
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

func (s *WebSocketServer) forget(conn *connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Shutdown closes every open connection.
func (s *WebSocketServer) Shutdown() {
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": s.ConnectionCount(),
	})
}
