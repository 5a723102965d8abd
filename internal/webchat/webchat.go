// Package webchat serves a browser chat transport over WebSocket.
//
// Every connection is one conversation. The server greets the user on connect and answers
// each inbound message frame with one outbound frame per bot message.
package webchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/bot"
	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types.
const (
	FrameSession = "session"
	FrameMessage = "message"
	FrameError   = "error"
)

const (
	DefaultMaxMessageSize = 64 * 1024
	DefaultWriteTimeout   = 10 * time.Second
	ErrorText             = "⚠️ We encountered an issue processing your message. Please try again."
)

// Frame is the JSON envelope exchanged with the browser.
type Frame struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	UserID         string              `json:"user_id,omitempty"`
	Text           string              `json:"text,omitempty"`
	Choices        []models.Choice     `json:"choices,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

// Opts holds configuration for the webchat handler.
type Opts struct {
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// Option configures a Handler.
type Option func(*Opts)

// WithMaxMessageSize limits the size of inbound frames.
func WithMaxMessageSize(n int64) Option {
	return func(o *Opts) { o.MaxMessageSize = n }
}

// WithCheckOrigin overrides the WebSocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(o *Opts) { o.CheckOrigin = fn }
}

// Handler upgrades requests to WebSocket chat sessions.
type Handler struct {
	turns    bot.TurnHandler
	upgrader websocket.Upgrader
	maxSize  int64

	mu       sync.Mutex
	sessions map[string]*websocket.Conn
}

// NewHandler creates a Handler that runs turns through turns.
func NewHandler(turns bot.TurnHandler, opts ...Option) *Handler {
	cfg := Opts{MaxMessageSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		turns: turns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		maxSize:  cfg.MaxMessageSize,
		sessions: make(map[string]*websocket.Conn),
	}
}

// ServeHTTP runs one chat session. The conversation_id and user_id query parameters
// resume an existing conversation; missing ids are generated.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Webchat failed to upgrade connection", "error", err)
		return
	}
	conn.SetReadLimit(h.maxSize)

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = uuid.NewString()
	}
	sessionID := uuid.NewString()

	h.mu.Lock()
	h.sessions[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
		conn.Close()
	}()

	slog.Info("Webchat session started", "conversationID", conversationID, "userID", userID)
	s := &session{conn: conn, conversationID: conversationID, userID: userID}
	ctx := r.Context()

	if err := s.write(Frame{Type: FrameSession, ConversationID: conversationID, UserID: userID}); err != nil {
		return
	}
	if err := h.runTurn(ctx, s, models.TurnKindMembersAdded, Frame{}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Webchat connection closed unexpectedly", "error", err, "conversationID", conversationID)
			}
			slog.Info("Webchat session ended", "conversationID", conversationID)
			return
		}

		var in Frame
		if err := sonic.Unmarshal(data, &in); err != nil {
			slog.Warn("Webchat received malformed frame", "error", err, "conversationID", conversationID)
			if err := s.write(Frame{Type: FrameError, Text: "malformed frame"}); err != nil {
				return
			}
			continue
		}
		if in.Type != "" && in.Type != FrameMessage {
			slog.Debug("Webchat ignoring frame", "type", in.Type)
			continue
		}
		if err := h.runTurn(ctx, s, models.TurnKindMessage, in); err != nil {
			return
		}
	}
}

// runTurn handles one turn and writes the replies. A returned error means the connection is unusable.
func (h *Handler) runTurn(ctx context.Context, s *session, kind models.TurnKind, in Frame) error {
	messages, err := h.turns.HandleTurn(ctx, models.Turn{
		ID:             uuid.NewString(),
		Kind:           kind,
		ConversationID: s.conversationID,
		UserID:         s.userID,
		Text:           in.Text,
		Attachments:    in.Attachments,
		ReceivedAt:     time.Now(),
	})
	if err != nil {
		slog.Error("Webchat turn failed", "error", err, "conversationID", s.conversationID)
		return s.write(Frame{Type: FrameError, Text: ErrorText})
	}
	for _, m := range messages {
		if err := s.write(Frame{Type: FrameMessage, Text: m.Text, Choices: m.Choices}); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates every open session.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.sessions {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.sessions, id)
	}
}

// SessionCount returns the number of open sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

type session struct {
	conn           *websocket.Conn
	conversationID string
	userID         string
}

func (s *session) write(f Frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("Webchat write failed", "error", err, "conversationID", s.conversationID)
		return err
	}
	return nil
}
