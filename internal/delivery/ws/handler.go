package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/internal/hub"
	"github.com/vishu2124/OT-editor/internal/usecase"
	"github.com/vishu2124/OT-editor/pkg/ot"
)

// clientMessage is the inbound wire shape. The cursor carries a raw
// position/selection pair which is translated to the presence cursor here;
// the engine never sees wire types.
type clientMessage struct {
	Type       domain.MessageType `json:"type"`
	DocumentID string             `json:"documentId,omitempty"`
	Title      string             `json:"title,omitempty"`
	Operation  *ot.Operation      `json:"operation,omitempty"`
	Cursor     *cursorPayload     `json:"cursor,omitempty"`
}

type cursorPayload struct {
	Position  int  `json:"position"`
	Selection *int `json:"selection,omitempty"`
}

var colorPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#4699c9", "#f032e6", "#9a6324",
}

// Handler upgrades HTTP requests to websocket sessions and routes their
// messages to the engines.
type Handler struct {
	hub      *hub.Hub
	manager  *usecase.EngineManager
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket endpoint. allowedOrigin of "*" accepts any
// origin; anything else must match the Origin header exactly.
func NewHandler(h *hub.Hub, manager *usecase.EngineManager, allowedOrigin string, logger *zap.Logger) *Handler {
	handler := &Handler{
		hub:     h,
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}

	// A dead sink detaches its session the same way a clean disconnect does.
	h.OnSessionDead(func(documentID, sessionID string) {
		handler.detach(documentID, sessionID)
		h.Unregister(sessionID)
	})
	return handler
}

// ServeHTTP upgrades the connection and runs the session until it drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.New().String()
	user := userFromQuery(r)
	client := NewClient(sessionID, conn, h.logger)

	h.hub.Register(sessionID, user, client)
	h.logger.Info("websocket session opened",
		zap.String("session_id", sessionID),
		zap.String("user_id", user.UserID),
		zap.String("remote_addr", r.RemoteAddr))

	go client.pingLoop()
	h.readLoop(client, user)

	if documentID, ok := h.hub.Unregister(sessionID); ok {
		h.detach(documentID, sessionID)
	}
	client.Close()
	h.logger.Info("websocket session closed", zap.String("session_id", sessionID))
}

func (h *Handler) readLoop(client *Client, user domain.UserInfo) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error",
					zap.String("session_id", client.sessionID),
					zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("unparseable client message",
				zap.String("session_id", client.sessionID),
				zap.Error(err))
			client.Send(domain.NewErrorMessage("malformed message"))
			continue
		}

		if err := h.dispatch(client, user, &msg); err != nil {
			h.logger.Debug("rejected client message",
				zap.String("session_id", client.sessionID),
				zap.String("message_type", string(msg.Type)),
				zap.Error(err))
			client.Send(domain.NewErrorMessage(err.Error()))
		}
	}
}

// dispatch routes one inbound message. Returned errors are reported to the
// originating session only.
func (h *Handler) dispatch(client *Client, user domain.UserInfo, msg *clientMessage) error {
	sessionID := client.sessionID

	switch msg.Type {
	case domain.MessageJoinDocument:
		if msg.DocumentID == "" {
			return fmt.Errorf("%w: missing documentId", domain.ErrInvalidOperation)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		engine, err := h.manager.GetOrCreate(ctx, msg.DocumentID, msg.Title, user.UserID)
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		previous, err := h.hub.Subscribe(sessionID, msg.DocumentID)
		if err != nil {
			return err
		}
		if previous != "" && previous != msg.DocumentID {
			h.detach(previous, sessionID)
		}
		_, err = engine.Join(sessionID, user)
		return err

	case domain.MessageLeaveDocument:
		documentID, err := h.hub.Unsubscribe(sessionID)
		if err != nil {
			return err
		}
		if documentID == "" {
			return domain.ErrUnknownDocument
		}
		h.detach(documentID, sessionID)
		return nil

	case domain.MessageOperation:
		if msg.Operation == nil {
			return fmt.Errorf("%w: missing operation", domain.ErrInvalidOperation)
		}
		documentID, ok := h.hub.DocumentOf(sessionID)
		if !ok {
			return domain.ErrUnknownDocument
		}
		engine, ok := h.manager.Get(documentID)
		if !ok {
			return domain.ErrUnknownDocument
		}
		return engine.Enqueue(sessionID, *msg.Operation)

	case domain.MessageCursorUpdate:
		if msg.Cursor == nil {
			return fmt.Errorf("%w: missing cursor", domain.ErrInvalidOperation)
		}
		documentID, ok := h.hub.DocumentOf(sessionID)
		if !ok {
			return domain.ErrUnknownDocument
		}
		engine, ok := h.manager.Get(documentID)
		if !ok {
			return domain.ErrUnknownDocument
		}
		return engine.Cursor(sessionID, domain.Cursor{
			Position:     msg.Cursor.Position,
			SelectionEnd: msg.Cursor.Selection,
		})

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// detach removes a session from its engine, tolerating the engine being gone.
func (h *Handler) detach(documentID, sessionID string) {
	if documentID == "" {
		return
	}
	engine, ok := h.manager.Get(documentID)
	if !ok {
		return
	}
	if err := engine.Leave(sessionID); err != nil &&
		!errors.Is(err, domain.ErrSessionNotFound) &&
		!errors.Is(err, domain.ErrEngineClosed) {
		h.logger.Warn("failed to detach session",
			zap.String("document_id", documentID),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// userFromQuery builds the session identity from query parameters, filling
// stable defaults for anything missing.
func userFromQuery(r *http.Request) domain.UserInfo {
	q := r.URL.Query()
	user := domain.UserInfo{
		UserID:      q.Get("userId"),
		DisplayName: q.Get("displayName"),
		Color:       q.Get("color"),
		Avatar:      q.Get("avatar"),
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	if user.DisplayName == "" {
		user.DisplayName = "Anonymous"
	}
	if user.Color == "" {
		user.Color = pickColor(user.UserID)
	}
	return user
}

func pickColor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
