// Package hub holds the session registry and performs message fan-out for
// the engines. A session subscribes to at most one document at a time.
package hub

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
)

// Session is one connected client: identity, its outbound sink, and the
// document it is currently subscribed to.
type Session struct {
	ID         string
	User       domain.UserInfo
	DocumentID string

	sink domain.Sink
	dead atomic.Bool
}

// Hub implements domain.Broadcaster over a registry of live sessions. The
// subscriber set is copied under a read lock before fan-out, so a session
// joining mid-broadcast never receives a partial sequence.
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	docs     map[string]map[string]*Session

	// onDead is invoked (in its own goroutine) once per session whose sink
	// failed, with the document it was subscribed to at the time.
	onDead func(documentID, sessionID string)
}

// New builds an empty hub.
func New(logger *zap.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*Session),
		docs:     make(map[string]map[string]*Session),
	}
}

// OnSessionDead registers the callback invoked when a sink write fails. The
// callback runs outside hub locks; it is expected to detach the session from
// its engine.
func (h *Hub) OnSessionDead(fn func(documentID, sessionID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDead = fn
}

// Register adds a connected session that is not yet subscribed anywhere.
func (h *Hub) Register(sessionID string, user domain.UserInfo, sink domain.Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = &Session{ID: sessionID, User: user, sink: sink}
	h.logger.Debug("session registered",
		zap.String("session_id", sessionID),
		zap.String("user_id", user.UserID))
}

// Subscribe attaches a session to a document, detaching it from any previous
// one first. It returns the previous document id, if any.
func (h *Hub) Subscribe(sessionID, documentID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}

	previous := s.DocumentID
	if previous != "" {
		h.detachLocked(s)
	}

	s.DocumentID = documentID
	subs, ok := h.docs[documentID]
	if !ok {
		subs = make(map[string]*Session)
		h.docs[documentID] = subs
	}
	subs[sessionID] = s
	return previous, nil
}

// Unsubscribe detaches a session from its document, if any, and returns the
// document id it was attached to.
func (h *Hub) Unsubscribe(sessionID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	previous := s.DocumentID
	h.detachLocked(s)
	return previous, nil
}

// Unregister removes a session entirely and returns the document it was
// subscribed to, if any.
func (h *Hub) Unregister(sessionID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return "", false
	}
	previous := s.DocumentID
	h.detachLocked(s)
	delete(h.sessions, sessionID)
	h.logger.Debug("session unregistered", zap.String("session_id", sessionID))
	return previous, previous != ""
}

// DocumentOf returns the document a session is subscribed to.
func (h *Hub) DocumentOf(sessionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	if !ok || s.DocumentID == "" {
		return "", false
	}
	return s.DocumentID, true
}

// SubscriberCount returns the number of sessions attached to a document.
func (h *Hub) SubscriberCount(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs[documentID])
}

// Broadcast delivers msg to every session of the document.
func (h *Hub) Broadcast(documentID string, msg domain.Message) {
	h.fanOut(documentID, "", msg)
}

// BroadcastExcept delivers msg to every session of the document but one.
func (h *Hub) BroadcastExcept(documentID, exceptSessionID string, msg domain.Message) {
	h.fanOut(documentID, exceptSessionID, msg)
}

// SendTo delivers msg to a single session.
func (h *Hub) SendTo(sessionID string, msg domain.Message) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(s, msg)
}

func (h *Hub) fanOut(documentID, except string, msg domain.Message) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.docs[documentID]))
	for id, s := range h.docs[documentID] {
		if id == except {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, msg)
	}
}

// deliver writes to one sink. A failed write marks the session dead exactly
// once and schedules its removal asynchronously; delivery to other sessions
// is never blocked or rolled back.
func (h *Hub) deliver(s *Session, msg domain.Message) {
	if s.dead.Load() {
		return
	}
	if err := s.sink.Send(msg); err == nil {
		return
	} else if s.dead.CompareAndSwap(false, true) {
		h.logger.Warn("dropping session with failed sink",
			zap.String("session_id", s.ID),
			zap.Error(err))

		h.mu.RLock()
		onDead := h.onDead
		documentID := s.DocumentID
		h.mu.RUnlock()

		if onDead != nil {
			go onDead(documentID, s.ID)
		}
	}
}

// detachLocked removes a session from its document's subscriber set. The
// caller holds mu.
func (h *Hub) detachLocked(s *Session) {
	if s.DocumentID == "" {
		return
	}
	if subs, ok := h.docs[s.DocumentID]; ok {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(h.docs, s.DocumentID)
		}
	}
	s.DocumentID = ""
}
