// Package usecase contains the per-document collaboration engine and the
// manager that owns one engine per active document.
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/pkg/ot"
)

// EngineConfig tunes a single document engine.
type EngineConfig struct {
	// DebounceDelay is how long inbound operations accumulate before one
	// canonical flush.
	DebounceDelay time.Duration

	// TailSize bounds the applied-operation tail retained for the
	// immediate-echo transform.
	TailSize int
}

// DefaultEngineConfig returns the stock tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DebounceDelay: 500 * time.Millisecond,
		TailSize:      10,
	}
}

// outbound is a message queued for emission once the engine releases its
// state lock. An empty to/except pair broadcasts to the whole document.
type outbound struct {
	to     string // deliver to one session
	except string // broadcast minus one session
	msg    domain.Message
}

// DocumentEngine owns the state of exactly one document: content, the
// applied-operation tail, the pending queue, the debounce timer, and the
// presence map. All operations are serialized by a per-document mutex; sink
// writes never happen while that mutex is held.
type DocumentEngine struct {
	documentID  string
	store       domain.DocumentStore
	broadcaster domain.Broadcaster
	clock       clock.Clock
	logger      *zap.Logger
	cfg         EngineConfig

	mu           sync.Mutex
	doc          *domain.Document
	queue        []ot.Operation
	debounce     *clock.Timer
	lastActivity time.Time
	closed       bool

	// emitMu serializes emission so that messages reach the hub in the same
	// order the engine produced them. It is always acquired while mu is still
	// held and released after delivery.
	emitMu sync.Mutex
}

// NewDocumentEngine wraps a loaded document. Presence on the document is
// expected to be cleared by the caller; it is transient state.
func NewDocumentEngine(doc *domain.Document, store domain.DocumentStore, broadcaster domain.Broadcaster, clk clock.Clock, logger *zap.Logger, cfg EngineConfig) *DocumentEngine {
	if doc.ActiveUsers == nil {
		doc.ActiveUsers = make(map[string]*domain.Presence)
	}
	if cfg.TailSize <= 0 {
		cfg.TailSize = DefaultEngineConfig().TailSize
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultEngineConfig().DebounceDelay
	}
	return &DocumentEngine{
		documentID:   doc.ID,
		store:        store,
		broadcaster:  broadcaster,
		clock:        clk,
		logger:       logger.With(zap.String("document_id", doc.ID)),
		cfg:          cfg,
		doc:          doc,
		lastActivity: clk.Now(),
	}
}

// DocumentID returns the id of the document this engine owns.
func (e *DocumentEngine) DocumentID() string {
	return e.documentID
}

// Join attaches a session to the document and returns the current snapshot.
// The joining session receives document-state before any other message;
// peers receive user-joined and everyone receives users-updated.
func (e *DocumentEngine) Join(sessionID string, user domain.UserInfo) (domain.Snapshot, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.Snapshot{}, domain.ErrEngineClosed
	}

	now := e.clock.Now()
	presence := domain.NewPresence(user, now)
	e.doc.ActiveUsers[sessionID] = presence
	e.doc.Metadata.LastAccessedAt = now
	e.doc.Metadata.LastAccessedBy = user.UserID
	e.lastActivity = now

	snap := e.snapshotLocked()
	events := []outbound{
		{to: sessionID, msg: domain.NewDocumentStateMessage(snap)},
		{except: sessionID, msg: domain.NewUserJoinedMessage(e.documentID, sessionID, *presence)},
		{msg: domain.NewUsersUpdatedMessage(e.documentID, snap.ActiveUsers)},
	}
	e.emitAndUnlock(events)

	e.logger.Info("session joined",
		zap.String("session_id", sessionID),
		zap.String("user_id", user.UserID),
		zap.Int("active_users", len(snap.ActiveUsers)))

	return snap, nil
}

// Leave detaches a session. If the session still has queued operations the
// whole pending batch is flushed first, so peers observe document-sync before
// user-left.
func (e *DocumentEngine) Leave(sessionID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrEngineClosed
	}
	presence, ok := e.doc.ActiveUsers[sessionID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrSessionNotFound
	}

	var events []outbound
	if e.sessionHasQueuedOpsLocked(sessionID) {
		e.flushLocked(&events)
	}

	delete(e.doc.ActiveUsers, sessionID)
	e.lastActivity = e.clock.Now()

	events = append(events,
		outbound{except: sessionID, msg: domain.NewUserLeftMessage(e.documentID, sessionID, *presence)},
		outbound{msg: domain.NewUsersUpdatedMessage(e.documentID, e.activeUsersLocked())},
	)
	if len(e.doc.ActiveUsers) == 0 && len(e.queue) == 0 {
		e.stopTimerLocked()
	}
	e.emitAndUnlock(events)

	e.logger.Info("session left",
		zap.String("session_id", sessionID),
		zap.String("user_id", presence.UserID))

	return nil
}

// Enqueue runs the admission, immediate-echo, and enqueue steps of the
// pipeline for one inbound operation. Canonical application happens on the
// next flush.
func (e *DocumentEngine) Enqueue(sessionID string, op ot.Operation) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrEngineClosed
	}
	presence, ok := e.doc.ActiveUsers[sessionID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrSessionNotFound
	}

	// Step 1: admission.
	op.ClientID = sessionID
	if op.UserID == "" {
		op.UserID = presence.UserID
	}
	if op.Timestamp == 0 {
		op.Timestamp = e.clock.Now().UnixMilli()
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Kind == ot.KindRetain {
		e.mu.Unlock()
		return fmt.Errorf("%w: retain is not accepted from clients", domain.ErrInvalidOperation)
	}
	// Bounds admission accounts for the ops already queued in this window;
	// the canonical content does not advance until the flush.
	effectiveLen := len(e.doc.Content)
	for _, queued := range e.queue {
		effectiveLen += queued.NetDelta()
	}
	if err := op.Validate(effectiveLen); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrInvalidOperation, err)
	}

	e.lastActivity = e.clock.Now()

	// Step 2: immediate echo against the applied tail. Absorption is a
	// silent, correct drop.
	var events []outbound
	transformed := ot.TransformAgainst(op, e.doc.OperationsTail)
	if transformed == nil {
		e.mu.Unlock()
		e.logger.Debug("operation absorbed at echo stage",
			zap.String("operation_id", op.ID),
			zap.String("session_id", sessionID))
		return nil
	}
	tempContent, err := ot.Apply(e.doc.Content, *transformed)
	if err != nil {
		// The echo is optimistic only; the canonical flush will reconcile.
		e.logger.Warn("skipping immediate echo, transformed operation did not apply",
			zap.String("operation_id", op.ID),
			zap.Error(err))
	} else {
		events = append(events, outbound{
			except: sessionID,
			msg:    domain.NewOperationImmediateMessage(e.documentID, *transformed, tempContent, *presence),
		})
	}

	// Step 3: enqueue the admission-time operation and re-arm the debounce
	// timer.
	e.queue = append(e.queue, op)
	e.resetTimerLocked()

	e.emitAndUnlock(events)
	return nil
}

// Cursor updates the session's presence cursor and relays it to peers.
func (e *DocumentEngine) Cursor(sessionID string, cursor domain.Cursor) error {
	e.mu.Lock()
	presence, ok := e.doc.ActiveUsers[sessionID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrSessionNotFound
	}

	now := e.clock.Now()
	presence.Cursor = &cursor
	presence.LastCursorUpdate = now
	e.lastActivity = now

	events := []outbound{{
		except: sessionID,
		msg:    domain.NewCursorUpdateMessage(e.documentID, *presence, cursor, now.UnixMilli()),
	}}
	e.emitAndUnlock(events)
	return nil
}

// Flush forces the canonical application of all queued operations.
func (e *DocumentEngine) Flush() {
	e.mu.Lock()
	var events []outbound
	e.flushLocked(&events)
	e.emitAndUnlock(events)
}

// Snapshot returns a read-only deep copy of the current document view.
func (e *DocumentEngine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Stats returns the lightweight stats view.
func (e *DocumentEngine) Stats() domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Stats{
		Version:         e.doc.Version,
		ActiveUserCount: len(e.doc.ActiveUsers),
		TailLength:      len(e.doc.OperationsTail),
		QueuedCount:     len(e.queue),
		Metadata:        e.doc.Metadata,
		UpdatedAt:       e.doc.UpdatedAt,
	}
}

// SessionCount returns the number of attached sessions.
func (e *DocumentEngine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.doc.ActiveUsers)
}

// IdleSince returns the time of the last engine activity.
func (e *DocumentEngine) IdleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity
}

// Close flushes any pending batch and marks the engine unusable. Used on
// idle eviction and process shutdown.
func (e *DocumentEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	var events []outbound
	e.flushLocked(&events)
	e.stopTimerLocked()
	e.closed = true
	e.emitAndUnlock(events)
}

// emitAndUnlock hands the collected messages to the hub. emitMu is taken
// before mu is released so emission order matches state order, while sink
// writes never happen under the state lock.
func (e *DocumentEngine) emitAndUnlock(events []outbound) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	for _, ev := range events {
		switch {
		case ev.to != "":
			e.broadcaster.SendTo(ev.to, ev.msg)
		case ev.except != "":
			e.broadcaster.BroadcastExcept(e.documentID, ev.except, ev.msg)
		default:
			e.broadcaster.Broadcast(e.documentID, ev.msg)
		}
	}
}

// flushLocked runs step 4 of the pipeline: merge, order, transform, apply,
// commit, persist, and emit one document-sync. The caller holds mu.
func (e *DocumentEngine) flushLocked(events *[]outbound) {
	e.stopTimerLocked()
	if len(e.queue) == 0 {
		return
	}

	batch := e.queue
	e.queue = nil

	prevContent := e.doc.Content
	prevVersion := e.doc.Version
	prevTail := make([]ot.Operation, len(e.doc.OperationsTail))
	copy(prevTail, e.doc.OperationsTail)

	defer func() {
		if r := recover(); r != nil {
			// Roll the batch back and drop the queue; retrying a poisoned
			// batch would loop forever. The engine stays available.
			e.doc.Content = prevContent
			e.doc.Version = prevVersion
			e.doc.OperationsTail = prevTail
			e.logger.Error("flush aborted, batch rolled back",
				zap.String("document_id", e.documentID),
				zap.Any("panic", r),
				zap.Int("dropped_ops", len(batch)))
			*events = append(*events, outbound{
				msg: domain.NewErrorMessage("internal error while applying a batch; the batch was dropped"),
			})
		}
	}()

	// (a) Merge contiguous runs per user, (b) order the batch canonically.
	merged := make([]ot.Operation, 0, len(batch))
	for _, group := range groupByUser(batch) {
		merged = append(merged, ot.Merge(group)...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Before(merged[j])
	})

	// (c) Transform each operation past the ones already applied in this
	// batch, then apply.
	applied := make([]ot.Operation, 0, len(merged))
	text := e.doc.Content
	for _, op := range merged {
		transformed := ot.TransformAgainst(op, applied)
		if transformed == nil {
			continue
		}
		next, err := ot.Apply(text, *transformed)
		if err != nil {
			e.logger.Warn("dropping operation that failed to apply",
				zap.String("operation_id", op.ID),
				zap.Error(err))
			continue
		}
		text = next
		transformed.Applied = true
		applied = append(applied, *transformed)
	}

	if len(applied) == 0 {
		return
	}

	// (d) Commit and persist.
	now := e.clock.Now()
	e.doc.Content = text
	e.doc.Version++
	for i := range applied {
		applied[i].Version = e.doc.Version
	}
	e.doc.OperationsTail = append(e.doc.OperationsTail, applied...)
	if excess := len(e.doc.OperationsTail) - e.cfg.TailSize; excess > 0 {
		e.doc.OperationsTail = e.doc.OperationsTail[excess:]
	}
	e.doc.RefreshCounts()
	e.doc.UpdatedAt = now
	e.doc.Metadata.LastModifiedBy = applied[len(applied)-1].UserID
	e.doc.LastSaved = now

	if err := e.store.Save(context.Background(), e.doc.Copy()); err != nil {
		// Non-fatal: live clients stay consistent; the next flush retries.
		e.logger.Warn("failed to persist document snapshot",
			zap.Int("version", e.doc.Version),
			zap.Error(err))
	}

	// (e) Authoritative reconciliation for everyone, originators included.
	*events = append(*events, outbound{
		msg: domain.NewDocumentSyncMessage(e.documentID, e.doc.Content, e.doc.Version, applied, e.doc.Metadata),
	})

	e.logger.Debug("flushed batch",
		zap.Int("batch_size", len(batch)),
		zap.Int("applied", len(applied)),
		zap.Int("version", e.doc.Version))
}

// resetTimerLocked re-arms the debounce timer, replacing any existing one.
func (e *DocumentEngine) resetTimerLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = e.clock.AfterFunc(e.cfg.DebounceDelay, e.Flush)
}

func (e *DocumentEngine) stopTimerLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
}

func (e *DocumentEngine) sessionHasQueuedOpsLocked(sessionID string) bool {
	for _, op := range e.queue {
		if op.ClientID == sessionID {
			return true
		}
	}
	return false
}

// snapshotLocked builds a deep-copied snapshot. The caller holds mu.
func (e *DocumentEngine) snapshotLocked() domain.Snapshot {
	d := e.doc.Copy()
	return domain.Snapshot{
		ID:          d.ID,
		Title:       d.Title,
		Content:     d.Content,
		Version:     d.Version,
		Metadata:    d.Metadata,
		ActiveUsers: presenceList(d.ActiveUsers),
	}
}

func (e *DocumentEngine) activeUsersLocked() []domain.Presence {
	return presenceList(e.doc.Copy().ActiveUsers)
}

// presenceList flattens a presence map into a deterministic slice ordered by
// join time, then user id.
func presenceList(m map[string]*domain.Presence) []domain.Presence {
	users := make([]domain.Presence, 0, len(m))
	for _, p := range m {
		users = append(users, *p)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].JoinedAt.Before(users[j].JoinedAt)
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

// groupByUser splits a batch into per-user groups, preserving arrival order
// inside each group.
func groupByUser(ops []ot.Operation) [][]ot.Operation {
	index := make(map[string]int)
	groups := make([][]ot.Operation, 0, 4)
	for _, op := range ops {
		i, ok := index[op.UserID]
		if !ok {
			i = len(groups)
			index[op.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], op)
	}
	return groups
}
