package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/pkg/ot"
)

// recorded is one fan-out call captured by the test broadcaster.
type recorded struct {
	kind   string // broadcast, except, sendto
	target string
	msg    domain.Message
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Broadcast(documentID string, msg domain.Message) {
	r.record(recorded{kind: "broadcast", msg: msg})
}

func (r *recorder) BroadcastExcept(documentID, except string, msg domain.Message) {
	r.record(recorded{kind: "except", target: except, msg: msg})
}

func (r *recorder) SendTo(sessionID string, msg domain.Message) {
	r.record(recorded{kind: "sendto", target: sessionID, msg: msg})
}

func (r *recorder) record(ev recorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recorded, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) byType(t domain.MessageType) []recorded {
	var out []recorded
	for _, ev := range r.all() {
		if ev.msg.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// memStore is an in-memory domain.DocumentStore for engine tests.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]*domain.Document
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*domain.Document)}
}

func (s *memStore) Load(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc.Copy(), nil
}

func (s *memStore) Save(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc.Copy()
	s.saves++
	return nil
}

func (s *memStore) Create(ctx context.Context, id, title, userID string) (*domain.Document, error) {
	doc := domain.NewDocument(id, title, userID)
	if err := s.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *memStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestEngine(t *testing.T, content string) (*DocumentEngine, *recorder, *memStore, *clock.Mock) {
	t.Helper()
	doc := domain.NewDocument("doc-1", "Test Document", "creator")
	doc.Content = content
	doc.RefreshCounts()

	rec := &recorder{}
	store := newMemStore()
	mock := clock.NewMock()
	engine := NewDocumentEngine(doc, store, rec, mock, zap.NewNop(), EngineConfig{
		DebounceDelay: 500 * time.Millisecond,
		TailSize:      10,
	})
	return engine, rec, store, mock
}

func insertOp(id, userID string, pos int, content string, ts int64) ot.Operation {
	return ot.Operation{ID: id, Kind: ot.KindInsert, Position: pos, Content: content, UserID: userID, Timestamp: ts}
}

func deleteOp(id, userID string, pos, length int, ts int64) ot.Operation {
	return ot.Operation{ID: id, Kind: ot.KindDelete, Position: pos, Length: length, UserID: userID, Timestamp: ts}
}

func TestJoinEmitsStateThenPresence(t *testing.T) {
	engine, rec, _, _ := newTestEngine(t, "hello")

	snap, err := engine.Join("s1", domain.UserInfo{UserID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "hello", snap.Content)
	assert.Len(t, snap.ActiveUsers, 1)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, domain.MessageDocumentState, events[0].msg.Type)
	assert.Equal(t, "sendto", events[0].kind)
	assert.Equal(t, "s1", events[0].target)
	assert.Equal(t, domain.MessageUserJoined, events[1].msg.Type)
	assert.Equal(t, "s1", events[1].target)
	assert.Equal(t, domain.MessageUsersUpdated, events[2].msg.Type)
	assert.Equal(t, "broadcast", events[2].kind)
}

func TestEnqueueEchoesToPeersOnly(t *testing.T) {
	engine, rec, _, _ := newTestEngine(t, "hello")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 5, "!", 100)))

	echoes := rec.byType(domain.MessageOperationImmediate)
	require.Len(t, echoes, 1)
	assert.Equal(t, "except", echoes[0].kind)
	assert.Equal(t, "s1", echoes[0].target)
	require.NotNil(t, echoes[0].msg.TempContent)
	assert.Equal(t, "hello!", *echoes[0].msg.TempContent)

	// No sync until the debounce fires.
	assert.Empty(t, rec.byType(domain.MessageDocumentSync))
}

func TestDebounceBatchesIntoOneSync(t *testing.T) {
	engine, rec, store, mock := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 0, "he", 100)))
	mock.Add(300 * time.Millisecond)
	require.NoError(t, engine.Enqueue("s1", insertOp("op2", "alice", 2, "llo", 200)))

	// The second operation re-armed the timer; nothing flushed yet.
	mock.Add(300 * time.Millisecond)
	assert.Empty(t, rec.byType(domain.MessageDocumentSync))

	mock.Add(200 * time.Millisecond)
	syncs := rec.byType(domain.MessageDocumentSync)
	require.Len(t, syncs, 1)
	require.NotNil(t, syncs[0].msg.Content)
	assert.Equal(t, "hello", *syncs[0].msg.Content)
	assert.Equal(t, 2, syncs[0].msg.Version)

	// Contiguous same-user inserts merged into one canonical operation.
	require.Len(t, syncs[0].msg.Operations, 1)
	assert.Equal(t, "hello", syncs[0].msg.Operations[0].Content)
	assert.True(t, syncs[0].msg.Operations[0].Applied)

	assert.Equal(t, 1, store.saveCount())
}

func TestConcurrentInsertsConvergeDeterministically(t *testing.T) {
	// Same position, different users: the earlier timestamp wins the spot.
	run := func(order []ot.Operation) string {
		engine, rec, _, mock := newTestEngine(t, "ab")
		_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
		require.NoError(t, err)
		_, err = engine.Join("s2", domain.UserInfo{UserID: "bob"})
		require.NoError(t, err)

		sessions := map[string]string{"alice": "s1", "bob": "s2"}
		for _, op := range order {
			require.NoError(t, engine.Enqueue(sessions[op.UserID], op))
		}
		rec.reset()
		mock.Add(500 * time.Millisecond)

		syncs := rec.byType(domain.MessageDocumentSync)
		require.Len(t, syncs, 1)
		return *syncs[0].msg.Content
	}

	a := insertOp("opA", "alice", 1, "X", 100)
	b := insertOp("opB", "bob", 1, "Y", 200)

	first := run([]ot.Operation{a, b})
	second := run([]ot.Operation{b, a})
	assert.Equal(t, first, second)
	assert.Equal(t, "aXYb", first)
}

func TestInsertInsideDeletedRangeClamps(t *testing.T) {
	engine, rec, _, mock := newTestEngine(t, "0123456789")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	_, err = engine.Join("s2", domain.UserInfo{UserID: "bob"})
	require.NoError(t, err)

	require.NoError(t, engine.Enqueue("s1", deleteOp("opA", "alice", 2, 5, 100)))
	require.NoError(t, engine.Enqueue("s2", insertOp("opB", "bob", 4, "XY", 200)))
	rec.reset()
	mock.Add(500 * time.Millisecond)

	syncs := rec.byType(domain.MessageDocumentSync)
	require.Len(t, syncs, 1)
	// The insert survives at the deletion point.
	assert.Equal(t, "01XY789", *syncs[0].msg.Content)
}

func TestOverlappingDeletesRemoveUnionOnce(t *testing.T) {
	engine, rec, _, mock := newTestEngine(t, "0123456789")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	_, err = engine.Join("s2", domain.UserInfo{UserID: "bob"})
	require.NoError(t, err)

	require.NoError(t, engine.Enqueue("s1", deleteOp("opA", "alice", 2, 4, 100)))
	require.NoError(t, engine.Enqueue("s2", deleteOp("opB", "bob", 4, 4, 200)))
	rec.reset()
	mock.Add(500 * time.Millisecond)

	syncs := rec.byType(domain.MessageDocumentSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, "0189", *syncs[0].msg.Content)
}

func TestRetransmittedOperationIsAbsorbed(t *testing.T) {
	engine, rec, _, mock := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	op := insertOp("op1", "alice", 0, "hi", 100)
	require.NoError(t, engine.Enqueue("s1", op))
	mock.Add(500 * time.Millisecond)
	require.Equal(t, 2, engine.Snapshot().Version)
	rec.reset()

	// Same id again: absorbed at the echo stage, never queued.
	require.NoError(t, engine.Enqueue("s1", op))
	assert.Empty(t, rec.all())
	mock.Add(500 * time.Millisecond)
	assert.Empty(t, rec.byType(domain.MessageDocumentSync))
	assert.Equal(t, "hi", engine.Snapshot().Content)
	assert.Equal(t, 2, engine.Snapshot().Version)
}

func TestLeaveFlushesBeforeUserLeft(t *testing.T) {
	engine, rec, _, _ := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	_, err = engine.Join("s2", domain.UserInfo{UserID: "bob"})
	require.NoError(t, err)

	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 0, "bye", 100)))
	rec.reset()

	require.NoError(t, engine.Leave("s1"))

	events := rec.all()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, domain.MessageDocumentSync, events[0].msg.Type)
	assert.Equal(t, domain.MessageUserLeft, events[1].msg.Type)
	assert.Equal(t, domain.MessageUsersUpdated, events[2].msg.Type)
	assert.Equal(t, "bye", engine.Snapshot().Content)
}

func TestLeaveWithoutQueuedOpsSkipsSync(t *testing.T) {
	engine, rec, _, _ := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, engine.Leave("s1"))
	assert.Empty(t, rec.byType(domain.MessageDocumentSync))
}

func TestCloseFlushesPendingBatch(t *testing.T) {
	engine, rec, store, _ := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 0, "saved", 100)))
	rec.reset()

	engine.Close()

	syncs := rec.byType(domain.MessageDocumentSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, "saved", *syncs[0].msg.Content)
	assert.Equal(t, 1, store.saveCount())

	err = engine.Enqueue("s1", insertOp("op2", "alice", 0, "x", 200))
	assert.ErrorIs(t, err, domain.ErrEngineClosed)
}

func TestInvalidOperationsRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, "hello")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	tests := []struct {
		name string
		op   ot.Operation
	}{
		{"insert past end", insertOp("op1", "alice", 6, "x", 100)},
		{"empty insert", insertOp("op2", "alice", 0, "", 100)},
		{"delete past end", deleteOp("op3", "alice", 3, 5, 100)},
		{"zero length delete", deleteOp("op4", "alice", 0, 0, 100)},
		{"retain from client", ot.Operation{ID: "op5", Kind: ot.KindRetain, UserID: "alice", Timestamp: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Enqueue("s1", tt.op)
			assert.ErrorIs(t, err, domain.ErrInvalidOperation)
		})
	}

	// Rejection never disturbs state.
	assert.Equal(t, "hello", engine.Snapshot().Content)
	assert.Equal(t, 1, engine.Snapshot().Version)
}

func TestAdmissionBoundsTrackQueuedOps(t *testing.T) {
	engine, _, _, mock := newTestEngine(t, "ab")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	// Queued inserts extend the admissible range before any flush.
	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 2, "cd", 100)))
	require.NoError(t, engine.Enqueue("s1", insertOp("op2", "alice", 4, "e", 200)))

	// Beyond canonical length plus the queued delta is still refused.
	err = engine.Enqueue("s1", insertOp("op3", "alice", 6, "x", 300))
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	mock.Add(500 * time.Millisecond)
	require.Equal(t, "abcde", engine.Snapshot().Content)

	// A queued delete shrinks the admissible range symmetrically.
	require.NoError(t, engine.Enqueue("s1", deleteOp("op4", "alice", 0, 2, 400)))
	err = engine.Enqueue("s1", insertOp("op5", "alice", 4, "y", 500))
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	mock.Add(500 * time.Millisecond)
	assert.Equal(t, "cde", engine.Snapshot().Content)
}

func TestTypingBurstIntoEmptyDocument(t *testing.T) {
	engine, rec, _, mock := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	rec.reset()

	// Five keystrokes at advancing positions inside one debounce window.
	for i, ch := range []string{"h", "e", "l", "l", "o"} {
		op := insertOp(fmt.Sprintf("op%d", i), "alice", i, ch, int64(100+i))
		require.NoError(t, engine.Enqueue("s1", op))
		mock.Add(80 * time.Millisecond)
	}

	mock.Add(500 * time.Millisecond)
	syncs := rec.byType(domain.MessageDocumentSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, "hello", *syncs[0].msg.Content)
	assert.Equal(t, 2, syncs[0].msg.Version)
}

func TestLeaveAfterCloseRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	engine.Close()

	err = engine.Leave("s1")
	assert.ErrorIs(t, err, domain.ErrEngineClosed)
	// The closed engine's presence is untouched.
	assert.Equal(t, 1, engine.SessionCount())
}

func TestEnqueueFromUnknownSessionRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, "")
	err := engine.Enqueue("ghost", insertOp("op1", "alice", 0, "x", 100))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestTailIsBounded(t *testing.T) {
	engine, _, _, mock := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		op := insertOp("", "alice", i, "x", int64(100+i))
		require.NoError(t, engine.Enqueue("s1", op))
		mock.Add(500 * time.Millisecond)
	}

	stats := engine.Stats()
	assert.Equal(t, 10, stats.TailLength)
	assert.Equal(t, 16, stats.Version)
}

func TestCursorRelayedToPeers(t *testing.T) {
	engine, rec, _, _ := newTestEngine(t, "hello")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)
	rec.reset()

	sel := 4
	require.NoError(t, engine.Cursor("s1", domain.Cursor{Position: 2, SelectionEnd: &sel}))

	events := rec.byType(domain.MessageCursorUpdate)
	require.Len(t, events, 1)
	assert.Equal(t, "except", events[0].kind)
	assert.Equal(t, "s1", events[0].target)
	require.NotNil(t, events[0].msg.Cursor)
	assert.Equal(t, 2, events[0].msg.Cursor.Position)
}

func TestFlushUpdatesMetadata(t *testing.T) {
	engine, _, _, mock := newTestEngine(t, "")
	_, err := engine.Join("s1", domain.UserInfo{UserID: "alice"})
	require.NoError(t, err)

	require.NoError(t, engine.Enqueue("s1", insertOp("op1", "alice", 0, "two words", 100)))
	mock.Add(500 * time.Millisecond)

	snap := engine.Snapshot()
	assert.Equal(t, 2, snap.Metadata.WordCount)
	assert.Equal(t, 9, snap.Metadata.CharacterCount)
	assert.Equal(t, "alice", snap.Metadata.LastModifiedBy)
}
