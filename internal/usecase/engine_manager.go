package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
)

// ManagerConfig tunes the engine manager.
type ManagerConfig struct {
	Engine EngineConfig

	// IdleEviction is how long a document with no sessions and no queued
	// operations survives before its engine is flushed and released.
	IdleEviction time.Duration

	// EvictionInterval is how often the idle sweep runs.
	EvictionInterval time.Duration
}

// DefaultManagerConfig returns the stock tuning.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Engine:           DefaultEngineConfig(),
		IdleEviction:     30 * time.Minute,
		EvictionInterval: time.Minute,
	}
}

// EngineManager owns one DocumentEngine per active document. Engines are
// created lazily on first join and released after the idle window.
type EngineManager struct {
	store       domain.DocumentStore
	broadcaster domain.Broadcaster
	clock       clock.Clock
	logger      *zap.Logger
	cfg         ManagerConfig

	mu      sync.RWMutex
	engines map[string]*DocumentEngine

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewEngineManager builds the manager and starts the idle-eviction sweep.
func NewEngineManager(store domain.DocumentStore, broadcaster domain.Broadcaster, clk clock.Clock, logger *zap.Logger, cfg ManagerConfig) *EngineManager {
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = DefaultManagerConfig().IdleEviction
	}
	if cfg.EvictionInterval <= 0 {
		cfg.EvictionInterval = DefaultManagerConfig().EvictionInterval
	}
	m := &EngineManager{
		store:       store,
		broadcaster: broadcaster,
		clock:       clk,
		logger:      logger,
		cfg:         cfg,
		engines:     make(map[string]*DocumentEngine),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go m.evictionLoop()
	return m
}

// Get returns the live engine for a document, if one exists.
func (m *EngineManager) Get(documentID string) (*DocumentEngine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[documentID]
	return e, ok
}

// GetOrCreate returns the engine for documentID, loading or creating the
// backing document as needed. A corrupt snapshot is treated as absent; a
// fresh document replaces it and content is never guessed.
func (m *EngineManager) GetOrCreate(ctx context.Context, documentID, title, userID string) (*DocumentEngine, error) {
	m.mu.RLock()
	if e, ok := m.engines[documentID]; ok {
		m.mu.RUnlock()
		return e, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[documentID]; ok {
		return e, nil
	}

	doc, err := m.store.Load(ctx, documentID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDocumentNotFound):
		doc, err = m.store.Create(ctx, documentID, title, userID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrCorruptSnapshot):
		m.logger.Warn("replacing corrupt document snapshot",
			zap.String("document_id", documentID))
		doc, err = m.store.Create(ctx, documentID, title, userID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	// Presence never survives a restart.
	doc.ActiveUsers = make(map[string]*domain.Presence)

	e := NewDocumentEngine(doc, m.store, m.broadcaster, m.clock, m.logger, m.cfg.Engine)
	m.engines[documentID] = e
	m.logger.Info("engine started",
		zap.String("document_id", documentID),
		zap.Int("version", doc.Version))
	return e, nil
}

// Stats returns the stats view for a document, consulting the live engine
// when one exists and the store otherwise.
func (m *EngineManager) Stats(ctx context.Context, documentID string) (domain.Stats, error) {
	if e, ok := m.Get(documentID); ok {
		return e.Stats(), nil
	}
	doc, err := m.store.Load(ctx, documentID)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{
		Version:    doc.Version,
		TailLength: len(doc.OperationsTail),
		Metadata:   doc.Metadata,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// Snapshot returns the snapshot view for a document, live or persisted.
func (m *EngineManager) Snapshot(ctx context.Context, documentID string) (domain.Snapshot, error) {
	if e, ok := m.Get(documentID); ok {
		return e.Snapshot(), nil
	}
	doc, err := m.store.Load(ctx, documentID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		ID:          doc.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		Version:     doc.Version,
		Metadata:    doc.Metadata,
		ActiveUsers: []domain.Presence{},
	}, nil
}

// Delete removes a document. It refuses while sessions are attached.
func (m *EngineManager) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	if e, ok := m.engines[documentID]; ok {
		if e.SessionCount() > 0 {
			m.mu.Unlock()
			return domain.ErrDocumentActive
		}
		e.Close()
		delete(m.engines, documentID)
	}
	m.mu.Unlock()
	return m.store.Delete(ctx, documentID)
}

// ActiveCount returns the number of live engines.
func (m *EngineManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// DrainAll force-flushes and closes every engine. It returns ctx.Err if the
// deadline passes before every engine drains.
func (m *EngineManager) DrainAll(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	engines := make([]*DocumentEngine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.engines = make(map[string]*DocumentEngine)
	m.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, e := range engines {
			wg.Add(1)
			go func(e *DocumentEngine) {
				defer wg.Done()
				e.Close()
			}(e)
		}
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.logger.Info("all engines drained", zap.Int("engines", len(engines)))
		return nil
	case <-ctx.Done():
		m.logger.Error("drain deadline exceeded", zap.Int("engines", len(engines)))
		return ctx.Err()
	}
}

// evictIdle closes engines that have had no sessions and no activity for the
// idle window.
func (m *EngineManager) evictIdle() {
	now := m.clock.Now()

	m.mu.Lock()
	var victims []*DocumentEngine
	for id, e := range m.engines {
		if e.SessionCount() == 0 && now.Sub(e.IdleSince()) >= m.cfg.IdleEviction {
			victims = append(victims, e)
			delete(m.engines, id)
		}
	}
	m.mu.Unlock()

	for _, e := range victims {
		e.Close()
		m.logger.Info("evicted idle engine", zap.String("document_id", e.DocumentID()))
	}
}

func (m *EngineManager) evictionLoop() {
	defer close(m.done)
	ticker := m.clock.Ticker(m.cfg.EvictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stop:
			return
		}
	}
}
