// Package file implements the document store on the local filesystem, one
// JSON file per document. Replacement is atomic: write to a temp file, fsync,
// rename.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
)

// Repository is a file-backed domain.DocumentStore.
type Repository struct {
	baseDir string
	mu      sync.RWMutex
	logger  *zap.Logger
}

// New creates the base directory if needed and returns the store.
func New(baseDir string, logger *zap.Logger) (*Repository, error) {
	if baseDir == "" {
		baseDir = "documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	return &Repository{baseDir: baseDir, logger: logger}, nil
}

func (r *Repository) path(id string) string {
	return filepath.Join(r.baseDir, id+".json")
}

// Load reads and decodes the snapshot for id. Presence is transient and
// cleared on load.
func (r *Repository) Load(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var doc domain.Document
	if len(data) == 0 || json.Unmarshal(data, &doc) != nil || doc.ID == "" {
		r.logger.Warn("unreadable document snapshot", zap.String("document_id", id))
		return nil, domain.ErrCorruptSnapshot
	}
	doc.ActiveUsers = make(map[string]*domain.Presence)
	return &doc, nil
}

// Save replaces the snapshot atomically via temp file, fsync, and rename.
func (r *Repository) Save(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	target := r.path(doc.ID)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace document file: %w", err)
	}
	return nil
}

// Create builds an empty document and persists it.
func (r *Repository) Create(ctx context.Context, id, title, userID string) (*domain.Document, error) {
	doc := domain.NewDocument(id, title, userID)
	if err := r.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the ids of all persisted documents.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Delete removes the snapshot. Deleting an absent id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document file: %w", err)
	}
	return nil
}

// Close is a no-op; the filesystem needs no teardown.
func (r *Repository) Close() error {
	return nil
}
