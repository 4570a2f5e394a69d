// Package memory implements the document store in process memory. Useful for
// tests and for running the server without any persistence dependency;
// documents do not survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/vishu2124/OT-editor/internal/domain"
)

// Repository is a map-backed domain.DocumentStore.
type Repository struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{docs: make(map[string]*domain.Document)}
}

// Load returns a deep copy of the snapshot for id.
func (r *Repository) Load(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := doc.Copy()
	copied.ActiveUsers = make(map[string]*domain.Presence)
	return copied, nil
}

// Save stores a deep copy of the snapshot.
func (r *Repository) Save(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Copy()
	return nil
}

// Create builds an empty document and stores it.
func (r *Repository) Create(ctx context.Context, id, title, userID string) (*domain.Document, error) {
	doc := domain.NewDocument(id, title, userID)
	if err := r.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the ids of all stored documents.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the snapshot. Deleting an absent id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}
