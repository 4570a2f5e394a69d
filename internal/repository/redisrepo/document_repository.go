// Package redisrepo implements the document store on Redis. Each document is
// one JSON value; a set keeps the id index for listing.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
)

// Repository is a Redis-backed domain.DocumentStore. SET replaces the value
// atomically, so no extra locking is needed around saves.
type Repository struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// New wraps an existing Redis client. The client's lifecycle belongs to the
// caller.
func New(client *redis.Client, keyPrefix string, logger *zap.Logger) *Repository {
	if keyPrefix == "" {
		keyPrefix = "otedit"
	}
	return &Repository{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (r *Repository) docKey(id string) string {
	return fmt.Sprintf("%s:doc:%s", r.keyPrefix, id)
}

func (r *Repository) listKey() string {
	return fmt.Sprintf("%s:docs", r.keyPrefix)
}

// Load reads and decodes the snapshot for id.
func (r *Repository) Load(ctx context.Context, id string) (*domain.Document, error) {
	data, err := r.client.Get(ctx, r.docKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc domain.Document
	if len(data) == 0 || json.Unmarshal(data, &doc) != nil || doc.ID == "" {
		r.logger.Warn("unreadable document snapshot", zap.String("document_id", id))
		return nil, domain.ErrCorruptSnapshot
	}
	doc.ActiveUsers = make(map[string]*domain.Presence)
	return &doc, nil
}

// Save writes the snapshot and indexes the id.
func (r *Repository) Save(ctx context.Context, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	if err := r.client.Set(ctx, r.docKey(doc.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if err := r.client.SAdd(ctx, r.listKey(), doc.ID).Err(); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
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

// List returns every indexed document id.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.listKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// Delete removes the snapshot and its index entry.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.docKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := r.client.SRem(ctx, r.listKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex document: %w", err)
	}
	return nil
}

// Close is a no-op; the client is managed by the caller.
func (r *Repository) Close() error {
	return nil
}
