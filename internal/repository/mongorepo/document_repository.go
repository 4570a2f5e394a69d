// Package mongorepo implements the document store on MongoDB, one BSON
// document per editing document, replaced wholesale on save.
package mongorepo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/pkg/ot"
)

// record is the stored shape. Presence is not persisted; it is transient.
type record struct {
	ID       string          `bson:"_id"`
	Document domain.Document `bson:"document"`
	Tail     []ot.Operation  `bson:"tail"`
}

// Repository is a MongoDB-backed domain.DocumentStore.
type Repository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// New wraps an existing collection. The client's lifecycle belongs to the
// caller.
func New(collection *mongo.Collection, logger *zap.Logger) *Repository {
	return &Repository{collection: collection, logger: logger}
}

// Load reads the snapshot for id.
func (r *Repository) Load(ctx context.Context, id string) (*domain.Document, error) {
	var rec record
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if rec.Document.ID == "" {
		r.logger.Warn("unreadable document snapshot", zap.String("document_id", id))
		return nil, domain.ErrCorruptSnapshot
	}
	doc := rec.Document
	doc.OperationsTail = rec.Tail
	doc.ActiveUsers = make(map[string]*domain.Presence)
	return &doc, nil
}

// Save upserts the snapshot, replacing any previous record.
func (r *Repository) Save(ctx context.Context, doc *domain.Document) error {
	rec := record{
		ID:       doc.ID,
		Document: *doc,
		Tail:     doc.OperationsTail,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, rec, opts); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
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

// List returns the ids of all stored documents.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var row bson.M
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode document id: %w", err)
		}
		if id, ok := row["_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return ids, nil
}

// Delete removes the snapshot. Deleting an absent id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close is a no-op; the client is managed by the caller.
func (r *Repository) Close() error {
	return nil
}
