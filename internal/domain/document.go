package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/vishu2124/OT-editor/pkg/ot"
)

// Status represents the lifecycle state of a document.
type Status string

const (
	// StatusDraft is the initial state of every document.
	StatusDraft Status = "draft"
	// StatusPublished marks a document as published.
	StatusPublished Status = "published"
	// StatusArchived marks a document as archived.
	StatusArchived Status = "archived"
)

// Metadata holds derived and bookkeeping fields updated on every flush.
type Metadata struct {
	WordCount      int       `json:"wordCount"`
	CharacterCount int       `json:"characterCount"`
	Status         Status    `json:"status"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	LastModifiedBy string    `json:"lastModifiedBy,omitempty"`
	LastAccessedAt time.Time `json:"lastAccessedAt,omitempty"`
	LastAccessedBy string    `json:"lastAccessedBy,omitempty"`
}

// Document is the named, versioned text record shared by participants.
// Content is mutated only by the owning engine. ActiveUsers is persisted for
// observability only; presence is transient and cleared on load.
type Document struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Content        string               `json:"content"`
	Version        int                  `json:"version"`
	OperationsTail []ot.Operation       `json:"operations"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	CreatedBy      string               `json:"createdBy,omitempty"`
	Metadata       Metadata             `json:"metadata"`
	ActiveUsers    map[string]*Presence `json:"activeUsers,omitempty"`
	LastSaved      time.Time            `json:"lastSaved,omitempty"`
}

// NewDocument creates an empty document. An empty id is replaced with a
// generated one.
func NewDocument(id, title, userID string) *Document {
	if id == "" {
		id = uuid.New().String()
	}
	if title == "" {
		title = "Untitled Document"
	}
	now := time.Now()
	return &Document{
		ID:             id,
		Title:          title,
		Content:        "",
		Version:        1,
		OperationsTail: []ot.Operation{},
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      userID,
		Metadata: Metadata{
			Status:    StatusDraft,
			CreatedBy: userID,
		},
		ActiveUsers: make(map[string]*Presence),
	}
}

// Copy returns a deep copy of the document, safe to hand across the engine
// boundary.
func (d *Document) Copy() *Document {
	if d == nil {
		return nil
	}
	dst := &Document{}
	if err := copier.CopyWithOption(dst, d, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on invalid input types; fall back to a shallow copy.
		shallow := *d
		return &shallow
	}
	return dst
}

// RefreshCounts recomputes the derived word and character counts from the
// current content.
func (d *Document) RefreshCounts() {
	d.Metadata.WordCount = len(strings.Fields(d.Content))
	d.Metadata.CharacterCount = len(d.Content)
}

// Snapshot is the read-only view of a document handed to joining sessions and
// the metadata API.
type Snapshot struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Version     int        `json:"version"`
	Metadata    Metadata   `json:"metadata"`
	ActiveUsers []Presence `json:"activeUsers"`
}

// Stats is the lightweight view exposed by the stats endpoint.
type Stats struct {
	Version         int       `json:"version"`
	ActiveUserCount int       `json:"activeUserCount"`
	TailLength      int       `json:"tailLength"`
	QueuedCount     int       `json:"queuedCount"`
	Metadata        Metadata  `json:"metadata"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
