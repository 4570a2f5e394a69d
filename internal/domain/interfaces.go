package domain

import "context"

// DocumentStore persists document snapshots keyed by document id. Each id has
// a single writer (the owning engine); implementations only need to make the
// replacement of a snapshot atomic with respect to concurrent readers.
type DocumentStore interface {
	// Load reads the snapshot for id. It returns ErrDocumentNotFound when no
	// record exists and ErrCorruptSnapshot when a record exists but cannot be
	// decoded; callers treat both as absent.
	Load(ctx context.Context, id string) (*Document, error)

	// Save writes the snapshot, replacing any previous one atomically.
	Save(ctx context.Context, doc *Document) error

	// Create builds an empty document and persists it. An empty id is
	// replaced with a generated one.
	Create(ctx context.Context, id, title, userID string) (*Document, error)

	// List returns the ids of all persisted documents.
	List(ctx context.Context) ([]string, error)

	// Delete removes the snapshot for id. Deleting an absent id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Close releases any underlying resources.
	Close() error
}

// Broadcaster is the emit handle the hub gives each engine. Engines never
// hold sinks directly; they hand messages to the hub, which copies the
// subscriber set before fan-out.
type Broadcaster interface {
	// Broadcast delivers msg to every session subscribed to the document.
	Broadcast(documentID string, msg Message)

	// BroadcastExcept delivers msg to every session of the document except
	// the named one (used for operation-immediate and cursor-update).
	BroadcastExcept(documentID, exceptSessionID string, msg Message)

	// SendTo delivers msg to a single session.
	SendTo(sessionID string, msg Message)
}

// Sink is one session's outbound delivery channel, owned by the transport
// adapter. Send failures mark the session as disconnected.
type Sink interface {
	Send(msg Message) error
	Close() error
}
