package domain

import "errors"

// Typed failures surfaced by the engine, hub, and stores. Recoverable errors
// are reported to the originating session only; aggregate state is never
// rolled back for another client's failure.
var (
	// ErrInvalidOperation marks a malformed operation or a bounds violation
	// detected at admission.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnknownDocument marks an operation referencing a session/document
	// pair the hub does not know.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrDocumentNotFound is returned by stores when no snapshot exists for
	// an id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrCorruptSnapshot is returned by stores when a snapshot exists but
	// cannot be decoded. Callers treat it as absent and create a fresh
	// record; content is never guessed.
	ErrCorruptSnapshot = errors.New("corrupt document snapshot")

	// ErrSessionNotFound marks a request for a session the registry does not
	// hold.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSinkClosed is returned by sinks after Close.
	ErrSinkClosed = errors.New("sink closed")

	// ErrEngineClosed is returned by engine operations after eviction or
	// shutdown.
	ErrEngineClosed = errors.New("engine closed")

	// ErrDocumentActive prevents deleting a document that still has attached
	// sessions.
	ErrDocumentActive = errors.New("document has active sessions")
)
