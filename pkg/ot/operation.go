// Package ot implements the operational transformation algebra used by the
// collaborative editing engine. Operations are position-based edits over the
// canonical document text; positions and lengths are measured in bytes of the
// UTF-8 representation, end to end.
package ot

import (
	"errors"
	"fmt"
)

// Kind identifies the type of an operation.
type Kind string

const (
	// KindInsert inserts Content at Position.
	KindInsert Kind = "insert"
	// KindDelete removes Length units starting at Position.
	KindDelete Kind = "delete"
	// KindReplace removes Length units starting at Position and inserts Content there.
	KindReplace Kind = "replace"
	// KindRetain carries no state change.
	KindRetain Kind = "retain"
)

// Operation is an atomic edit intent against a document.
//
// Content is only meaningful for insert and replace; Length only for delete
// and replace. Version and Applied are assigned by the engine once the
// operation has been canonically applied.
type Operation struct {
	ID        string `json:"id,omitempty"`
	Kind      Kind   `json:"type"`
	Position  int    `json:"position"`
	Content   string `json:"content,omitempty"`
	Length    int    `json:"length,omitempty"`
	UserID    string `json:"userId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Version   int    `json:"version,omitempty"`
	Applied   bool   `json:"applied,omitempty"`
}

// ErrUnknownKind is returned by Apply for operation kinds it does not understand.
var ErrUnknownKind = errors.New("unknown operation kind")

// End returns the exclusive end of the span removed by a delete or replace.
func (op Operation) End() int {
	return op.Position + op.Length
}

// NetDelta returns the length change the operation causes when applied.
func (op Operation) NetDelta() int {
	switch op.Kind {
	case KindInsert:
		return len(op.Content)
	case KindDelete:
		return -op.Length
	case KindReplace:
		return len(op.Content) - op.Length
	default:
		return 0
	}
}

// Validate checks the operation's internal consistency against a document of
// the given length. It does not consult any concurrent state.
func (op Operation) Validate(docLen int) error {
	if op.Position < 0 {
		return fmt.Errorf("position %d is negative", op.Position)
	}
	switch op.Kind {
	case KindInsert:
		if op.Content == "" {
			return errors.New("insert requires non-empty content")
		}
		if op.Position > docLen {
			return fmt.Errorf("insert position %d out of bounds (document length %d)", op.Position, docLen)
		}
	case KindDelete:
		if op.Length <= 0 {
			return errors.New("delete requires positive length")
		}
		if op.End() > docLen {
			return fmt.Errorf("delete range [%d,%d) exceeds document length %d", op.Position, op.End(), docLen)
		}
	case KindReplace:
		if op.Length <= 0 {
			return errors.New("replace requires positive length")
		}
		if op.Content == "" {
			return errors.New("replace requires non-empty content")
		}
		if op.End() > docLen {
			return fmt.Errorf("replace range [%d,%d) exceeds document length %d", op.Position, op.End(), docLen)
		}
	case KindRetain:
		// Carries no state change.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	return nil
}

// Before reports whether op is strictly earlier than other in the canonical
// (timestamp, userID) lexicographic order used for transform sequencing.
func (op Operation) Before(other Operation) bool {
	if op.Timestamp != other.Timestamp {
		return op.Timestamp < other.Timestamp
	}
	return op.UserID < other.UserID
}
