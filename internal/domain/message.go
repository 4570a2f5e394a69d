package domain

import (
	"github.com/vishu2124/OT-editor/pkg/ot"
)

// MessageType discriminates wire messages in both directions.
type MessageType string

// Client to server.
const (
	MessageJoinDocument  MessageType = "join-document"
	MessageLeaveDocument MessageType = "leave-document"
	MessageOperation     MessageType = "operation"
	MessageCursorUpdate  MessageType = "cursor-update"
)

// Server to client.
const (
	MessageDocumentState      MessageType = "document-state"
	MessageOperationImmediate MessageType = "operation-immediate"
	MessageDocumentSync       MessageType = "document-sync"
	MessageUserJoined         MessageType = "user-joined"
	MessageUserLeft           MessageType = "user-left"
	MessageUsersUpdated       MessageType = "users-updated"
	MessageError              MessageType = "error"
)

// Message is the flat wire record exchanged with clients. Fields are set per
// Type; everything else stays empty. Content and TempContent are pointers so
// that an empty document still serializes the field.
type Message struct {
	Type        MessageType    `json:"type"`
	DocumentID  string         `json:"documentId,omitempty"`
	Content     *string        `json:"content,omitempty"`
	TempContent *string        `json:"tempContent,omitempty"`
	Version     int            `json:"version,omitempty"`
	Operation   *ot.Operation  `json:"operation,omitempty"`
	Operations  []ot.Operation `json:"operations,omitempty"`
	Metadata    *Metadata      `json:"metadata,omitempty"`
	User        *Presence      `json:"user,omitempty"`
	SocketID    string         `json:"socketId,omitempty"`
	ActiveUsers []Presence     `json:"activeUsers,omitempty"`
	Cursor      *Cursor        `json:"cursor,omitempty"`
	Timestamp   int64          `json:"timestamp,omitempty"`
	ErrMessage  string         `json:"message,omitempty"`
}

// NewDocumentStateMessage is the initial snapshot sent to the joining session
// only, before any other message for that join.
func NewDocumentStateMessage(snap Snapshot) Message {
	content := snap.Content
	metadata := snap.Metadata
	return Message{
		Type:        MessageDocumentState,
		DocumentID:  snap.ID,
		Content:     &content,
		Version:     snap.Version,
		Metadata:    &metadata,
		ActiveUsers: snap.ActiveUsers,
	}
}

// NewOperationImmediateMessage is the optimistic echo sent to peers before
// the canonical document-sync.
func NewOperationImmediateMessage(documentID string, op ot.Operation, tempContent string, user Presence) Message {
	return Message{
		Type:        MessageOperationImmediate,
		DocumentID:  documentID,
		Operation:   &op,
		TempContent: &tempContent,
		User:        &user,
	}
}

// NewDocumentSyncMessage is the authoritative reconciliation sent to every
// session of the document, originators included.
func NewDocumentSyncMessage(documentID, content string, version int, applied []ot.Operation, metadata Metadata) Message {
	return Message{
		Type:       MessageDocumentSync,
		DocumentID: documentID,
		Content:    &content,
		Version:    version,
		Operations: applied,
		Metadata:   &metadata,
	}
}

// NewUserJoinedMessage announces a new session to its peers.
func NewUserJoinedMessage(documentID, sessionID string, user Presence) Message {
	return Message{
		Type:       MessageUserJoined,
		DocumentID: documentID,
		SocketID:   sessionID,
		User:       &user,
	}
}

// NewUserLeftMessage announces a departed session to its peers.
func NewUserLeftMessage(documentID, sessionID string, user Presence) Message {
	return Message{
		Type:       MessageUserLeft,
		DocumentID: documentID,
		SocketID:   sessionID,
		User:       &user,
	}
}

// NewUsersUpdatedMessage carries the full subscriber set at the moment of
// emission.
func NewUsersUpdatedMessage(documentID string, users []Presence) Message {
	return Message{
		Type:        MessageUsersUpdated,
		DocumentID:  documentID,
		ActiveUsers: users,
	}
}

// NewCursorUpdateMessage relays a peer's cursor movement.
func NewCursorUpdateMessage(documentID string, user Presence, cursor Cursor, timestamp int64) Message {
	return Message{
		Type:       MessageCursorUpdate,
		DocumentID: documentID,
		User:       &user,
		Cursor:     &cursor,
		Timestamp:  timestamp,
	}
}

// NewErrorMessage reports a recoverable failure to the originating session.
func NewErrorMessage(message string) Message {
	return Message{
		Type:       MessageError,
		ErrMessage: message,
	}
}
