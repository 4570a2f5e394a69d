package domain

import "time"

// Cursor is the opaque per-user cursor state broadcast to peers.
type Cursor struct {
	Position     int  `json:"position"`
	SelectionEnd *int `json:"selectionEnd,omitempty"`
}

// UserInfo is the caller-supplied display record for a session. The engine
// treats all identifiers as opaque.
type UserInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	Avatar      string `json:"avatar,omitempty"`
}

// Presence is the per-session record visible to peers of the same document.
type Presence struct {
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	Color            string    `json:"color"`
	Avatar           string    `json:"avatar,omitempty"`
	JoinedAt         time.Time `json:"joinedAt"`
	Cursor           *Cursor   `json:"cursor,omitempty"`
	LastCursorUpdate time.Time `json:"lastCursorUpdate,omitempty"`
}

// NewPresence builds the initial presence record for a joining session.
func NewPresence(user UserInfo, joinedAt time.Time) *Presence {
	return &Presence{
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Color:       user.Color,
		Avatar:      user.Avatar,
		JoinedAt:    joinedAt,
	}
}
