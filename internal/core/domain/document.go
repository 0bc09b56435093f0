package domain

import "time"

type DocumentID string
type PeerID string

type Document struct {
	ID      DocumentID `json:"id"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

// RoomMembership is the client's subscription to one document room.
// A client holds at most one at a time: selecting a new document leaves
// the previous room.
type RoomMembership struct {
	DocumentID DocumentID
	JoinedAt   time.Time
}

// EditOrigin tracks whether the next local-edit callback reflects a buffer
// mutation of remote origin. It is a two-state machine consumed atomically
// by the edit handler: exactly one suppression per remote update.
type EditOrigin int

const (
	// EditOriginLocalPending means the next local edit is genuinely local
	// and must be broadcast.
	EditOriginLocalPending EditOrigin = iota

	// EditOriginSuppressNext means the next local-edit callback is the echo
	// of a remote update just applied to the buffer and must not be
	// re-broadcast.
	EditOriginSuppressNext
)
