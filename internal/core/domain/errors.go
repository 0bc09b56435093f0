package domain

import "errors"

var (
	ErrNoActiveRoom      = errors.New("no active document room")
	ErrCallAlreadyActive = errors.New("call session already active")
	ErrNoActiveCall      = errors.New("no active call session")
	ErrMediaAccess       = errors.New("media capture denied")
	ErrChannelClosed     = errors.New("realtime channel closed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrStaleCompletion   = errors.New("completion arrived for a superseded session")
)
