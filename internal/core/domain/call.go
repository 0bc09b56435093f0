package domain

// CallState is the lifecycle state of a call signaling session.
type CallState int

const (
	CallIdle CallState = iota
	CallAcquiringMedia
	CallAnnounced
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallAcquiringMedia:
		return "acquiring_media"
	case CallAnnounced:
		return "announced"
	case CallActive:
		return "active"
	default:
		return "unknown"
	}
}

// ConnectionHandle is the underlying transport resource of a peer link.
// Close must be tolerant of being called more than once.
type ConnectionHandle interface {
	Close() error
}

// MediaStream is a set of live media tracks. Stop must be tolerant of being
// called more than once.
type MediaStream interface {
	ID() string
	Stop()
}

// PeerLink is one live media connection to a call participant, plus one
// synthetic self entry for the local preview (IsSelf, nil Connection).
type PeerLink struct {
	PeerID       PeerID
	Connection   ConnectionHandle
	RemoteStream MediaStream
	IsSelf       bool
}

// Release closes the link's connection handle and stops its stream. Safe to
// call on a link whose resources are already closed or absent.
func (l *PeerLink) Release() {
	if l == nil {
		return
	}
	if l.Connection != nil {
		_ = l.Connection.Close()
	}
	if l.RemoteStream != nil {
		l.RemoteStream.Stop()
	}
}
