package ports

import (
	"context"

	"coedit/internal/core/domain"
)

// MediaSource acquires local audio+video capture from the platform.
type MediaSource interface {
	Acquire(ctx context.Context) (domain.MediaStream, error)
}

// RemoteStreamHandler is invoked once a negotiated link starts delivering
// the remote peer's media.
type RemoteStreamHandler func(peer domain.PeerID, conn domain.ConnectionHandle, stream domain.MediaStream)

// PeerConnector negotiates direct media links with remote peers, using the
// relay channel for offer/answer/candidate exchange.
type PeerConnector interface {
	// Begin wires inbound negotiation handling for the given call identity
	// and local stream. When Begin returns, the connector accepts inbound
	// connection requests; presence must not be announced before that.
	Begin(ctx context.Context, self domain.PeerID, local domain.MediaStream, onRemoteStream RemoteStreamHandler) error

	// Connect initiates an outbound link to the remote peer, attaching the
	// local stream. The resulting remote stream is delivered through the
	// handler passed to Begin.
	Connect(ctx context.Context, peer domain.PeerID) error

	// End discards negotiation state for the current call and closes the
	// connections it opened. Peer link handles must tolerate a connection
	// that is already closed.
	End() error
}
