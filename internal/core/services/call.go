package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallSignalingSession owns join/leave of a call room, peer discovery and
// offer/answer coordination. Lifecycle: Idle -> AcquiringMedia -> Announced
// -> Active, collapsing back to Idle on any teardown so the user can rejoin.
type CallSignalingSession struct {
	channel   ports.RealtimeChannel
	media     ports.MediaSource
	connector ports.PeerConnector
	peers     *PeerConnectionManager
	metrics   ports.Collector
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	state       domain.CallState
	documentID  domain.DocumentID
	localPeerID domain.PeerID
	localStream domain.MediaStream

	// generation guards against late-arriving completions of superseded
	// intents: async resumes compare it before applying effects.
	generation uint64
}

func NewCallSignalingSession(
	channel ports.RealtimeChannel,
	media ports.MediaSource,
	connector ports.PeerConnector,
	peers *PeerConnectionManager,
	metrics ports.Collector,
	logger *zap.SugaredLogger,
) *CallSignalingSession {
	s := &CallSignalingSession{
		channel:   channel,
		media:     media,
		connector: connector,
		peers:     peers,
		metrics:   metrics,
		logger:    logger,
		state:     domain.CallIdle,
	}
	channel.On(domain.EventUserJoinedVideo, s.handleUserJoined)
	channel.On(domain.EventUserLeftVideo, s.handleUserLeft)
	return s
}

// Join starts a call scoped to the given document: acquire local media,
// wire up inbound connection handling, then announce presence. Announcing
// before the connector is ready would lose inbound offers, so the order is
// fixed.
func (s *CallSignalingSession) Join(ctx context.Context, documentID domain.DocumentID) error {
	s.mu.Lock()
	if s.state != domain.CallIdle {
		s.mu.Unlock()
		return domain.ErrCallAlreadyActive
	}
	s.state = domain.CallAcquiringMedia
	s.documentID = documentID
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.metrics.SetCallState(domain.CallAcquiringMedia.String())

	stream, err := s.media.Acquire(ctx)

	s.mu.Lock()
	if gen != s.generation || s.state != domain.CallAcquiringMedia {
		s.mu.Unlock()
		// The intent was superseded while capture was in flight. Capture
		// requests cannot be aborted, so release the late result here.
		if err == nil && stream != nil {
			stream.Stop()
		}
		return domain.ErrStaleCompletion
	}
	if err != nil {
		s.resetLocked()
		s.mu.Unlock()
		s.metrics.SetCallState(domain.CallIdle.String())
		return fmt.Errorf("%w: %v", domain.ErrMediaAccess, err)
	}

	self := domain.PeerID(uuid.NewString())
	s.localPeerID = self
	s.localStream = stream
	s.mu.Unlock()

	if err := s.connector.Begin(ctx, self, stream, s.handleRemoteStream); err != nil {
		s.Terminate()
		return fmt.Errorf("peer connector start: %w", err)
	}

	// Synthetic self entry for the local preview tile.
	s.peers.Upsert(self, &domain.PeerLink{PeerID: self, RemoteStream: stream, IsSelf: true})

	payload := domain.JoinVideoPayload{DocID: documentID, PeerID: self}
	if err := s.channel.Send(domain.EventJoinVideo, payload); err != nil {
		s.Terminate()
		return fmt.Errorf("announce call presence: %w", err)
	}

	s.mu.Lock()
	if gen == s.generation {
		s.state = domain.CallAnnounced
	}
	s.mu.Unlock()
	s.metrics.SetCallState(domain.CallAnnounced.String())

	s.logger.Infow("call joined", "document_id", documentID, "peer_id", self)
	return nil
}

// Terminate tears the call down: every peer link is released (self
// included), local media is stopped and the session returns to Idle.
// Safe to call when no call is active.
func (s *CallSignalingSession) Terminate() {
	s.mu.Lock()
	if s.state == domain.CallIdle {
		s.mu.Unlock()
		return
	}
	stream := s.localStream
	documentID := s.documentID
	s.resetLocked()
	s.mu.Unlock()

	if err := s.connector.End(); err != nil {
		s.logger.Warnw("peer connector teardown", "error", err)
	}
	s.peers.Clear()
	if stream != nil {
		stream.Stop()
	}
	s.metrics.SetCallState(domain.CallIdle.String())
	s.logger.Infow("call terminated", "document_id", documentID)
}

// resetLocked clears call identity and bumps the generation so in-flight
// completions detect they are stale. Caller must hold the lock.
func (s *CallSignalingSession) resetLocked() {
	s.state = domain.CallIdle
	s.documentID = ""
	s.localPeerID = ""
	s.localStream = nil
	s.generation++
}

// handleUserJoined reacts to a new participant announcing presence: the
// existing member initiates the outbound link. Duplicate notifications for
// a peer with a live link are absorbed.
func (s *CallSignalingSession) handleUserJoined(payload json.RawMessage) {
	var p domain.PeerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warnw("malformed user-joined-video payload", "error", err)
		return
	}
	s.mu.Lock()
	inCall := s.state == domain.CallAnnounced || s.state == domain.CallActive
	self := s.localPeerID
	s.mu.Unlock()

	if !inCall || p.PeerID == self || p.PeerID == "" {
		return
	}
	if s.peers.Has(p.PeerID) {
		s.logger.Debugw("duplicate join notification ignored", "peer_id", p.PeerID)
		return
	}

	if err := s.connector.Connect(context.Background(), p.PeerID); err != nil {
		s.logger.Warnw("outbound peer connection failed", "peer_id", p.PeerID, "error", err)
	}
}

// handleUserLeft destroys the departed peer's link. A peer with no link is
// a no-op: duplicate leave notifications are expected relay noise.
func (s *CallSignalingSession) handleUserLeft(payload json.RawMessage) {
	var p domain.PeerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warnw("malformed user-left-video payload", "error", err)
		return
	}
	s.peers.Remove(p.PeerID)
}

// handleRemoteStream registers the link once a negotiated connection starts
// delivering the remote peer's media. The first one moves the session to
// Active. A completion that lands after teardown releases its resources
// instead of resurrecting the call.
func (s *CallSignalingSession) handleRemoteStream(peer domain.PeerID, conn domain.ConnectionHandle, stream domain.MediaStream) {
	s.mu.Lock()
	inCall := s.state == domain.CallAnnounced || s.state == domain.CallActive
	if !inCall {
		s.mu.Unlock()
		late := &domain.PeerLink{PeerID: peer, Connection: conn, RemoteStream: stream}
		late.Release()
		s.logger.Debugw("late peer stream released after teardown", "peer_id", peer)
		return
	}
	s.state = domain.CallActive
	s.mu.Unlock()

	s.peers.Upsert(peer, &domain.PeerLink{PeerID: peer, Connection: conn, RemoteStream: stream})
	s.metrics.SetCallState(domain.CallActive.String())
	s.logger.Infow("peer stream attached", "peer_id", peer)
}

// State returns the current lifecycle state.
func (s *CallSignalingSession) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LocalPeerID returns the call identity, empty when idle.
func (s *CallSignalingSession) LocalPeerID() domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPeerID
}

// DocumentID returns the document the call is scoped to, empty when idle.
func (s *CallSignalingSession) DocumentID() domain.DocumentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

// Peers returns a snapshot of the current links for rendering.
func (s *CallSignalingSession) Peers() []*domain.PeerLink {
	return s.peers.All()
}
