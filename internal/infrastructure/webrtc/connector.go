package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config carries the ICE configuration for peer links.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// keyframeInterval is how often a PLI is sent on received video tracks so a
// peer joining mid-stream gets a decodable picture promptly.
const keyframeInterval = 3 * time.Second

// trackProvider is satisfied by local streams that expose pion tracks for
// attachment to outbound peer connections.
type trackProvider interface {
	Tracks() []*webrtc.TrackLocalStaticRTP
}

// link is one negotiated (or negotiating) connection to a remote peer.
type link struct {
	peer domain.PeerID
	pc   *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	// candidates that arrived before the remote description; flushed once
	// SetRemoteDescription succeeds.
	pending []webrtc.ICECandidateInit
}

// Connector negotiates direct media links over the relay channel. Offers,
// answers and ICE candidates ride rtc-* events that fan out to the whole
// room; each receiver drops payloads not addressed to its own peer identity.
type Connector struct {
	channel ports.RealtimeChannel
	config  Config
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	active   bool
	self     domain.PeerID
	local    trackProvider
	onRemote ports.RemoteStreamHandler
	links    map[domain.PeerID]*link
}

var _ ports.PeerConnector = (*Connector)(nil)

// NewConnector registers the rtc-* relay handlers once; they stay inert
// until Begin activates the connector for a call.
func NewConnector(channel ports.RealtimeChannel, config Config, logger *zap.SugaredLogger) *Connector {
	c := &Connector{
		channel: channel,
		config:  config,
		logger:  logger,
		links:   make(map[domain.PeerID]*link),
	}
	channel.On(domain.EventRTCOffer, c.handleOffer)
	channel.On(domain.EventRTCAnswer, c.handleAnswer)
	channel.On(domain.EventRTCCandidate, c.handleCandidate)
	return c
}

// Begin activates the connector for one call. After it returns, inbound
// offers addressed to self are answered.
func (c *Connector) Begin(ctx context.Context, self domain.PeerID, local domain.MediaStream, onRemoteStream ports.RemoteStreamHandler) error {
	provider, ok := local.(trackProvider)
	if !ok {
		return fmt.Errorf("local stream %q does not expose sendable tracks", local.ID())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return domain.ErrCallAlreadyActive
	}
	c.active = true
	c.self = self
	c.local = provider
	c.onRemote = onRemoteStream
	return nil
}

// Connect initiates the outbound link to a peer: build the connection with
// local tracks attached, then send the offer addressed to the peer.
func (c *Connector) Connect(ctx context.Context, peer domain.PeerID) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	self := c.self
	c.mu.Unlock()

	l, err := c.createLink(peer)
	if err != nil {
		return err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		c.dropLink(peer)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		c.dropLink(peer)
		return fmt.Errorf("set local description: %w", err)
	}

	payload := domain.RTCSignalPayload{From: self, To: peer, SDP: offer.SDP}
	if err := c.channel.Send(domain.EventRTCOffer, payload); err != nil {
		c.dropLink(peer)
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

// End discards negotiation state and closes every connection the call
// opened. Link handles tolerate the redundant close during peer teardown.
func (c *Connector) End() error {
	c.mu.Lock()
	links := c.links
	c.links = make(map[domain.PeerID]*link)
	c.active = false
	c.self = ""
	c.local = nil
	c.onRemote = nil
	c.mu.Unlock()

	for _, l := range links {
		if err := l.pc.Close(); err != nil {
			c.logger.Warnw("peer connection close", "peer_id", l.peer, "error", err)
		}
	}
	return nil
}

// createLink builds a peer connection with the local tracks attached and all
// callbacks wired. The link is registered before negotiation starts so
// candidates arriving early find it.
func (c *Connector) createLink(peer domain.PeerID) (*link, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil, domain.ErrNoActiveCall
	}
	if existing, ok := c.links[peer]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	self := c.self
	local := c.local
	c.mu.Unlock()

	pc, err := c.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	for _, track := range local.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add local track %s: %w", track.ID(), err)
		}
	}

	l := &link{peer: peer, pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		payload := domain.RTCSignalPayload{
			From:      self,
			To:        peer,
			Candidate: candidate.ToJSON().Candidate,
		}
		if err := c.channel.Send(domain.EventRTCCandidate, payload); err != nil {
			c.logger.Warnw("send ice candidate", "peer_id", peer, "error", err)
		}
	})
	pc.OnTrack(c.handleTrack(peer, pc))
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Infow("peer connection state changed", "peer_id", peer, "state", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			c.dropLink(peer)
		}
	})

	c.mu.Lock()
	c.links[peer] = l
	c.mu.Unlock()
	return l, nil
}

func (c *Connector) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   c.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if c.config.PortRange.Min > 0 && c.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(c.config.PortRange.Min, c.config.PortRange.Max); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// handleOffer answers an inbound offer addressed to this client.
func (c *Connector) handleOffer(payload json.RawMessage) {
	var p domain.RTCSignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warnw("malformed rtc-offer payload", "error", err)
		return
	}
	if !c.addressedToSelf(p.To) {
		return
	}

	l, err := c.createLink(p.From)
	if err != nil {
		c.logger.Warnw("inbound link setup failed", "peer_id", p.From, "error", err)
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		c.logger.Warnw("set remote offer", "peer_id", p.From, "error", err)
		c.dropLink(p.From)
		return
	}
	l.flushCandidates(c.logger)

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		c.logger.Warnw("create answer", "peer_id", p.From, "error", err)
		c.dropLink(p.From)
		return
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		c.logger.Warnw("set local answer", "peer_id", p.From, "error", err)
		c.dropLink(p.From)
		return
	}

	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	reply := domain.RTCSignalPayload{From: self, To: p.From, SDP: answer.SDP}
	if err := c.channel.Send(domain.EventRTCAnswer, reply); err != nil {
		c.logger.Warnw("send answer", "peer_id", p.From, "error", err)
		c.dropLink(p.From)
	}
}

// handleAnswer completes an outbound negotiation.
func (c *Connector) handleAnswer(payload json.RawMessage) {
	var p domain.RTCSignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warnw("malformed rtc-answer payload", "error", err)
		return
	}
	if !c.addressedToSelf(p.To) {
		return
	}

	c.mu.Lock()
	l, ok := c.links[p.From]
	c.mu.Unlock()
	if !ok {
		c.logger.Debugw("answer for unknown link dropped", "peer_id", p.From)
		return
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		c.logger.Warnw("set remote answer", "peer_id", p.From, "error", err)
		c.dropLink(p.From)
		return
	}
	l.flushCandidates(c.logger)
}

// handleCandidate applies a trickled ICE candidate, buffering it when the
// remote description has not landed yet.
func (c *Connector) handleCandidate(payload json.RawMessage) {
	var p domain.RTCSignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warnw("malformed rtc-candidate payload", "error", err)
		return
	}
	if !c.addressedToSelf(p.To) || p.Candidate == "" {
		return
	}

	c.mu.Lock()
	l, ok := c.links[p.From]
	c.mu.Unlock()
	if !ok {
		c.logger.Debugw("candidate for unknown link dropped", "peer_id", p.From)
		return
	}

	candidate := webrtc.ICECandidateInit{Candidate: p.Candidate}
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, candidate)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(candidate); err != nil {
		c.logger.Warnw("add ice candidate", "peer_id", p.From, "error", err)
	}
}

// handleTrack delivers the remote stream once the first track arrives, and
// keeps the media flowing by draining RTP and requesting keyframes. All
// tracks of one link share the stream's lifetime.
func (c *Connector) handleTrack(peer domain.PeerID, pc *webrtc.PeerConnection) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	stream := newRemoteStream()
	delivered := false
	var deliverMu sync.Mutex

	return func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Infow("remote track started",
			"peer_id", peer,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.requestKeyframes(pc, track, stream.done)
		}
		go drainTrack(track, stream)
		go drainRTCP(receiver)

		deliverMu.Lock()
		first := !delivered
		delivered = true
		if first {
			stream.id = track.StreamID()
		}
		deliverMu.Unlock()
		if !first {
			return
		}

		c.mu.Lock()
		onRemote := c.onRemote
		c.mu.Unlock()
		if onRemote == nil {
			return
		}

		onRemote(peer, &connectionHandle{pc: pc}, stream)
	}
}

// requestKeyframes periodically asks the sender for a full picture so late
// joiners and loss recovery do not wait on the encoder's own cadence.
func (c *Connector) requestKeyframes(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, done <-chan struct{}) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			pli := &rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}
			if err := pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
				return
			}
		}
	}
}

// drainTrack consumes inbound RTP so the jitter buffer never stalls. The
// rendering surface taps the decoded media elsewhere; the core only keeps
// the transport alive.
func drainTrack(track *webrtc.TrackRemote, stream *remoteStream) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			stream.Stop()
			return
		}
	}
}

func drainRTCP(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

func (c *Connector) addressedToSelf(to domain.PeerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && to == c.self
}

func (c *Connector) dropLink(peer domain.PeerID) {
	c.mu.Lock()
	l, ok := c.links[peer]
	delete(c.links, peer)
	c.mu.Unlock()
	if ok {
		l.pc.Close()
	}
}

func (l *link) flushCandidates(logger *zap.SugaredLogger) {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, candidate := range pending {
		if err := l.pc.AddICECandidate(candidate); err != nil {
			logger.Warnw("add buffered ice candidate", "peer_id", l.peer, "error", err)
		}
	}
}

// connectionHandle adapts a pion connection to the domain handle. Closing
// twice is tolerated.
type connectionHandle struct {
	pc   *webrtc.PeerConnection
	once sync.Once
	err  error
}

var _ domain.ConnectionHandle = (*connectionHandle)(nil)

func (h *connectionHandle) Close() error {
	h.once.Do(func() {
		h.err = h.pc.Close()
	})
	return h.err
}

// remoteStream is the inbound media of one peer link.
type remoteStream struct {
	id   string
	done chan struct{}
	once sync.Once
}

var _ domain.MediaStream = (*remoteStream)(nil)

func newRemoteStream() *remoteStream {
	return &remoteStream{done: make(chan struct{})}
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Stop() {
	s.once.Do(func() { close(s.done) })
}
