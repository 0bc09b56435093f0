package webrtc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// CaptureConfig names the local UDP sockets an external capture process
// feeds RTP into: Opus on the audio address, VP8 on the video address.
type CaptureConfig struct {
	AudioAddress string
	VideoAddress string
}

// RTPSource acquires local media by listening for RTP from the platform's
// capture pipeline. Each Acquire opens fresh sockets; Stop on the returned
// stream closes them, so a failed acquisition never leaks ports.
type RTPSource struct {
	config CaptureConfig
	logger *zap.SugaredLogger
}

var _ ports.MediaSource = (*RTPSource)(nil)

func NewRTPSource(config CaptureConfig, logger *zap.SugaredLogger) *RTPSource {
	return &RTPSource{config: config, logger: logger}
}

// Acquire opens the capture sockets and starts pumping RTP into local
// tracks. It fails when either socket cannot be bound, which is the local
// equivalent of the user denying camera access.
func (s *RTPSource) Acquire(ctx context.Context) (domain.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "coedit-" + uuid.NewString()

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	audioConn, err := listenRTP(s.config.AudioAddress)
	if err != nil {
		return nil, fmt.Errorf("bind audio capture socket: %w", err)
	}
	videoConn, err := listenRTP(s.config.VideoAddress)
	if err != nil {
		audioConn.Close()
		return nil, fmt.Errorf("bind video capture socket: %w", err)
	}

	stream := &localStream{
		id:     streamID,
		tracks: []*webrtc.TrackLocalStaticRTP{audioTrack, videoTrack},
		conns:  []*net.UDPConn{audioConn, videoConn},
		logger: s.logger,
	}

	go stream.pump(audioConn, audioTrack)
	go stream.pump(videoConn, videoTrack)

	s.logger.Infow("local capture acquired",
		"stream_id", streamID,
		"audio_addr", s.config.AudioAddress,
		"video_addr", s.config.VideoAddress,
	)
	return stream, nil
}

func listenRTP(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}

// localStream is the user's own audio+video, exposed to the connector as
// sendable tracks and to the coordinator as the self preview tile.
type localStream struct {
	id     string
	tracks []*webrtc.TrackLocalStaticRTP
	conns  []*net.UDPConn
	logger *zap.SugaredLogger
	once   sync.Once
}

var (
	_ domain.MediaStream = (*localStream)(nil)
	_ trackProvider      = (*localStream)(nil)
)

func (s *localStream) ID() string { return s.id }

// Tracks exposes the sendable tracks for attachment to peer connections.
func (s *localStream) Tracks() []*webrtc.TrackLocalStaticRTP {
	return s.tracks
}

// Stop closes the capture sockets, which unblocks the pumps.
func (s *localStream) Stop() {
	s.once.Do(func() {
		for _, conn := range s.conns {
			conn.Close()
		}
		s.logger.Infow("local capture stopped", "stream_id", s.id)
	})
}

// pump forwards capture RTP into the local track until the socket closes.
// Every peer connection the track is attached to receives the packets.
func (s *localStream) pump(conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP) {
	buf := make([]byte, 1500)
	packet := &rtp.Packet{}

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("malformed capture packet dropped", "track_id", track.ID(), "error", err)
			continue
		}
		if err := track.WriteRTP(packet); err != nil {
			s.logger.Warnw("write capture packet", "track_id", track.ID(), "error", err)
		}
	}
}
