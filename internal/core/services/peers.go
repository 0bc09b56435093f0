package services

import (
	"sort"
	"sync"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"

	"go.uber.org/zap"
)

// PeerConnectionManager is a pure keyed store of live peer links. It holds
// no network logic; the call signaling session decides what goes in and out.
type PeerConnectionManager struct {
	mu    sync.RWMutex
	links map[domain.PeerID]*domain.PeerLink

	metrics ports.Collector
	logger  *zap.SugaredLogger
}

func NewPeerConnectionManager(metrics ports.Collector, logger *zap.SugaredLogger) *PeerConnectionManager {
	return &PeerConnectionManager{
		links:   make(map[domain.PeerID]*domain.PeerLink),
		metrics: metrics,
		logger:  logger,
	}
}

// Upsert stores the link for a peer. A replaced link is released first so
// its connection handle and media resources cannot leak.
func (m *PeerConnectionManager) Upsert(peerID domain.PeerID, link *domain.PeerLink) {
	m.mu.Lock()
	old, existed := m.links[peerID]
	m.links[peerID] = link
	m.mu.Unlock()

	if existed {
		m.logger.Warnw("replacing existing peer link", "peer_id", peerID)
		old.Release()
	} else {
		m.metrics.RecordPeerLinkOpened()
	}
}

// Has reports whether a link exists for the peer.
func (m *PeerConnectionManager) Has(peerID domain.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[peerID]
	return ok
}

// Remove releases the peer's link resources and drops it from the set.
// Absent peers and already-closed handles are tolerated: duplicate leave
// notifications must never surface an error.
func (m *PeerConnectionManager) Remove(peerID domain.PeerID) {
	m.mu.Lock()
	link, ok := m.links[peerID]
	delete(m.links, peerID)
	m.mu.Unlock()

	if !ok {
		return
	}
	link.Release()
	m.metrics.RecordPeerLinkClosed()
	m.logger.Debugw("peer link removed", "peer_id", peerID)
}

// All returns a stable snapshot of the current links for rendering.
func (m *PeerConnectionManager) All() []*domain.PeerLink {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]*domain.PeerLink, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool {
		// Self entry renders first.
		if links[i].IsSelf != links[j].IsSelf {
			return links[i].IsSelf
		}
		return links[i].PeerID < links[j].PeerID
	})
	return links
}

// Len returns the number of stored links, the self entry included.
func (m *PeerConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// Clear releases every link and empties the set.
func (m *PeerConnectionManager) Clear() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[domain.PeerID]*domain.PeerLink)
	m.mu.Unlock()

	for peerID, link := range links {
		link.Release()
		m.metrics.RecordPeerLinkClosed()
		m.logger.Debugw("peer link removed on teardown", "peer_id", peerID)
	}
}
