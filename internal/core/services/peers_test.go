package services

import (
	"testing"

	"coedit/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPeerManager(collector *testCollector) *PeerConnectionManager {
	return NewPeerConnectionManager(collector, zap.NewNop().Sugar())
}

func TestUpsertReplacingLinkReleasesOldOne(t *testing.T) {
	m := newPeerManager(&testCollector{})
	oldConn := &fakeConn{}
	oldStream := &fakeStream{id: "old"}
	m.Upsert("peer-a", &domain.PeerLink{PeerID: "peer-a", Connection: oldConn, RemoteStream: oldStream})

	m.Upsert("peer-a", &domain.PeerLink{PeerID: "peer-a", Connection: &fakeConn{}, RemoteStream: &fakeStream{id: "new"}})

	assert.Equal(t, 1, oldConn.closeCount())
	assert.Equal(t, 1, oldStream.stopCount())
	assert.Equal(t, 1, m.Len())
}

func TestRemoveAbsentPeerIsNoop(t *testing.T) {
	collector := &testCollector{}
	m := newPeerManager(collector)

	m.Remove("never-seen")

	assert.Zero(t, m.Len())
	assert.Zero(t, collector.linksClosed)
}

func TestRemoveReleasesLink(t *testing.T) {
	m := newPeerManager(&testCollector{})
	conn := &fakeConn{}
	stream := &fakeStream{id: "s"}
	m.Upsert("peer-a", &domain.PeerLink{PeerID: "peer-a", Connection: conn, RemoteStream: stream})

	m.Remove("peer-a")

	assert.Equal(t, 1, conn.closeCount())
	assert.Equal(t, 1, stream.stopCount())
	assert.False(t, m.Has("peer-a"))
}

func TestAllOrdersSelfFirstThenByPeerID(t *testing.T) {
	m := newPeerManager(&testCollector{})
	m.Upsert("peer-z", &domain.PeerLink{PeerID: "peer-z"})
	m.Upsert("me", &domain.PeerLink{PeerID: "me", IsSelf: true})
	m.Upsert("peer-a", &domain.PeerLink{PeerID: "peer-a"})

	links := m.All()

	require.Len(t, links, 3)
	assert.True(t, links[0].IsSelf)
	assert.Equal(t, domain.PeerID("peer-a"), links[1].PeerID)
	assert.Equal(t, domain.PeerID("peer-z"), links[2].PeerID)
}

func TestClearReleasesEveryLink(t *testing.T) {
	collector := &testCollector{}
	m := newPeerManager(collector)
	connA, connB := &fakeConn{}, &fakeConn{}
	m.Upsert("peer-a", &domain.PeerLink{PeerID: "peer-a", Connection: connA})
	m.Upsert("peer-b", &domain.PeerLink{PeerID: "peer-b", Connection: connB})

	m.Clear()

	assert.Zero(t, m.Len())
	assert.Equal(t, 1, connA.closeCount())
	assert.Equal(t, 1, connB.closeCount())
	assert.Equal(t, 2, collector.linksClosed)
}

func TestPeerLinkReleaseTolerant(t *testing.T) {
	conn := &fakeConn{}
	stream := &fakeStream{id: "s"}
	link := &domain.PeerLink{PeerID: "peer-a", Connection: conn, RemoteStream: stream}

	// Handles promise double-close tolerance, so releasing twice must not
	// panic or error.
	link.Release()
	link.Release()
	assert.GreaterOrEqual(t, conn.closeCount(), 1)
	assert.GreaterOrEqual(t, stream.stopCount(), 1)

	// Links with no connection or stream release cleanly too.
	bare := &domain.PeerLink{PeerID: "peer-b"}
	bare.Release()

	var absent *domain.PeerLink
	absent.Release()
}
