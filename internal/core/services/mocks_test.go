package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
)

// fakeChannel records sent frames and lets tests inject inbound events.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []sentFrame
	sendErr  error
	handlers map[string][]ports.EventHandler
}

type sentFrame struct {
	Event   string
	Payload interface{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]ports.EventHandler)}
}

func (c *fakeChannel) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentFrame{Event: event, Payload: payload})
	return nil
}

func (c *fakeChannel) On(event string, handler ports.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *fakeChannel) Close() error { return nil }

// emit delivers an inbound event the way the relay read loop would.
func (c *fakeChannel) emit(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	c.mu.Lock()
	handlers := c.handlers[event]
	c.mu.Unlock()
	for _, handler := range handlers {
		handler(raw)
	}
}

func (c *fakeChannel) sentEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]string, len(c.sent))
	for i, frame := range c.sent {
		events[i] = frame.Event
	}
	return events
}

func (c *fakeChannel) countSent(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, frame := range c.sent {
		if frame.Event == event {
			n++
		}
	}
	return n
}

// fakeStore is a DocumentStore with pluggable behavior per call.
type fakeStore struct {
	mu sync.Mutex

	listFunc   func(ctx context.Context) ([]domain.Document, error)
	getFunc    func(ctx context.Context, id domain.DocumentID) (*domain.Document, error)
	createFunc func(ctx context.Context, title, content string) (*domain.Document, error)
	saveFunc   func(ctx context.Context, id domain.DocumentID, content string) error
	deleteFunc func(ctx context.Context, id domain.DocumentID) error
}

func (s *fakeStore) List(ctx context.Context) ([]domain.Document, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx)
	}
	return nil, nil
}

func (s *fakeStore) Get(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, id)
	}
	return &domain.Document{ID: id, Title: "doc", Content: ""}, nil
}

func (s *fakeStore) Create(ctx context.Context, title, content string) (*domain.Document, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, title, content)
	}
	return &domain.Document{ID: "doc-new", Title: title, Content: content}, nil
}

func (s *fakeStore) Save(ctx context.Context, id domain.DocumentID, content string) error {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, id, content)
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id domain.DocumentID) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id)
	}
	return nil
}

// fakeAuth is an AuthClient returning a canned token.
type fakeAuth struct {
	token string
	err   error
}

func (a *fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	return a.token, a.err
}

func (a *fakeAuth) Register(ctx context.Context, username, email, password string) (string, error) {
	return a.token, a.err
}

// fakeCreds records token lifecycle.
type fakeCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (c *fakeCreds) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *fakeCreds) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.cleared++
}

// testCollector counts metric calls.
type testCollector struct {
	mu               sync.Mutex
	editsBroadcast   int
	editsSuppressed  int
	autosaveFailures int
	linksOpened      int
	linksClosed      int
	callState        string
}

func (c *testCollector) RecordEventSent(string)     {}
func (c *testCollector) RecordEventReceived(string) {}

func (c *testCollector) RecordEditBroadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editsBroadcast++
}

func (c *testCollector) RecordEditSuppressed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editsSuppressed++
}

func (c *testCollector) RecordAutosaveFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autosaveFailures++
}

func (c *testCollector) RecordPeerLinkOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.linksOpened++
}

func (c *testCollector) RecordPeerLinkClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.linksClosed++
}

func (c *testCollector) SetCallState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callState = state
}

// fakeStream is a MediaStream counting Stop calls.
type fakeStream struct {
	mu      sync.Mutex
	id      string
	stopped int
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeConn is a ConnectionHandle counting Close calls.
type fakeConn struct {
	mu     sync.Mutex
	closed int
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeMedia gates Acquire so tests can interleave teardown with capture.
type fakeMedia struct {
	mu      sync.Mutex
	stream  *fakeStream
	err     error
	acquire chan struct{} // when non-nil, Acquire blocks until closed
}

func (m *fakeMedia) Acquire(ctx context.Context) (domain.MediaStream, error) {
	m.mu.Lock()
	gate := m.acquire
	stream := m.stream
	err := m.err
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if stream == nil {
		stream = &fakeStream{id: "local"}
	}
	return stream, nil
}

// fakeConnector records lifecycle calls and captures the stream handler.
type fakeConnector struct {
	mu         sync.Mutex
	begun      int
	ended      int
	connected  []domain.PeerID
	connectErr error
	beginErr   error
	onRemote   ports.RemoteStreamHandler
}

func (c *fakeConnector) Begin(ctx context.Context, self domain.PeerID, local domain.MediaStream, onRemoteStream ports.RemoteStreamHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beginErr != nil {
		return c.beginErr
	}
	c.begun++
	c.onRemote = onRemoteStream
	return nil
}

func (c *fakeConnector) Connect(ctx context.Context, peer domain.PeerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = append(c.connected, peer)
	return nil
}

func (c *fakeConnector) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended++
	return nil
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connected)
}

func (c *fakeConnector) remoteHandler() ports.RemoteStreamHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onRemote
}
