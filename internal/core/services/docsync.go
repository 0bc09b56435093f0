package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
	"coedit/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// DocumentSyncSession owns join/leave of a document room and the
// local/remote edit disambiguation state machine. Conflict resolution is
// whole-content last-write-wins with no ordering token: concurrent edits
// from two clients can overwrite each other. That is the relay protocol's
// contract, kept as-is here.
type DocumentSyncSession struct {
	channel ports.RealtimeChannel
	store   ports.DocumentStore
	saver   *circuitbreaker.CircuitBreaker
	metrics ports.Collector
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	room       *domain.RoomMembership
	content    string
	origin     domain.EditOrigin
	generation uint64

	onBufferUpdate func(content string)
}

func NewDocumentSyncSession(
	channel ports.RealtimeChannel,
	store ports.DocumentStore,
	saver *circuitbreaker.CircuitBreaker,
	metrics ports.Collector,
	logger *zap.SugaredLogger,
) *DocumentSyncSession {
	s := &DocumentSyncSession{
		channel: channel,
		store:   store,
		saver:   saver,
		metrics: metrics,
		logger:  logger,
		origin:  domain.EditOriginLocalPending,
	}
	channel.On(domain.EventDocumentUpdated, s.handleRemoteUpdate)
	return s
}

// SetBufferListener registers the editing surface's callback for remote
// buffer replacements. Must be set before joining a room.
func (s *DocumentSyncSession) SetBufferListener(fn func(content string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBufferUpdate = fn
}

// Join enters the document's room and seeds the local buffer. Joining while
// a different room is active leaves the old room first, with an explicit
// leave-document event so the relay can evict stale membership eagerly.
func (s *DocumentSyncSession) Join(documentID domain.DocumentID, initialContent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != nil && s.room.DocumentID != documentID {
		s.leaveLocked()
	}

	if err := s.channel.Send(domain.EventJoinDocument, string(documentID)); err != nil {
		return err
	}

	s.room = &domain.RoomMembership{DocumentID: documentID, JoinedAt: time.Now()}
	s.content = initialContent
	s.origin = domain.EditOriginLocalPending
	s.generation++

	s.logger.Infow("joined document room", "document_id", documentID)
	return nil
}

// Leave exits the current room, if any.
func (s *DocumentSyncSession) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

func (s *DocumentSyncSession) leaveLocked() {
	if s.room == nil {
		return
	}
	if err := s.channel.Send(domain.EventLeaveDocument, string(s.room.DocumentID)); err != nil {
		// Leaving is best effort: the relay also evicts on disconnect.
		s.logger.Warnw("failed to send leave-document", "document_id", s.room.DocumentID, "error", err)
	}
	s.logger.Infow("left document room", "document_id", s.room.DocumentID)
	s.room = nil
	s.content = ""
	s.origin = domain.EditOriginLocalPending
	s.generation++
}

// LocalEdit is invoked by the editing surface on every buffer change. The
// edit is broadcast unless it is the echo of a remote update, in which case
// the suppression is consumed and nothing is sent. A best-effort autosave is
// issued asynchronously; its failure is logged, never surfaced, and never
// rolls back the buffer.
func (s *DocumentSyncSession) LocalEdit(content string) error {
	s.mu.Lock()

	if s.room == nil {
		s.mu.Unlock()
		return domain.ErrNoActiveRoom
	}

	if s.origin == domain.EditOriginSuppressNext {
		// The change originated remotely: consume exactly one suppression.
		s.origin = domain.EditOriginLocalPending
		s.mu.Unlock()
		s.metrics.RecordEditSuppressed()
		return nil
	}

	documentID := s.room.DocumentID
	generation := s.generation
	s.content = content
	s.mu.Unlock()

	payload := domain.EditDocumentPayload{DocumentID: documentID, Content: content}
	if err := s.channel.Send(domain.EventEditDocument, payload); err != nil {
		// No retry here: the next successful edit broadcasts current content.
		s.logger.Warnw("edit broadcast failed", "document_id", documentID, "error", err)
		return err
	}
	s.metrics.RecordEditBroadcast()

	go s.autosave(documentID, content, generation)
	return nil
}

// autosave persists the content fire-and-forget. At-most-once: rejected or
// failed writes are logged and abandoned.
func (s *DocumentSyncSession) autosave(documentID domain.DocumentID, content string, generation uint64) {
	err := s.saver.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.store.Save(ctx, documentID, content)
	})
	if err == nil {
		return
	}

	s.metrics.RecordAutosaveFailure()

	s.mu.Lock()
	stale := generation != s.generation
	s.mu.Unlock()
	s.logger.Warnw("autosave failed",
		"document_id", documentID,
		"stale", stale,
		"error", err,
	)
}

// handleRemoteUpdate applies a remote edit for the current room. The buffer
// is replaced authoritatively and the next local-edit callback is suppressed
// from re-broadcasting.
func (s *DocumentSyncSession) handleRemoteUpdate(payload json.RawMessage) {
	var content string
	if err := json.Unmarshal(payload, &content); err != nil {
		s.logger.Warnw("malformed document-updated payload", "error", err)
		return
	}

	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return
	}
	s.origin = domain.EditOriginSuppressNext
	s.content = content
	fn := s.onBufferUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(content)
	}
}

// Content returns the current buffer contents.
func (s *DocumentSyncSession) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Room returns the active membership, or nil.
func (s *DocumentSyncSession) Room() *domain.RoomMembership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}
