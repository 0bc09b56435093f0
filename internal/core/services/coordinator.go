package services

import (
	"context"
	"sync"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
	apperrors "coedit/pkg/errors"
	"coedit/pkg/joinlink"
	"coedit/pkg/validation"

	"go.uber.org/zap"
)

// SessionCoordinator routes UI-originated intents into the document sync and
// call signaling sessions and renders derived state. A call is always scoped
// to exactly one document: switching documents terminates any active call
// before the new room is joined.
type SessionCoordinator struct {
	store ports.DocumentStore
	auth  ports.AuthClient
	creds ports.CredentialStore
	docs  *DocumentSyncSession
	call  *CallSignalingSession

	logger *zap.SugaredLogger

	mu            sync.Mutex
	current       *domain.Document
	authenticated bool

	// generation detects document fetches that complete after the user has
	// already moved on.
	generation uint64
}

// PeerTile is one rendered call participant.
type PeerTile struct {
	PeerID   domain.PeerID `json:"peer_id"`
	StreamID string        `json:"stream_id,omitempty"`
	IsSelf   bool          `json:"is_self"`
}

// Snapshot is the derived state handed to the UI for rendering.
type Snapshot struct {
	Authenticated bool             `json:"authenticated"`
	Document      *domain.Document `json:"document,omitempty"`
	CallState     string           `json:"call_state"`
	Peers         []PeerTile       `json:"peers"`
}

func NewSessionCoordinator(
	store ports.DocumentStore,
	auth ports.AuthClient,
	creds ports.CredentialStore,
	docs *DocumentSyncSession,
	call *CallSignalingSession,
	logger *zap.SugaredLogger,
) *SessionCoordinator {
	c := &SessionCoordinator{
		store:  store,
		auth:   auth,
		creds:  creds,
		docs:   docs,
		call:   call,
		logger: logger,
	}
	// Remote updates replace the cached copy so renders stay authoritative.
	docs.SetBufferListener(func(content string) {
		c.mu.Lock()
		if c.current != nil {
			c.current.Content = content
		}
		c.mu.Unlock()
	})
	return c
}

// Login exchanges credentials for a bearer token with the auth collaborator.
func (c *SessionCoordinator) Login(ctx context.Context, email, password string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	token, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	c.creds.SetToken(token)
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	c.logger.Infow("logged in", "email", email)
	return nil
}

// Register creates an account and logs in with the returned token.
func (c *SessionCoordinator) Register(ctx context.Context, username, email, password string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	token, err := c.auth.Register(ctx, username, email, password)
	if err != nil {
		return err
	}

	c.creds.SetToken(token)
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	c.logger.Infow("registered", "email", email)
	return nil
}

// Logout terminates both sessions and clears all cached document state.
func (c *SessionCoordinator) Logout() {
	c.call.Terminate()
	c.docs.Leave()

	c.mu.Lock()
	c.current = nil
	c.authenticated = false
	c.generation++
	c.mu.Unlock()

	c.creds.ClearToken()
	c.logger.Infow("logged out")
}

// HandleUnauthorized is the storage client's 401 callback: the credential is
// no longer honored, so the session is torn down locally.
func (c *SessionCoordinator) HandleUnauthorized() {
	c.logger.Warnw("credential rejected by persistence collaborator, logging out")
	c.Logout()
}

// SelectDocument terminates any active call, fetches the document and joins
// its room. A fetch that completes after the user moved on is discarded.
func (c *SessionCoordinator) SelectDocument(ctx context.Context, id domain.DocumentID) error {
	if err := validation.ValidateDocumentID(string(id)); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	c.mu.Lock()
	if !c.authenticated {
		c.mu.Unlock()
		return domain.ErrNotAuthenticated
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	// The call is scoped to the previous document and must not outlive it.
	c.call.Terminate()

	doc, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debugw("stale document fetch discarded", "document_id", id)
		return domain.ErrStaleCompletion
	}
	c.current = doc
	c.mu.Unlock()

	return c.docs.Join(doc.ID, doc.Content)
}

// OpenJoinLink resolves a shared link to a document identifier and selects it.
func (c *SessionCoordinator) OpenJoinLink(ctx context.Context, link string) error {
	id := joinlink.Resolve(link)
	if err := validation.ValidateDocumentID(id); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return c.SelectDocument(ctx, domain.DocumentID(id))
}

// CreateDocument creates a document with the persistence collaborator and
// selects it.
func (c *SessionCoordinator) CreateDocument(ctx context.Context, title string) (*domain.Document, error) {
	if err := validation.ValidateDocumentTitle(title); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	doc, err := c.store.Create(ctx, title, "")
	if err != nil {
		return nil, err
	}
	if err := c.SelectDocument(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// Documents lists the documents available to the user.
func (c *SessionCoordinator) Documents(ctx context.Context) ([]domain.Document, error) {
	return c.store.List(ctx)
}

// Edit forwards a buffer change from the editing surface.
func (c *SessionCoordinator) Edit(content string) error {
	if err := c.docs.LocalEdit(content); err != nil {
		return err
	}
	c.mu.Lock()
	if c.current != nil {
		c.current.Content = content
	}
	c.mu.Unlock()
	return nil
}

// StartCall joins the video call for the currently selected document.
func (c *SessionCoordinator) StartCall(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return domain.ErrNoActiveRoom
	}
	return c.call.Join(ctx, current.ID)
}

// LeaveCall terminates the active call, if any.
func (c *SessionCoordinator) LeaveCall() {
	c.call.Terminate()
}

// Snapshot renders the coordinator's derived state.
func (c *SessionCoordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Authenticated: c.authenticated,
		CallState:     c.call.State().String(),
	}
	if c.current != nil {
		doc := *c.current
		snap.Document = &doc
	}
	c.mu.Unlock()

	for _, link := range c.call.Peers() {
		tile := PeerTile{PeerID: link.PeerID, IsSelf: link.IsSelf}
		if link.RemoteStream != nil {
			tile.StreamID = link.RemoteStream.ID()
		}
		snap.Peers = append(snap.Peers, tile)
	}
	return snap
}
