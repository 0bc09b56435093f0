package ports

import (
	"context"

	"coedit/internal/core/domain"
)

// DocumentStore is the external REST persistence collaborator. All document
// operations require a bearer credential; a 401 response triggers local
// logout through the client's unauthorized callback.
type DocumentStore interface {
	List(ctx context.Context) ([]domain.Document, error)
	Get(ctx context.Context, id domain.DocumentID) (*domain.Document, error)
	Create(ctx context.Context, title, content string) (*domain.Document, error)
	Save(ctx context.Context, id domain.DocumentID, content string) error
	Delete(ctx context.Context, id domain.DocumentID) error
}

// AuthClient talks to the external auth endpoints. Token issuance and
// validation are owned by the collaborator, not this client.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (token string, err error)
	Register(ctx context.Context, username, email, password string) (token string, err error)
}

// CredentialStore holds the bearer credential attached to document requests.
type CredentialStore interface {
	SetToken(token string)
	ClearToken()
}
