package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
	apperrors "coedit/pkg/errors"
	"coedit/pkg/tracing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Client talks to the external REST persistence and auth collaborator. It
// attaches the bearer credential to document requests; any 401 response
// triggers the unauthorized callback (local logout) and the operation is
// abandoned without retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

var (
	_ ports.DocumentStore   = (*Client)(nil)
	_ ports.AuthClient      = (*Client)(nil)
	_ ports.CredentialStore = (*Client)(nil)
)

func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetUnauthorizedHandler registers the callback invoked on any 401 response
// or locally detected token expiry.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// SetToken stores the bearer credential.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken drops the bearer credential.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp, false); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Register creates an account and returns its first bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	var resp tokenResponse
	req := registerRequest{Username: username, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp, false); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// List returns the documents available to the user.
func (c *Client) List(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	if err := c.do(ctx, http.MethodGet, "/documents", nil, &docs, true); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get fetches one document.
func (c *Client) Get(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	var doc domain.Document
	if err := c.do(ctx, http.MethodGet, "/documents/"+string(id), nil, &doc, true); err != nil {
		return nil, err
	}
	return &doc, nil
}

type createDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create makes a new document.
func (c *Client) Create(ctx context.Context, title, content string) (*domain.Document, error) {
	var doc domain.Document
	req := createDocumentRequest{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/documents", req, &doc, true); err != nil {
		return nil, err
	}
	return &doc, nil
}

type saveDocumentRequest struct {
	Content string `json:"content"`
}

// Save persists the document's content.
func (c *Client) Save(ctx context.Context, id domain.DocumentID, content string) error {
	return c.do(ctx, http.MethodPut, "/documents/"+string(id), saveDocumentRequest{Content: content}, nil, true)
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id domain.DocumentID) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+string(id), nil, nil, true)
}

// do issues one request. Authenticated requests fail fast when the locally
// held token is already expired, sparing the collaborator a doomed call.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	ctx, span := tracing.TraceHTTPRequest(ctx, method, path)
	defer span.End()

	var token string
	if authenticated {
		c.mu.RLock()
		token = c.token
		c.mu.RUnlock()

		if token == "" {
			return domain.ErrNotAuthenticated
		}
		if tokenExpired(token) {
			c.logger.Warnw("bearer token expired locally", "path", path)
			c.notifyUnauthorized()
			return apperrors.NewUnauthorizedError("token expired")
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "persistence collaborator unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warnw("request rejected as unauthorized", "method", method, "path", path)
		c.notifyUnauthorized()
		return apperrors.NewUnauthorizedError("credential rejected")
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError("document")
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		err := apperrors.NewAppError(apperrors.ErrCodeBadGateway,
			fmt.Sprintf("collaborator returned %d: %s", resp.StatusCode, string(data)), http.StatusBadGateway)
		tracing.RecordError(ctx, err)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) notifyUnauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; validation is the collaborator's job, this is only a local
// short-circuit. Unparseable tokens are left for the server to reject.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
