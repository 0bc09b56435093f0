package http

import (
	"net/http"
	"strings"

	"coedit/internal/core/domain"
	"coedit/internal/core/services"
	"coedit/internal/infrastructure/monitoring"
	"coedit/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SessionHandler is the local control API: the rendering surface drives the
// session through it and polls the snapshot for state. All session mutation
// goes through the coordinator; handlers never touch the sync or call
// sessions directly.
type SessionHandler struct {
	coordinator *services.SessionCoordinator
	health      *monitoring.HealthChecker
}

func NewSessionHandler(coordinator *services.SessionCoordinator, health *monitoring.HealthChecker) *SessionHandler {
	return &SessionHandler{
		coordinator: coordinator,
		health:      health,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/logout", h.Logout)

		api.GET("/documents", h.ListDocuments)
		api.POST("/documents", h.CreateDocument)
		api.POST("/documents/select", h.SelectDocument)
		api.POST("/documents/open-link", h.OpenJoinLink)

		api.POST("/session/edit", h.Edit)
		api.GET("/session/snapshot", h.Snapshot)

		api.POST("/call/join", h.JoinCall)
		api.POST("/call/leave", h.LeaveCall)
	}

	router.GET("/healthz", h.Healthz)
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=128"`
}

func (h *SessionHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if err := h.coordinator.Register(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if err := h.coordinator.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
}

func (h *SessionHandler) Logout(c *gin.Context) {
	h.coordinator.Logout()
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *SessionHandler) ListDocuments(c *gin.Context) {
	docs, err := h.coordinator.Documents(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type CreateDocumentRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

func (h *SessionHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	doc, err := h.coordinator.CreateDocument(c.Request.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

type SelectDocumentRequest struct {
	DocumentID string `json:"document_id" binding:"required,max=128"`
}

func (h *SessionHandler) SelectDocument(c *gin.Context) {
	var req SelectDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.coordinator.SelectDocument(c.Request.Context(), domain.DocumentID(req.DocumentID)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.coordinator.Snapshot())
}

type OpenJoinLinkRequest struct {
	Link string `json:"link" binding:"required,max=2048"`
}

func (h *SessionHandler) OpenJoinLink(c *gin.Context) {
	var req OpenJoinLinkRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.coordinator.OpenJoinLink(c.Request.Context(), strings.TrimSpace(req.Link)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.coordinator.Snapshot())
}

type EditRequest struct {
	Content string `json:"content"`
}

func (h *SessionHandler) Edit(c *gin.Context) {
	var req EditRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.coordinator.Edit(req.Content); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (h *SessionHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.Snapshot())
}

func (h *SessionHandler) JoinCall(c *gin.Context) {
	if err := h.coordinator.StartCall(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.coordinator.Snapshot())
}

func (h *SessionHandler) LeaveCall(c *gin.Context) {
	h.coordinator.LeaveCall()
	c.JSON(http.StatusOK, h.coordinator.Snapshot())
}

// Healthz reports dependency checks plus a summary of the live session, so
// an operator can see at a glance what the client is currently doing.
func (h *SessionHandler) Healthz(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	snap := h.coordinator.Snapshot()
	session := gin.H{
		"authenticated": snap.Authenticated,
		"call_state":    snap.CallState,
		"peer_count":    len(snap.Peers),
	}
	if snap.Document != nil {
		session["document_id"] = snap.Document.ID
	}

	c.JSON(code, gin.H{
		"status":    status.Status,
		"timestamp": status.Timestamp,
		"checks":    status.Checks,
		"session":   session,
	})
}
