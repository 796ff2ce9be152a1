package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/djsadd/AcademicQuestionBot/internal/auth"
	"github.com/djsadd/AcademicQuestionBot/internal/chatstore"
	"github.com/djsadd/AcademicQuestionBot/internal/platform"
)

// Handler wires HTTP routes to the per-identity chat stores and the
// platform client.
type Handler struct {
	chats    *chatstore.Manager
	platform *platform.Client
	auth     *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(chats *chatstore.Manager, client *platform.Client, authService *auth.Service) *Handler {
	return &Handler{
		chats:    chats,
		platform: client,
		auth:     authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(h.auth.Middleware())

	chat := api.Group("/chat")
	chat.GET("", h.getChatState)
	chat.POST("/sessions", h.createSession)
	chat.POST("/select", h.selectSession)
	chat.POST("/messages", h.sendMessage)
	chat.POST("/details", h.toggleDetails)

	api.POST("/auth/telegram", h.telegramLogin)
	api.POST("/auth/miniapp", h.miniAppAuth)
	api.GET("/auth/me", h.me)

	docs := api.Group("/documents", auth.RequireIdentity())
	docs.POST("", h.uploadDocument)
	docs.GET("", h.listDocuments)
	docs.GET("/search", h.searchDocuments)
	docs.DELETE("/:id", h.deleteDocument)

	api.GET("/jobs/:id", auth.RequireIdentity(), h.jobStatus)
}

// store resolves the chat store scoped to the caller's identity, or the
// shared guest store when the request carries no token.
func (h *Handler) store(c *gin.Context) *chatstore.Store {
	identity, _ := auth.IdentityFromContext(c)
	token, _ := auth.TokenFromContext(c)
	return h.chats.For(c.Request.Context(), identity, token)
}

// Chat screen

func (h *Handler) getChatState(c *gin.Context) {
	store := h.store(c)
	c.JSON(http.StatusOK, gin.H{
		"state":       store.State(),
		"highlighted": store.Highlighted(),
		"details_id":  store.Details(),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	store := h.store(c)
	session := store.CreateSession()
	c.JSON(http.StatusCreated, gin.H{
		"session":     session,
		"highlighted": store.Highlighted(),
	})
}

type selectRequest struct {
	ChatID string `json:"chat_id"`
}

func (h *Handler) selectSession(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}
	store := h.store(c)
	store.SelectSession(req.ChatID)
	c.JSON(http.StatusOK, gin.H{"active_chat_id": store.State().ActiveChatID})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	receipt, err := h.store(c).SendMessage(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if receipt.NoticeID != "" {
		c.JSON(http.StatusOK, gin.H{"notice_id": receipt.NoticeID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"user_message_id": receipt.UserMessageID,
		"placeholder_id":  receipt.PlaceholderID,
	})
}

type detailsRequest struct {
	MessageID string `json:"message_id"`
}

func (h *Handler) toggleDetails(c *gin.Context) {
	var req detailsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}
	store := h.store(c)
	store.ToggleDetails(req.MessageID)
	c.JSON(http.StatusOK, gin.H{"details_id": store.Details()})
}

// Auth screen

func (h *Handler) telegramLogin(c *gin.Context) {
	var payload platform.TelegramLoginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.platform.TelegramLogin(c.Request.Context(), payload)
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	// Hydrate the identity-scoped store right away so the first chat
	// request after login already sees the server-side history.
	h.chats.For(c.Request.Context(), &result.User, result.AccessToken)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) miniAppAuth(c *gin.Context) {
	var payload platform.MiniAppAuthPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.platform.MiniAppAuth(c.Request.Context(), payload)
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) me(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok || !identity.Known() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

// Documents screen

func (h *Handler) uploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	var metadata map[string]interface{}
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be a JSON object"})
			return
		}
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	token, _ := auth.TokenFromContext(c)
	result, err := h.platform.UploadDocument(c.Request.Context(), token, fileHeader.Filename, file, metadata)
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) listDocuments(c *gin.Context) {
	token, _ := auth.TokenFromContext(c)
	documents, err := h.platform.ListDocuments(c.Request.Context(), token)
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

func (h *Handler) deleteDocument(c *gin.Context) {
	token, _ := auth.TokenFromContext(c)
	document, err := h.platform.DeleteDocument(c.Request.Context(), token, c.Param("id"))
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "document": document})
}

func (h *Handler) searchDocuments(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a non-negative integer"})
			return
		}
		topK = parsed
	}
	token, _ := auth.TokenFromContext(c)
	hits, err := h.platform.SearchDocuments(c.Request.Context(), token, query, topK)
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": hits})
}

func (h *Handler) jobStatus(c *gin.Context) {
	token, _ := auth.TokenFromContext(c)
	job, err := h.platform.JobStatus(c.Request.Context(), token, c.Param("id"))
	if err != nil {
		c.JSON(platformStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// platformStatus maps a platform error onto the status we answer with.
// Anything that is not a typed API error means the platform itself was
// unreachable.
func platformStatus(err error) int {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}
