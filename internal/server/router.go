// Package server exposes the engine over HTTP: gin routing, bearer-token
// authentication and the mapping from the error taxonomy onto status codes.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/auth"
	"github.com/quillstone/backend/internal/documents"
	"github.com/quillstone/backend/internal/groups"
	"github.com/quillstone/backend/internal/users"
)

const userIDContextKey = "quillstone_user_id"

var (
	errMissingTokenValidator   = errors.New("token validator dependency required")
	errMissingDocumentsService = errors.New("documents service dependency required")
	errMissingGroupsService    = errors.New("groups service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the principal it names.
type TokenValidator interface {
	ValidateToken(token string) (auth.Principal, error)
}

// Dependencies wires the handler to the engine.
type Dependencies struct {
	Tokens    TokenValidator
	Documents *documents.Service
	Groups    *groups.Service
	Users     *users.Service
	Logger    *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Documents == nil {
		return nil, errMissingDocumentsService
	}
	if deps.Groups == nil {
		return nil, errMissingGroupsService
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.Tokens,
		documents: deps.Documents,
		groups:    deps.Groups,
		users:     deps.Users,
		logger:    logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Reads of public published documents work without a token; the access
	// layer decides per document.
	router.GET("/documents/:id", handler.authorizeOptional, handler.handleGetDocument)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents", handler.handleListDocuments)
	protected.GET("/documents/shared", handler.handleListShared)
	protected.PATCH("/documents/:id", handler.handleUpdateDocument)
	protected.DELETE("/documents/:id", handler.handleDeleteDocument)
	protected.POST("/documents/:id/publish", handler.handlePublish)
	protected.POST("/documents/:id/archive", handler.handleArchive)
	protected.POST("/documents/:id/unarchive", handler.handleUnarchive)
	protected.POST("/documents/:id/restore", handler.handleRestore)
	protected.GET("/documents/:id/versions", handler.handleListVersions)
	protected.POST("/documents/:id/share", handler.handleShare)
	protected.POST("/documents/:id/unshare", handler.handleUnshare)
	protected.POST("/documents/:id/share-group", handler.handleShareGroup)
	protected.POST("/documents/:id/unshare-group", handler.handleUnshareGroup)
	protected.GET("/documents/:id/collaborators", handler.handleListCollaborators)
	protected.POST("/documents/:id/comments", handler.handleCreateComment)
	protected.GET("/documents/:id/comments", handler.handleListComments)
	protected.POST("/groups", handler.handleCreateGroup)
	protected.POST("/groups/:id/members", handler.handleAddMember)
	protected.DELETE("/groups/:id/members/:userID", handler.handleRemoveMember)

	return router, nil
}

type httpHandler struct {
	tokens    TokenValidator
	documents *documents.Service
	groups    *groups.Service
	users     *users.Service
	logger    *zap.Logger
}

// authorizeRequest requires a valid bearer token and registers the
// principal so it can be a share target later.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	principal, err := h.principalFromHeader(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if _, err := h.users.Ensure(c.Request.Context(), principal.ID, principal.Email, principal.Name); err != nil {
		h.logger.Error("identity registration failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.Set(userIDContextKey, principal.ID)
	c.Next()
}

// authorizeOptional resolves the principal when a token is present and
// continues anonymously otherwise. An invalid token is still rejected.
func (h *httpHandler) authorizeOptional(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		c.Next()
		return
	}
	principal, err := h.principalFromHeader(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	c.Set(userIDContextKey, principal.ID)
	c.Next()
}

func (h *httpHandler) principalFromHeader(c *gin.Context) (auth.Principal, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Principal{}, errInvalidAuthorization
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return auth.Principal{}, errInvalidAuthorization
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		return auth.Principal{}, errInvalidAuthorization
	}
	return principal, nil
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInvalid:
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": appErr.Kind.String(), "message": appErr.Message})
}
