package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/documents"
	"github.com/quillstone/backend/internal/sharing"
	"github.com/quillstone/backend/internal/versions"
)

type documentPayload struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content,omitempty"`
	Excerpt        string     `json:"excerpt"`
	AuthorID       string     `json:"author_id"`
	Status         string     `json:"status"`
	Visibility     string     `json:"visibility"`
	WordCount      int64      `json:"word_count"`
	ReadTime       int64      `json:"read_time"`
	CommentCount   int64      `json:"comment_count"`
	CurrentVersion int64      `json:"current_version"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	AccessLevel    string     `json:"access_level,omitempty"`
}

func toDocumentPayload(document *documents.Document, includeContent bool) documentPayload {
	payload := documentPayload{
		ID:             document.ID,
		Title:          document.Title,
		Excerpt:        document.Excerpt,
		AuthorID:       document.AuthorID,
		Status:         string(document.Status),
		Visibility:     string(document.Visibility),
		WordCount:      document.WordCount,
		ReadTime:       document.ReadTime,
		CommentCount:   document.CommentCount,
		CurrentVersion: document.CurrentVersion,
		PublishedAt:    document.PublishedAt,
		ArchivedAt:     document.ArchivedAt,
		CreatedAt:      document.CreatedAt,
		UpdatedAt:      document.UpdatedAt,
	}
	if includeContent {
		payload.Content = document.Content
	}
	return payload
}

type versionPayload struct {
	Number        int64     `json:"number"`
	Title         string    `json:"title"`
	ChangeSummary string    `json:"change_summary,omitempty"`
	CreatedByID   string    `json:"created_by_id"`
	CharsAdded    int64     `json:"chars_added"`
	CharsRemoved  int64     `json:"chars_removed"`
	WordsAdded    int64     `json:"words_added"`
	WordsRemoved  int64     `json:"words_removed"`
	CreatedAt     time.Time `json:"created_at"`
}

func toVersionPayloads(records []versions.Version) []versionPayload {
	payloads := make([]versionPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, versionPayload{
			Number:        record.Number,
			Title:         record.Title,
			ChangeSummary: record.ChangeSummary,
			CreatedByID:   record.CreatedByID,
			CharsAdded:    record.CharsAdded,
			CharsRemoved:  record.CharsRemoved,
			WordsAdded:    record.WordsAdded,
			WordsRemoved:  record.WordsRemoved,
			CreatedAt:     record.CreatedAt,
		})
	}
	return payloads
}

type createDocumentPayload struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	var request createDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	document, err := h.documents.Create(c.Request.Context(), c.GetString(userIDContextKey), documents.CreateParams{
		Title:      request.Title,
		Content:    request.Content,
		Visibility: access.Visibility(request.Visibility),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDocumentPayload(document, true))
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	document, level, err := h.documents.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := toDocumentPayload(document, true)
	payload.AccessLevel = level.String()
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	records, err := h.documents.ListByAuthor(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": listPayload(records)})
}

func (h *httpHandler) handleListShared(c *gin.Context) {
	records, err := h.documents.ListSharedWith(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": listPayload(records)})
}

func listPayload(records []documents.Document) []documentPayload {
	payloads := make([]documentPayload, 0, len(records))
	for i := range records {
		payloads = append(payloads, toDocumentPayload(&records[i], false))
	}
	return payloads
}

type updateDocumentPayload struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	Visibility    *string `json:"visibility"`
	ChangeSummary string  `json:"change_summary"`
}

func (h *httpHandler) handleUpdateDocument(c *gin.Context) {
	var request updateDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	params := documents.UpdateParams{
		Title:         request.Title,
		Content:       request.Content,
		ChangeSummary: request.ChangeSummary,
	}
	if request.Visibility != nil {
		visibility := access.Visibility(*request.Visibility)
		params.Visibility = &visibility
	}
	document, err := h.documents.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), params)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(document, true))
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	h.handleTransition(c, h.documents.Publish)
}

func (h *httpHandler) handleArchive(c *gin.Context) {
	h.handleTransition(c, h.documents.Archive)
}

func (h *httpHandler) handleUnarchive(c *gin.Context) {
	h.handleTransition(c, h.documents.Unarchive)
}

func (h *httpHandler) handleTransition(c *gin.Context, op func(ctx context.Context, actorID, documentID string) (*documents.Document, error)) {
	document, err := op(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(document, true))
}

type restorePayload struct {
	Version int64 `json:"version"`
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	var request restorePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	document, err := h.documents.Restore(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.Version)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(document, true))
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	records, err := h.documents.Versions(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": toVersionPayloads(records)})
}

type sharePayload struct {
	UserID string `json:"user_id"`
	Level  string `json:"level"`
}

func (h *httpHandler) handleShare(c *gin.Context) {
	var request sharePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	level, err := access.ParseLevel(request.Level)
	if err != nil {
		h.respondError(c, apperr.Invalid("unknown permission level", err))
		return
	}
	grant, err := h.documents.Share(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.UserID, level)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGrantPayload(grant))
}

type unsharePayload struct {
	UserID string `json:"user_id"`
}

func (h *httpHandler) handleUnshare(c *gin.Context) {
	var request unsharePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.documents.Unshare(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type groupSharePayload struct {
	GroupID string `json:"group_id"`
	Level   string `json:"level"`
}

func (h *httpHandler) handleShareGroup(c *gin.Context) {
	var request groupSharePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	level, err := access.ParseLevel(request.Level)
	if err != nil {
		h.respondError(c, apperr.Invalid("unknown permission level", err))
		return
	}
	share, err := h.documents.ShareWithGroup(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.GroupID, level)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": share.DocumentID,
		"group_id":    share.GroupID,
		"level":       share.Level.String(),
	})
}

type groupUnsharePayload struct {
	GroupID string `json:"group_id"`
}

func (h *httpHandler) handleUnshareGroup(c *gin.Context) {
	var request groupUnsharePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.GroupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.documents.UnshareGroup(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.GroupID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type grantPayload struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Level      string    `json:"level"`
	GrantedBy  string    `json:"granted_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func toGrantPayload(grant *sharing.AccessGrant) grantPayload {
	return grantPayload{
		DocumentID: grant.DocumentID,
		UserID:     grant.UserID,
		Level:      grant.Level.String(),
		GrantedBy:  grant.GrantedByID,
		CreatedAt:  grant.CreatedAt,
	}
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	grants, err := h.documents.Collaborators(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]grantPayload, 0, len(grants))
	for i := range grants {
		payloads = append(payloads, toGrantPayload(&grants[i]))
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": payloads})
}

type createCommentPayload struct {
	Content string `json:"content"`
}

type commentPayload struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comment, err := h.documents.CommentOn(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"), request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentPayload{
		ID:         comment.ID,
		DocumentID: comment.DocumentID,
		AuthorID:   comment.AuthorID,
		Content:    comment.Content,
		CreatedAt:  comment.CreatedAt,
	})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	records, err := h.documents.Comments(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]commentPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, commentPayload{
			ID:         record.ID,
			DocumentID: record.DocumentID,
			AuthorID:   record.AuthorID,
			Content:    record.Content,
			CreatedAt:  record.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"comments": payloads})
}
