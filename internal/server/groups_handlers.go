package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/groups"
)

type createGroupPayload struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DefaultLevel string `json:"default_level"`
}

type groupPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	OwnerID      string    `json:"owner_id"`
	DefaultLevel string    `json:"default_level"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	defaultLevel := access.LevelView
	if request.DefaultLevel != "" {
		parsed, err := access.ParseLevel(request.DefaultLevel)
		if err != nil {
			h.respondError(c, apperr.Invalid("unknown permission level", err))
			return
		}
		defaultLevel = parsed
	}
	group, err := h.groups.CreateGroup(c.Request.Context(), c.GetString(userIDContextKey), request.Name, request.Description, defaultLevel)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupPayload{
		ID:           group.ID,
		Name:         group.Name,
		Description:  group.Description,
		OwnerID:      group.OwnerID,
		DefaultLevel: group.DefaultMemberLevel.String(),
		CreatedAt:    group.CreatedAt,
	})
}

type addMemberPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Level  string `json:"level"`
}

func (h *httpHandler) handleAddMember(c *gin.Context) {
	var request addMemberPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	role := groups.RoleMember
	if request.Role != "" {
		role = groups.Role(request.Role)
	}
	level := access.LevelNone
	if request.Level != "" {
		parsed, err := access.ParseLevel(request.Level)
		if err != nil {
			h.respondError(c, apperr.Invalid("unknown permission level", err))
			return
		}
		level = parsed
	}
	membership, err := h.groups.AddMember(c.Request.Context(), c.Param("id"), c.GetString(userIDContextKey), request.UserID, role, level)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"group_id": membership.GroupID,
		"user_id":  membership.UserID,
		"role":     string(membership.Role),
		"level":    membership.Level.String(),
	})
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	err := h.groups.RemoveMember(c.Request.Context(), c.Param("id"), c.GetString(userIDContextKey), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
