package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
)

// DefaultCleanupDays applies when a cleanup request does not name a window
const DefaultCleanupDays = 30

// MessageService is the slice of services.MessageService the handlers use
type MessageService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string, in services.ListMessagesInput) (*services.MessageList, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID, messageID string, includeReactions, includeRaw bool) (*services.MessageView, error)
	Stats(ctx context.Context, ac *auth.AuthContext, projectID string) (*models.MessageStats, error)
	ListSent(ctx context.Context, ac *auth.AuthContext, projectID string, status *string, page services.Page) ([]models.SentMessage, error)
	Status(ctx context.Context, ac *auth.AuthContext, projectID, jobID string) (*services.JobStatus, error)
	Cleanup(ctx context.Context, ac *auth.AuthContext, projectID string, olderThanDays int) (int64, error)
	Send(ctx context.Context, ac *auth.AuthContext, projectID string, in services.SendMessageInput) (*services.QueuedJob, error)
	Delete(ctx context.Context, ac *auth.AuthContext, projectID string, in services.MessageActionInput) (*services.QueuedJob, error)
	React(ctx context.Context, ac *auth.AuthContext, projectID string, in services.MessageActionInput) (*services.QueuedJob, error)
	Unreact(ctx context.Context, ac *auth.AuthContext, projectID string, in services.MessageActionInput) (*services.QueuedJob, error)
}

// MessageHandlers handles inbound message queries and outbound message jobs
type MessageHandlers struct {
	messages MessageService
}

// NewMessageHandlers creates a new MessageHandlers instance
func NewMessageHandlers(messages MessageService) *MessageHandlers {
	return &MessageHandlers{messages: messages}
}

// ListMessagesHandler lists received messages.
// Query: platform_id, platform, chat_id, user_id, since, until, order=asc|desc,
// limit, offset, reactions=true, raw=true
// GET /api/v1/projects/:projectId/messages
func (h *MessageHandlers) ListMessagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}
		since, ok := queryTime(c, "since")
		if !ok {
			return
		}
		until, ok := queryTime(c, "until")
		if !ok {
			return
		}

		in := services.ListMessagesInput{
			PlatformID:       queryString(c, "platform_id"),
			Platform:         queryString(c, "platform"),
			ChatID:           queryString(c, "chat_id"),
			UserID:           queryString(c, "user_id"),
			Since:            since,
			Until:            until,
			Ascending:        strings.EqualFold(c.Query("order"), "asc"),
			Page:             page,
			IncludeReactions: queryBool(c, "reactions"),
			IncludeRaw:       queryBool(c, "raw"),
		}

		list, err := h.messages.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), in)
		if err != nil {
			respondError(c, err, "Failed to list messages")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GetMessageHandler returns one received message
// GET /api/v1/projects/:projectId/messages/:messageId?reactions=&raw=
func (h *MessageHandlers) GetMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.messages.Get(c.Request.Context(), middleware.GetAuthContext(c),
			c.Param("projectId"), c.Param("messageId"), queryBool(c, "reactions"), queryBool(c, "raw"))
		if err != nil {
			respondError(c, err, "Failed to get message")
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// MessageStatsHandler returns message counters for the project
// GET /api/v1/projects/:projectId/messages/stats
func (h *MessageHandlers) MessageStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.messages.Stats(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to get message stats")
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// ListSentHandler lists outbound messages, optionally filtered by status
// GET /api/v1/projects/:projectId/messages/sent?status=&limit=&offset=
func (h *MessageHandlers) ListSentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}
		sent, err := h.messages.ListSent(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), queryString(c, "status"), page)
		if err != nil {
			respondError(c, err, "Failed to list sent messages")
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": sent})
	}
}

// JobStatusHandler reports the state of an outbound job
// GET /api/v1/projects/:projectId/messages/status/:jobId
func (h *MessageHandlers) JobStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.messages.Status(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("jobId"))
		if err != nil {
			respondError(c, err, "Failed to get job status")
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// CleanupHandler purges received messages older than ?days= (default 30)
// DELETE /api/v1/projects/:projectId/messages/cleanup
func (h *MessageHandlers) CleanupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := DefaultCleanupDays
		if c.Query("days") != "" {
			var ok bool
			if days, ok = queryInt(c, "days"); !ok {
				return
			}
		}
		deleted, err := h.messages.Cleanup(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), days)
		if err != nil {
			respondError(c, err, "Failed to clean up messages")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"deleted":         deleted,
			"older_than_days": days,
		})
	}
}

// SendMessageHandler queues a message to one or more targets
// POST /api/v1/projects/:projectId/messages/send
func (h *MessageHandlers) SendMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SendMessageInput
		if !bindJSON(c, &req) {
			return
		}
		job, err := h.messages.Send(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to queue message")
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

type messageAction func(svc MessageService, ctx context.Context, ac *auth.AuthContext, projectID string, in services.MessageActionInput) (*services.QueuedJob, error)

func (h *MessageHandlers) actionHandler(action messageAction, failure string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.MessageActionInput
		if !bindJSON(c, &req) {
			return
		}
		job, err := action(h.messages, c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, failure)
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

// DeleteMessageHandler queues deletion of a platform message
// POST /api/v1/projects/:projectId/messages/delete
func (h *MessageHandlers) DeleteMessageHandler() gin.HandlerFunc {
	return h.actionHandler(MessageService.Delete, "Failed to queue message deletion")
}

// ReactHandler queues a reaction on a platform message
// POST /api/v1/projects/:projectId/messages/react
func (h *MessageHandlers) ReactHandler() gin.HandlerFunc {
	return h.actionHandler(MessageService.React, "Failed to queue reaction")
}

// UnreactHandler queues removal of a reaction
// POST /api/v1/projects/:projectId/messages/unreact
func (h *MessageHandlers) UnreactHandler() gin.HandlerFunc {
	return h.actionHandler(MessageService.Unreact, "Failed to queue reaction removal")
}
