// Package services - messages.go serves inbound message queries and turns outbound
// send/delete/react requests into persisted jobs handed to the broker.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
	"github.com/msgcore/msgcore-sub001/internal/queue"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// MaxSendTargets caps the fan-out of a single send request
const MaxSendTargets = 100

// Target types accepted by send
const (
	TargetChannel = "channel"
	TargetUser    = "user"
	TargetGroup   = "group"
)

// MessageService reads received messages and queues outbound actions
type MessageService struct {
	messages  MessageStore
	platforms PlatformStore
	reactions *ReactionResolver
	publisher queue.Publisher
	now       func() time.Time
}

// NewMessageService creates a MessageService. A nil publisher leaves outbound jobs pending
// in sent_messages for a worker to pick up.
func NewMessageService(messages MessageStore, platforms PlatformStore, reactions *ReactionResolver, publisher queue.Publisher) *MessageService {
	return &MessageService{
		messages:  messages,
		platforms: platforms,
		reactions: reactions,
		publisher: publisher,
		now:       time.Now,
	}
}

// ListMessagesInput filters and pages a message listing
type ListMessagesInput struct {
	PlatformID *string
	Platform   *string
	ChatID     *string
	UserID     *string
	Since      *time.Time
	Until      *time.Time
	Ascending  bool
	Page       Page

	// IncludeReactions attaches current reaction state to every message
	IncludeReactions bool
	// IncludeRaw keeps the provider payload in the response
	IncludeRaw bool
}

// MessageView is one received message as returned by the API
type MessageView struct {
	models.ReceivedMessage
	Reactions *Reactions `json:"reactions,omitempty"`
}

// MessageList is a page of received messages
type MessageList struct {
	Messages []MessageView `json:"messages"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
	HasMore  bool          `json:"has_more"`
}

// List returns a page of received messages
func (s *MessageService) List(ctx context.Context, ac *auth.AuthContext, projectID string, in ListMessagesInput) (*MessageList, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.list"); err != nil {
		return nil, err
	}
	if in.PlatformID != nil {
		if _, err := uuid.Parse(*in.PlatformID); err != nil {
			return nil, invalidf("platform_id must be a UUID")
		}
	}

	page := in.Page.Normalize()
	msgs, total, err := s.messages.ListReceived(ctx, repositories.ReceivedFilter{
		ProjectID:  projectID,
		PlatformID: in.PlatformID,
		Platform:   in.Platform,
		ChatID:     in.ChatID,
		UserID:     in.UserID,
		Since:      in.Since,
		Until:      in.Until,
		Ascending:  in.Ascending,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return nil, err
	}

	views, err := s.buildViews(ctx, projectID, msgs, in.IncludeReactions, in.IncludeRaw)
	if err != nil {
		return nil, err
	}

	return &MessageList{
		Messages: views,
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
		HasMore:  page.Offset+len(views) < total,
	}, nil
}

// Get returns one received message
func (s *MessageService) Get(ctx context.Context, ac *auth.AuthContext, projectID, messageID string, includeReactions, includeRaw bool) (*MessageView, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.get"); err != nil {
		return nil, err
	}

	m, err := s.messages.GetReceived(ctx, projectID, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}

	views, err := s.buildViews(ctx, projectID, []models.ReceivedMessage{*m}, includeReactions, includeRaw)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *MessageService) buildViews(ctx context.Context, projectID string, msgs []models.ReceivedMessage, includeReactions, includeRaw bool) ([]MessageView, error) {
	var resolved map[repositories.MessageKey]Reactions
	if includeReactions && len(msgs) > 0 {
		var err error
		resolved, err = s.reactions.Resolve(ctx, projectID, msgs)
		if err != nil {
			return nil, err
		}
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{ReceivedMessage: m}
		if !includeRaw {
			v.RawData = nil
		}
		if includeReactions {
			r := resolved[repositories.MessageKey{PlatformID: m.PlatformID, ProviderMessageID: m.ProviderMessageID}]
			if r == nil {
				r = Reactions{}
			}
			v.Reactions = &r
		}
		views = append(views, v)
	}
	return views, nil
}

// Stats returns message totals for the project
func (s *MessageService) Stats(ctx context.Context, ac *auth.AuthContext, projectID string) (*models.MessageStats, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.stats"); err != nil {
		return nil, err
	}
	return s.messages.Stats(ctx, projectID)
}

// ListSent returns a page of outbound job rows, optionally filtered by status
func (s *MessageService) ListSent(ctx context.Context, ac *auth.AuthContext, projectID string, status *string, page Page) ([]models.SentMessage, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.sent"); err != nil {
		return nil, err
	}
	if status != nil && !validSentStatus(*status) {
		return nil, invalidf("invalid status: %s", *status)
	}
	page = page.Normalize()
	return s.messages.ListSent(ctx, projectID, status, page.Limit, page.Offset)
}

// JobStatus summarizes one outbound job
type JobStatus struct {
	JobID   string               `json:"job_id"`
	Action  string               `json:"action"`
	Status  string               `json:"status"`
	Targets []models.SentMessage `json:"targets"`
}

// Status reports the state of an outbound job. A job with any failed target is failed,
// otherwise it is as far along as its slowest target.
func (s *MessageService) Status(ctx context.Context, ac *auth.AuthContext, projectID, jobID string) (*JobStatus, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.status"); err != nil {
		return nil, err
	}

	rows, err := s.messages.GetSentByJobID(ctx, projectID, jobID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrJobNotFound
	}

	return &JobStatus{
		JobID:   jobID,
		Action:  rows[0].Action,
		Status:  aggregateStatus(rows),
		Targets: rows,
	}, nil
}

func aggregateStatus(rows []models.SentMessage) string {
	rank := map[string]int{
		models.SentStatusPending: 0,
		models.SentStatusQueued:  1,
		models.SentStatusSent:    2,
	}
	status := models.SentStatusSent
	for _, r := range rows {
		if r.Status == models.SentStatusFailed {
			return models.SentStatusFailed
		}
		if rank[r.Status] < rank[status] {
			status = r.Status
		}
	}
	return status
}

func validSentStatus(s string) bool {
	switch s {
	case models.SentStatusPending, models.SentStatusQueued, models.SentStatusSent, models.SentStatusFailed:
		return true
	}
	return false
}

// Cleanup purges the project's received messages older than the given number of days
func (s *MessageService) Cleanup(ctx context.Context, ac *auth.AuthContext, projectID string, olderThanDays int) (int64, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.cleanup"); err != nil {
		return 0, err
	}
	if projectID == "" {
		return 0, invalidf("project is required")
	}
	if olderThanDays < 1 {
		return 0, invalidf("days must be at least 1")
	}

	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	n, err := s.messages.DeleteReceivedOlderThan(ctx, projectID, cutoff)
	if err != nil {
		return 0, err
	}
	telemetry.RetentionPurgedRowsTotal.WithLabelValues("received_messages").Add(float64(n))
	slog.Info("purged received messages", "project_id", projectID, "older_than_days", olderThanDays, "deleted", n)
	return n, nil
}

// MessageTarget addresses one recipient of a send
type MessageTarget struct {
	PlatformID string `json:"platform_id"`
	Type       string `json:"type"`
	ID         string `json:"id"`
}

// SendMessageInput is a send request. Content is passed through to the platform worker;
// its "text" field is also stored for listing.
type SendMessageInput struct {
	Targets  []MessageTarget `json:"targets"`
	Content  json.RawMessage `json:"content"`
	Options  json.RawMessage `json:"options,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// MessageActionInput addresses an existing platform message for delete, react and unreact
type MessageActionInput struct {
	PlatformID string `json:"platform_id"`
	ChatID     string `json:"chat_id"`
	MessageID  string `json:"message_id"`
	Emoji      string `json:"emoji,omitempty"`
}

// QueuedJob is returned for every accepted outbound request
type QueuedJob struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Targets int    `json:"targets"`
}

type outboundRow struct {
	platform *models.ProjectPlatform
	row      *models.SentMessage
}

// Send queues a message to every target
func (s *MessageService) Send(ctx context.Context, ac *auth.AuthContext, projectID string, in SendMessageInput) (*QueuedJob, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.send"); err != nil {
		return nil, err
	}

	if len(in.Targets) == 0 {
		return nil, invalidf("at least one target is required")
	}
	if len(in.Targets) > MaxSendTargets {
		return nil, invalidf("at most %d targets are allowed", MaxSendTargets)
	}
	var content struct {
		Text string `json:"text"`
	}
	if len(in.Content) == 0 || json.Unmarshal(in.Content, &content) != nil {
		return nil, invalidf("content must be a JSON object")
	}

	platforms := make(map[string]*models.ProjectPlatform)
	rows := make([]outboundRow, 0, len(in.Targets))
	jobID := uuid.New().String()

	for _, t := range in.Targets {
		if t.ID == "" {
			return nil, invalidf("target id is required")
		}
		targetType := t.Type
		if targetType == "" {
			targetType = TargetChannel
		}
		if targetType != TargetChannel && targetType != TargetUser && targetType != TargetGroup {
			return nil, invalidf("invalid target type: %s", t.Type)
		}

		p, ok := platforms[t.PlatformID]
		if !ok {
			var err error
			if p, err = s.activePlatform(ctx, projectID, t.PlatformID); err != nil {
				return nil, err
			}
			platforms[t.PlatformID] = p
		}

		payload, err := json.Marshal(map[string]interface{}{
			"target":   t,
			"content":  in.Content,
			"options":  rawOrNull(in.Options),
			"metadata": rawOrNull(in.Metadata),
		})
		if err != nil {
			return nil, err
		}

		row := &models.SentMessage{
			ProjectID:    projectID,
			PlatformID:   p.ID,
			Platform:     p.Platform,
			JobID:        jobID,
			Action:       queue.ActionSend,
			TargetChatID: t.ID,
			TargetType:   targetType,
			Payload:      payload,
		}
		if targetType == TargetUser {
			userID := t.ID
			row.TargetUserID = &userID
		}
		if content.Text != "" {
			text := content.Text
			row.MessageText = &text
		}
		rows = append(rows, outboundRow{platform: p, row: row})
	}

	return s.dispatch(ctx, jobID, rows)
}

// Delete queues deletion of a platform message
func (s *MessageService) Delete(ctx context.Context, ac *auth.AuthContext, projectID string, in MessageActionInput) (*QueuedJob, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.delete"); err != nil {
		return nil, err
	}
	return s.queueAction(ctx, projectID, queue.ActionDelete, in)
}

// React queues adding a reaction to a platform message
func (s *MessageService) React(ctx context.Context, ac *auth.AuthContext, projectID string, in MessageActionInput) (*QueuedJob, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.react"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Emoji) == "" {
		return nil, invalidf("emoji is required")
	}
	return s.queueAction(ctx, projectID, queue.ActionReact, in)
}

// Unreact queues removing a reaction from a platform message
func (s *MessageService) Unreact(ctx context.Context, ac *auth.AuthContext, projectID string, in MessageActionInput) (*QueuedJob, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "messages.unreact"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Emoji) == "" {
		return nil, invalidf("emoji is required")
	}
	return s.queueAction(ctx, projectID, queue.ActionUnreact, in)
}

func (s *MessageService) queueAction(ctx context.Context, projectID, action string, in MessageActionInput) (*QueuedJob, error) {
	if in.ChatID == "" || in.MessageID == "" {
		return nil, invalidf("chat_id and message_id are required")
	}

	p, err := s.activePlatform(ctx, projectID, in.PlatformID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	row := &models.SentMessage{
		ProjectID:    projectID,
		PlatformID:   p.ID,
		Platform:     p.Platform,
		JobID:        jobID,
		Action:       action,
		TargetChatID: in.ChatID,
		TargetType:   TargetChannel,
		Payload:      payload,
	}
	return s.dispatch(ctx, jobID, []outboundRow{{platform: p, row: row}})
}

// dispatch persists every row of a job in one write, then publishes one broker message per row.
// Published rows are marked queued. When a publish fails the remaining rows are marked failed.
func (s *MessageService) dispatch(ctx context.Context, jobID string, rows []outboundRow) (*QueuedJob, error) {
	sent := make([]*models.SentMessage, len(rows))
	for i, r := range rows {
		sent[i] = r.row
	}
	if err := s.messages.CreateSent(ctx, sent...); err != nil {
		return nil, err
	}

	if s.publisher == nil {
		slog.Warn("no message queue configured, outbound job left pending", "job_id", jobID)
		return &QueuedJob{JobID: jobID, Status: models.SentStatusPending, Targets: len(rows)}, nil
	}

	published := make([]string, 0, len(rows))
	for i, r := range rows {
		job := &queue.Job{
			JobID:      jobID,
			ProjectID:  r.row.ProjectID,
			PlatformID: r.platform.ID,
			Platform:   r.platform.Platform,
			Action:     r.row.Action,
			Payload:    r.row.Payload,
			CreatedAt:  s.now(),
		}
		if err := s.publisher.PublishJob(ctx, job); err != nil {
			s.markSent(ctx, jobID, published, models.SentStatusQueued, nil)
			msg := err.Error()
			s.markSent(ctx, jobID, sentIDs(rows[i:]), models.SentStatusFailed, &msg)
			return nil, fmt.Errorf("failed to queue outbound job: %w", err)
		}
		published = append(published, r.row.ID)
		telemetry.MessagesQueuedTotal.WithLabelValues(r.platform.Platform).Inc()
	}

	if err := s.messages.SetSentStatus(ctx, published, models.SentStatusQueued, nil); err != nil {
		return nil, err
	}
	return &QueuedJob{JobID: jobID, Status: models.SentStatusQueued, Targets: len(rows)}, nil
}

func (s *MessageService) markSent(ctx context.Context, jobID string, ids []string, status string, errMsg *string) {
	if err := s.messages.SetSentStatus(ctx, ids, status, errMsg); err != nil {
		slog.Error("failed to update outbound job rows", "job_id", jobID, "status", status, "error", err)
	}
}

func sentIDs(rows []outboundRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.row.ID
	}
	return ids
}

func (s *MessageService) activePlatform(ctx context.Context, projectID, platformID string) (*models.ProjectPlatform, error) {
	if platformID == "" {
		return nil, invalidf("platform_id is required")
	}
	p, err := s.platforms.GetByID(ctx, projectID, platformID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPlatformNotFound
	}
	if !p.IsActive {
		return nil, ErrPlatformInactive
	}
	return p, nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
