// Package models - message.go defines inbound messages, the reaction event log, and
// outbound message jobs.
package models

import (
	"encoding/json"
	"time"
)

// Reaction event types
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

// Outbound job statuses
const (
	SentStatusPending = "pending"
	SentStatusQueued  = "queued"
	SentStatusSent    = "sent"
	SentStatusFailed  = "failed"
)

// ReceivedMessage is an immutable inbound platform message
type ReceivedMessage struct {
	ID                string          `json:"id" db:"id"`
	ProjectID         string          `json:"project_id" db:"project_id"`
	PlatformID        string          `json:"platform_id" db:"platform_id"`
	Platform          string          `json:"platform" db:"platform"`
	ProviderMessageID string          `json:"provider_message_id" db:"provider_message_id"`
	ProviderChatID    string          `json:"provider_chat_id" db:"provider_chat_id"`
	ProviderUserID    string          `json:"provider_user_id" db:"provider_user_id"`
	UserDisplay       *string         `json:"user_display,omitempty" db:"user_display"`
	MessageText       *string         `json:"message_text,omitempty" db:"message_text"`
	MessageType       string          `json:"message_type" db:"message_type"`
	RawData           json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`
	ReceivedAt        time.Time       `json:"received_at" db:"received_at"`
}

// ReactionEvent is one row of the append-only reaction log
type ReactionEvent struct {
	ID                string          `json:"id" db:"id"`
	ProjectID         string          `json:"project_id" db:"project_id"`
	PlatformID        string          `json:"platform_id" db:"platform_id"`
	Platform          string          `json:"platform" db:"platform"`
	ProviderMessageID string          `json:"provider_message_id" db:"provider_message_id"`
	ProviderChatID    string          `json:"provider_chat_id" db:"provider_chat_id"`
	ProviderUserID    string          `json:"provider_user_id" db:"provider_user_id"`
	UserDisplay       *string         `json:"user_display,omitempty" db:"user_display"`
	Emoji             string          `json:"emoji" db:"emoji"`
	ReactionType      string          `json:"reaction_type" db:"reaction_type"`
	RawData           json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`
	ReceivedAt        time.Time       `json:"received_at" db:"received_at"`
}

// SentMessage is an outbound job handed to the platform workers
type SentMessage struct {
	ID           string          `json:"id" db:"id"`
	ProjectID    string          `json:"project_id" db:"project_id"`
	PlatformID   string          `json:"platform_id" db:"platform_id"`
	Platform     string          `json:"platform" db:"platform"`
	JobID        string          `json:"job_id" db:"job_id"`
	Action       string          `json:"action" db:"action"` // send, delete, react, unreact
	TargetChatID string          `json:"target_chat_id" db:"target_chat_id"`
	TargetUserID *string         `json:"target_user_id,omitempty" db:"target_user_id"`
	TargetType   string          `json:"target_type" db:"target_type"`
	MessageText  *string         `json:"message_text,omitempty" db:"message_text"`
	Payload      json.RawMessage `json:"payload,omitempty" db:"payload"`
	Status       string          `json:"status" db:"status"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}

// PlatformCount is a per-platform aggregate used by message stats
type PlatformCount struct {
	Platform string `json:"platform" db:"platform"`
	Count    int64  `json:"count" db:"count"`
}

// MessageStats summarizes the inbound traffic of a project
type MessageStats struct {
	TotalMessages int64           `json:"total_messages" db:"total_messages"`
	UniqueUsers   int64           `json:"unique_users" db:"unique_users"`
	UniqueChats   int64           `json:"unique_chats" db:"unique_chats"`
	ByPlatform    []PlatformCount `json:"by_platform" db:"-"`
	SentTotal     int64           `json:"sent_total" db:"-"`
	SentFailed    int64           `json:"sent_failed" db:"-"`
}
