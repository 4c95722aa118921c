// Package audit records authenticated mutations against the gateway. Entries are written
// to the audit_logs table and, when configured, published to a broker queue so a SIEM or
// log pipeline can consume them independently of the application's own logs.
//
// Recording never blocks the request: Recorder.Record hands the entry to a panic-safe
// goroutine with its own timeout.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/queue"
	"github.com/msgcore/msgcore-sub001/internal/safego"
)

// writeTimeout bounds one store write plus one shipment
const writeTimeout = 5 * time.Second

// LogEntry represents a structured audit log entry
type LogEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	Operation    string                 `json:"operation,omitempty"`
	UserID       string                 `json:"user_id,omitempty"`
	ProjectID    string                 `json:"project_id,omitempty"`
	APIKeyID     string                 `json:"api_key_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	AuthMethod   string                 `json:"auth_method,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	StatusCode   int                    `json:"status_code,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// Store persists audit rows
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// QueueShipper publishes entries to a broker queue
type QueueShipper struct {
	publisher queue.Publisher
	queue     string
}

// NewQueueShipper creates a shipper publishing to queueName. The publisher is owned by the
// caller and is not closed by Close.
func NewQueueShipper(publisher queue.Publisher, queueName string) *QueueShipper {
	return &QueueShipper{publisher: publisher, queue: queueName}
}

// Ship publishes entry
func (s *QueueShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if err := s.publisher.Publish(ctx, s.queue, entry); err != nil {
		return fmt.Errorf("failed to ship audit entry: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *QueueShipper) Close() error {
	return nil
}

// Recorder writes entries to the store and the optional shipper
type Recorder struct {
	store   Store
	shipper Shipper
}

// NewRecorder creates a recorder. Either destination may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper}
}

// Record persists entry in the background
func (r *Recorder) Record(entry *LogEntry) {
	safego.Go("audit.record", func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		r.Write(ctx, entry)
	})
}

// Write persists entry synchronously. Failures are logged, never returned to the request.
func (r *Recorder) Write(ctx context.Context, entry *LogEntry) {
	if r.store != nil {
		if err := r.store.CreateAuditLog(ctx, entry.Model()); err != nil {
			slog.Error("failed to create audit log", "action", entry.Action, "error", err)
		}
	}
	if r.shipper != nil {
		if err := r.shipper.Ship(ctx, entry); err != nil {
			slog.Warn("failed to ship audit log", "action", entry.Action, "error", err)
		}
	}
}

// Close releases the shipper
func (r *Recorder) Close() error {
	if r.shipper == nil {
		return nil
	}
	return r.shipper.Close()
}

// Model converts entry into its database row
func (e *LogEntry) Model() *models.AuditLog {
	log := &models.AuditLog{
		Action:       e.Action,
		CreatedAt:    e.Timestamp,
		UserID:       optional(e.UserID),
		ProjectID:    optional(e.ProjectID),
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		IPAddress:    optional(e.IPAddress),
	}

	metadata := make(map[string]interface{}, len(e.Metadata)+5)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if e.Operation != "" {
		metadata["operation"] = e.Operation
	}
	if e.AuthMethod != "" {
		metadata["auth_method"] = e.AuthMethod
	}
	if e.APIKeyID != "" {
		metadata["api_key_id"] = e.APIKeyID
	}
	if e.RequestID != "" {
		metadata["request_id"] = e.RequestID
	}
	if e.StatusCode != 0 {
		metadata["status_code"] = e.StatusCode
	}
	log.Metadata = metadata
	return log
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
