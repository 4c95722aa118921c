// Package jobs contains the gateway's background jobs.
//
// retention.go implements RetentionJob, which periodically purges received messages,
// reaction events and audit rows older than the configured windows. A window of zero days
// keeps that table forever. The on-demand per-project cleanup endpoint shares the same
// repository method and metric.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/safego"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// MessagePurger deletes received messages. An empty projectID spans all projects.
type MessagePurger interface {
	DeleteReceivedOlderThan(ctx context.Context, projectID string, cutoff time.Time) (int64, error)
}

// Purger deletes rows older than cutoff
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionResult reports the rows one run removed, keyed by table
type RetentionResult map[string]int64

// RetentionJob purges old rows on a fixed interval
type RetentionJob struct {
	messages  MessagePurger
	reactions Purger
	audit     Purger
	cfg       config.RetentionConfig
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRetentionJob creates a retention job. reactions and audit may be nil.
func NewRetentionJob(messages MessagePurger, reactions, audit Purger, cfg config.RetentionConfig) *RetentionJob {
	return &RetentionJob{
		messages:  messages,
		reactions: reactions,
		audit:     audit,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic purge. It runs once immediately, then every interval_hours.
func (j *RetentionJob) Start(ctx context.Context) {
	interval := time.Duration(j.cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	slog.Info("retention job started",
		"interval", interval,
		"received_messages_days", j.cfg.ReceivedMessagesDays,
		"reactions_days", j.cfg.ReactionsDays,
		"audit_logs_days", j.cfg.AuditLogsDays)

	j.wg.Add(1)
	safego.Go("retention", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopCh:
				slog.Info("retention job stopped")
				return
			case <-ctx.Done():
				slog.Info("retention job context cancelled")
				return
			}
		}
	})
}

// Stop stops the job and waits for an in-flight run to finish
func (j *RetentionJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

// RunOnce performs one purge pass. A failing table is logged and the others still run.
func (j *RetentionJob) RunOnce(ctx context.Context) RetentionResult {
	result := RetentionResult{}
	now := j.now()

	if j.messages != nil && j.cfg.ReceivedMessagesDays > 0 {
		cutoff := cutoffFor(now, j.cfg.ReceivedMessagesDays)
		n, err := j.messages.DeleteReceivedOlderThan(ctx, "", cutoff)
		j.record(result, "received_messages", n, err)
	}
	if j.reactions != nil && j.cfg.ReactionsDays > 0 {
		n, err := j.reactions.DeleteOlderThan(ctx, cutoffFor(now, j.cfg.ReactionsDays))
		j.record(result, "received_reactions", n, err)
	}
	if j.audit != nil && j.cfg.AuditLogsDays > 0 {
		n, err := j.audit.DeleteOlderThan(ctx, cutoffFor(now, j.cfg.AuditLogsDays))
		j.record(result, "audit_logs", n, err)
	}

	return result
}

func (j *RetentionJob) record(result RetentionResult, table string, n int64, err error) {
	if err != nil {
		slog.Error("retention purge failed", "table", table, "error", err)
		return
	}
	result[table] = n
	if n > 0 {
		telemetry.RetentionPurgedRowsTotal.WithLabelValues(table).Add(float64(n))
		slog.Info("retention purge completed", "table", table, "deleted", n)
	}
}

func cutoffFor(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
