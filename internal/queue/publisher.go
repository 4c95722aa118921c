// Package queue publishes outbound message jobs and audit entries to RabbitMQ.
//
// Every queue is declared with a retry queue and a dead-letter queue next to it:
//
//	<name>        main queue, dead-letters to <name>.dlq on reject
//	<name>.retry  holding queue, messages expire back into <name>
//	<name>.dlq    terminal queue inspected by operators
//
// The platform workers that consume these queues live outside this repository.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed is returned when publishing on a closed publisher
var ErrClosed = errors.New("queue publisher is closed")

// publishTimeout bounds a single broker confirmation round trip
const publishTimeout = 5 * time.Second

// Job actions
const (
	ActionSend    = "send"
	ActionDelete  = "delete"
	ActionReact   = "react"
	ActionUnreact = "unreact"
)

// Job is the envelope a platform worker receives for one outbound action
type Job struct {
	JobID      string          `json:"job_id"`
	ProjectID  string          `json:"project_id"`
	PlatformID string          `json:"platform_id"`
	Platform   string          `json:"platform"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Publisher hands jobs to the broker
type Publisher interface {
	PublishJob(ctx context.Context, job *Job) error
	Publish(ctx context.Context, queue string, body interface{}) error
	Close() error
}

// RetryQueueName returns the holding queue used for delayed redelivery
func RetryQueueName(queue string) string { return queue + ".retry" }

// DeadLetterQueueName returns the terminal queue for rejected messages
func DeadLetterQueueName(queue string) string { return queue + ".dlq" }

// AMQPPublisher is a Publisher backed by a single AMQP channel
type AMQPPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	maxRetries int
	declared   map[string]bool
	closed     bool
}

// NewAMQPPublisher dials the broker and declares the job queue topology
func NewAMQPPublisher(url, queue string, maxRetries int) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &AMQPPublisher{
		conn:       conn,
		ch:         ch,
		queue:      queue,
		maxRetries: maxRetries,
		declared:   make(map[string]bool),
	}
	if err := p.declare(queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// declare sets up the main, retry and dead-letter queues for name. Callers hold p.mu or own p exclusively.
func (p *AMQPPublisher) declare(name string) error {
	if p.declared[name] {
		return nil
	}
	dlq := DeadLetterQueueName(name)
	retry := RetryQueueName(name)

	if _, err := p.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", dlq, err)
	}
	if _, err := p.ch.QueueDeclare(retry, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", retry, err)
	}
	if _, err := p.ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	p.declared[name] = true
	return nil
}

// PublishJob publishes an outbound job to the job queue
func (p *AMQPPublisher) PublishJob(ctx context.Context, job *Job) error {
	msg, err := newPublishing(job, job.JobID, p.maxRetries)
	if err != nil {
		return err
	}
	return p.send(ctx, p.queue, msg)
}

// Publish publishes an arbitrary JSON body to queue, declaring it on first use
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, body interface{}) error {
	msg, err := newPublishing(body, "", p.maxRetries)
	if err != nil {
		return err
	}
	return p.send(ctx, queue, msg)
}

func (p *AMQPPublisher) send(ctx context.Context, queue string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.declare(queue); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.ch.PublishWithContext(cctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// newPublishing encodes body as a persistent JSON message
func newPublishing(body interface{}, messageID string, maxRetries int) (amqp.Publishing, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode message: %w", err)
	}
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-max-retries": int32(maxRetries)},
		Body:         data,
	}, nil
}
