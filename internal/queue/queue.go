package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune/internal/engine"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names
const (
	SubmissionQueueName  = "attune.submissions"
	SkillChangeQueueName = "attune.skillchanges"
)

// DetectionJob is the wire form of one per-topic analyzer verdict.
type DetectionJob struct {
	TopicID   string   `json:"topic_id"`
	Positive  bool     `json:"positive,omitempty"`
	Idiomatic bool     `json:"idiomatic,omitempty"`
	Trivial   bool     `json:"trivial,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}

// SubmissionJob is the wire form of an analyzed submission waiting to
// be rated.
type SubmissionJob struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	Detections     []DetectionJob `json:"detections"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

// ToSubmission converts the wire form into the engine's input.
func (j *SubmissionJob) ToSubmission() engine.Submission {
	dets := make([]engine.Detection, len(j.Detections))
	for i, d := range j.Detections {
		dets[i] = engine.Detection{
			TopicID:   d.TopicID,
			Positive:  d.Positive,
			Idiomatic: d.Idiomatic,
			Trivial:   d.Trivial,
			Score:     d.Score,
		}
	}
	return engine.Submission{
		ID:          j.ID,
		UserID:      j.UserID,
		Detections:  dets,
		SubmittedAt: j.SubmittedAt,
	}
}

// NewSubmissionJob builds a queue job from the engine's input.
func NewSubmissionJob(sub engine.Submission) *SubmissionJob {
	dets := make([]DetectionJob, len(sub.Detections))
	for i, d := range sub.Detections {
		dets[i] = DetectionJob{
			TopicID:   d.TopicID,
			Positive:  d.Positive,
			Idiomatic: d.Idiomatic,
			Trivial:   d.Trivial,
			Score:     d.Score,
		}
	}
	job := &SubmissionJob{
		ID:          sub.ID,
		UserID:      sub.UserID,
		Detections:  dets,
		SubmittedAt: sub.SubmittedAt,
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	return job
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect establishes connection and channel
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// declareQueues creates the necessary queues. Submissions are durable
// with no TTL: a rating update must never be dropped. Skill-change
// events expire after a minute; consumers that lag that far behind can
// re-derive state from the store.
func (c *Connection) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		SubmissionQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare submission queue: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		SkillChangeQueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl": int32(60000),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare skill-change queue: %w", err)
	}

	return nil
}

// handleReconnect listens for connection close and attempts to reconnect
func (c *Connection) handleReconnect() {
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	err := <-notifyClose
	if err == nil {
		return // Normal close
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	// Exponential backoff, capped at 30s
	for i := 0; i < 10; i++ {
		c.reconnects++
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// sanitizeURL removes credentials from a URL for logging
func sanitizeURL(url string) string {
	if len(url) > 20 {
		return url[:20] + "..."
	}
	return url
}
