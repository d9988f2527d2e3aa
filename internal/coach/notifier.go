package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
)

// StuckNotice tells a coach a learner needs intervention on a topic.
type StuckNotice struct {
	UserID     uuid.UUID  `json:"user_id"`
	TopicID    string     `json:"topic_id"`
	TopicName  string     `json:"topic_name,omitempty"`
	Rating     float64    `json:"rating"`
	StuckSince *time.Time `json:"stuck_since,omitempty"`
}

// UnlockNotice tells a coach a learner progressed to a new layer.
type UnlockNotice struct {
	UserID     uuid.UUID    `json:"user_id"`
	Layer      domain.Layer `json:"layer"`
	UnlockedAt time.Time    `json:"unlocked_at"`
}

// PrereqNotice surfaces a weak-foundation diagnosis to a coach.
type PrereqNotice struct {
	UserID   uuid.UUID           `json:"user_id"`
	TopicID  string              `json:"topic_id"`
	Weakest  string              `json:"weakest_prerequisite"`
	Severity domain.WeakSeverity `json:"severity"`
	Reason   string              `json:"reason"`
}

type notice struct {
	Kind string    `json:"kind"`
	Body any       `json:"body"`
	At   time.Time `json:"at"`
}

// Notifier delivers coaching notices to an external webhook, wrapped
// with resilience patterns from fortify.
type Notifier struct {
	url            string
	client         *http.Client
	circuitBreaker circuitbreaker.CircuitBreaker[*http.Response]
	retrier        retry.Retry[*http.Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// Config holds notifier configuration.
type Config struct {
	// WebhookURL is the coaching endpoint. Empty disables delivery.
	WebhookURL string

	// Timeout per HTTP attempt (default: 10s)
	Timeout time.Duration

	// RatePerSecond for outbound notices (default: 2)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

// NewNotifier creates a webhook notifier with circuit breaking, retry
// and rate limiting.
func NewNotifier(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}

	n.circuitBreaker = circuitbreaker.New[*http.Response](circuitbreaker.Config{
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			n.logger.Warn("coach webhook circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	n.retrier = retry.New[*http.Response](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})

	n.rateLimit = ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    rate * 3,
		Interval: time.Second,
	})

	return n
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// NotifyStuck delivers a stuck-topic notice.
func (n *Notifier) NotifyStuck(ctx context.Context, s StuckNotice) error {
	return n.deliver(ctx, "stuck", s)
}

// NotifyUnlock delivers a layer-unlock notice.
func (n *Notifier) NotifyUnlock(ctx context.Context, u UnlockNotice) error {
	return n.deliver(ctx, "unlock", u)
}

// NotifyWeakPrerequisite delivers a weak-foundation notice.
func (n *Notifier) NotifyWeakPrerequisite(ctx context.Context, p PrereqNotice) error {
	return n.deliver(ctx, "weak_prerequisite", p)
}

func (n *Notifier) deliver(ctx context.Context, kind string, body any) error {
	if !n.Enabled() {
		return nil
	}

	payload, err := json.Marshal(notice{Kind: kind, Body: body, At: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal %s notice: %w", kind, err)
	}

	if !n.rateLimit.Allow(ctx, "coach") {
		return fmt.Errorf("coach webhook rate limit exceeded")
	}

	_, err = n.circuitBreaker.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		return n.retrier.Do(ctx, func(ctx context.Context) (*http.Response, error) {
			return n.post(ctx, payload)
		})
	})
	if err != nil {
		return fmt.Errorf("deliver %s notice: %w", kind, err)
	}

	n.logger.Info("coach notice delivered", "kind", kind)
	return nil
}

func (n *Notifier) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &webhookError{status: resp.StatusCode}
	}
	return resp, nil
}

// Close releases the rate limiter.
func (n *Notifier) Close() error {
	if n.rateLimit != nil {
		return n.rateLimit.Close()
	}
	return nil
}

type webhookError struct {
	status int
}

func (e *webhookError) Error() string {
	return fmt.Sprintf("coach webhook returned status %d", e.status)
}

// isRetryable retries rate-limited and server-side failures only.
func isRetryable(err error) bool {
	var we *webhookError
	if !errors.As(err, &we) {
		// Transport errors (timeouts, refused connections) are retryable.
		return err != nil
	}
	switch we.status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
