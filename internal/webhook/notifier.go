package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/logger"
)

const (
	userAgent       = "StickerBot-WebhookNotifier/1.0"
	contentType     = "application/json; charset=utf-8"
	signatureHeader = "X-Webhook-Signature"

	// EventPaymentSucceeded is the event name sent for a completed Stars
	// payment.
	EventPaymentSucceeded = "telegram_stars_payment_succeeded"
)

// PaymentEvent is the wire payload delivered to the backend.
type PaymentEvent struct {
	Event            string `json:"event"`
	UserID           int64  `json:"user_id"`
	AmountStars      int    `json:"amount_stars"`
	Currency         string `json:"currency"`
	TelegramChargeID string `json:"telegram_charge_id"`
	InvoicePayload   string `json:"invoice_payload"`
	Timestamp        int64  `json:"timestamp"`
}

// JobStatus is the lifecycle state of one delivery job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobInFlight  JobStatus = "in-flight"
	JobDelivered JobStatus = "delivered"
	JobDead      JobStatus = "dead"
)

// Job is one queued webhook delivery. Its mutable state is updated by the
// worker goroutine; read it through Status, AttemptCount, and LastErr.
type Job struct {
	ID        string
	TargetURL string
	Body      []byte // canonical payload bytes
	CreatedAt time.Time

	mu        sync.Mutex
	attempts  int
	status    JobStatus
	lastError string
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// AttemptCount returns how many delivery attempts have run.
func (j *Job) AttemptCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// LastErr returns the error of the most recent failed attempt.
func (j *Job) LastErr() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastError
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

func (j *Job) bumpAttempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	return j.attempts
}

func (j *Job) fail(s JobStatus, lastError string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
	j.lastError = lastError
}

// JobSnapshot is an immutable copy of a job's state for operator inspection.
type JobSnapshot struct {
	ID        string
	TargetURL string
	Attempts  int
	Status    JobStatus
	LastError string
	CreatedAt time.Time
}

// Options configure a Notifier.
type Options struct {
	// Secret enables HMAC signing when non-empty; delivery proceeds
	// unsigned without it.
	Secret string
	// MaxAttempts caps delivery attempts per job. Default 3.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles each attempt.
	// Default 1s.
	BaseBackoff time.Duration
	// Timeout bounds a single delivery attempt. Default 10s.
	Timeout time.Duration
	// Client overrides the HTTP client used for delivery.
	Client *http.Client
	// QueueSize bounds the job channel. Default 256.
	QueueSize int
	// Clock stamps job creation; defaults to the system clock.
	Clock clock.Clock
}

// Notifier delivers webhook jobs at-least-once from a background worker.
// Enqueue never blocks on network I/O; the worker signs, posts, and retries
// with exponential backoff until the job is delivered or its attempts are
// exhausted, at which point it is retained as dead for operator inspection.
type Notifier struct {
	opts  Options
	queue chan *Job

	mu   sync.Mutex
	dead []*Job

	wg sync.WaitGroup
}

// NewNotifier constructs a notifier; call Run to start the worker.
func NewNotifier(opts Options) *Notifier {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	n := &Notifier{
		opts:  opts,
		queue: make(chan *Job, opts.QueueSize),
	}
	// Registered here so Wait blocks even when it races Run's startup.
	n.wg.Add(1)
	return n
}

// Enqueue serializes event canonically and queues it for delivery to
// targetURL. It returns the accepted job without waiting for any network I/O.
// A full queue is reported as an error rather than blocking the caller.
func (n *Notifier) Enqueue(targetURL string, event PaymentEvent) (*Job, error) {
	body, err := CanonicalJSON(event)
	if err != nil {
		return nil, fmt.Errorf("webhook: serialize event: %w", err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		TargetURL: targetURL,
		Body:      body,
		status:    JobQueued,
		CreatedAt: n.opts.Clock.Now(),
	}

	select {
	case n.queue <- job:
	default:
		return nil, fmt.Errorf("webhook: queue full, job rejected")
	}

	logger.WH.Info("job queued",
		slog.String("event", "wh.queued"),
		slog.String("job_id", job.ID),
		slog.String("target", targetURL),
		slog.Int64("user_id", event.UserID),
	)
	return job, nil
}

// Run processes the queue until ctx is done, then drains already-queued jobs
// before returning. Call it from a dedicated goroutine.
func (n *Notifier) Run(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			n.drain()
			return
		case job := <-n.queue:
			n.process(ctx, job)
		}
	}
}

// Wait blocks until the worker has returned. The worker is registered at
// construction, so Wait holds even when it races Run's startup; it requires
// that Run is eventually called.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// drain attempts remaining jobs once each, without backoff waits, so queued
// payments get a final chance on shutdown.
func (n *Notifier) drain() {
	for {
		select {
		case job := <-n.queue:
			job.setStatus(JobInFlight)
			job.bumpAttempts()
			if err := n.attempt(context.Background(), job); err != nil {
				job.fail(JobDead, err.Error())
				n.addDead(job)
				logger.WH.Error("job dead on shutdown",
					slog.String("event", "wh.dead"),
					slog.String("job_id", job.ID),
					slog.String("err", err.Error()),
				)
				continue
			}
			job.setStatus(JobDelivered)
		default:
			return
		}
	}
}

// process runs the full retry loop for one job. Per-job attempts are strictly
// sequential; backoff doubles after each failure starting from BaseBackoff.
func (n *Notifier) process(ctx context.Context, job *Job) {
	job.setStatus(JobInFlight)
	backoff := n.opts.BaseBackoff

	for {
		attempt := job.bumpAttempts()
		start := time.Now()
		err := n.attempt(ctx, job)
		if err == nil {
			job.setStatus(JobDelivered)
			logger.WH.Info("job delivered",
				slog.String("event", "wh.delivered"),
				slog.String("job_id", job.ID),
				slog.Int("attempts", attempt),
				slog.Duration("took", logger.Took(start)),
			)
			return
		}

		if attempt >= n.opts.MaxAttempts {
			job.fail(JobDead, err.Error())
			n.addDead(job)
			logger.WH.Error("job dead after max attempts",
				slog.String("event", "wh.dead"),
				slog.String("job_id", job.ID),
				slog.Int("attempts", attempt),
				slog.String("err", err.Error()),
			)
			return
		}
		job.fail(JobInFlight, err.Error())

		logger.WH.Warn("attempt failed, retrying",
			slog.String("event", "wh.retry"),
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("err", err.Error()),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			job.fail(JobDead, ctx.Err().Error())
			n.addDead(job)
			return
		case <-timer.C:
		}
		backoff *= 2
	}
}

// attempt performs one signed POST. Any 2xx counts as delivered; everything
// else, timeouts included, is a retryable failure.
func (n *Notifier) attempt(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.TargetURL, bytes.NewReader(job.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	if n.opts.Secret != "" {
		req.Header.Set(signatureHeader, Sign(n.opts.Secret, job.Body))
	}

	resp, err := n.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (n *Notifier) addDead(job *Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dead = append(n.dead, job)
}

// DeadJobs returns snapshots of jobs that exhausted their retry budget.
func (n *Notifier) DeadJobs() []JobSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]JobSnapshot, len(n.dead))
	for i, job := range n.dead {
		out[i] = JobSnapshot{
			ID:        job.ID,
			TargetURL: job.TargetURL,
			Attempts:  job.AttemptCount(),
			Status:    job.Status(),
			LastError: job.LastErr(),
			CreatedAt: job.CreatedAt,
		}
	}
	return out
}

// QueueLen reports how many jobs are waiting, for monitoring.
func (n *Notifier) QueueLen() int {
	return len(n.queue)
}
