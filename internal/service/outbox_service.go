package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/pkg/jobs"
	"github.com/noah-isme/clearance-api/pkg/mailer"
)

type outboxStore interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id, lastErr string, availableAt time.Time) error
	MarkFailed(ctx context.Context, id, lastErr string, at time.Time) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
}

type auditSink interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// errUndeliverable marks events that can never succeed, such as unknown kinds
// or payloads that do not decode.
var errUndeliverable = errors.New("undeliverable outbox event")

const maxOutboxBackoff = 30 * time.Minute

// OutboxConfig tunes the dispatcher.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleAfter   time.Duration
}

// OutboxService drains outbox events to the audit log and the mailer. A
// failed delivery never touches the clearance state that produced it.
type OutboxService struct {
	store   outboxStore
	audit   auditSink
	mailer  mailer.Mailer
	metrics *MetricsService
	cfg     OutboxConfig
	logger  *zap.Logger
	queue   *jobs.Queue
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewOutboxService constructs the dispatcher. Call Start to begin polling.
func NewOutboxService(store outboxStore, audit auditSink, m mailer.Mailer, metrics *MetricsService, cfg OutboxConfig, logger *zap.Logger) *OutboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	svc := &OutboxService{
		store:   store,
		audit:   audit,
		mailer:  m,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "outbox")),
		now:     time.Now,
	}
	svc.queue = jobs.NewQueue("outbox", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BatchSize,
		MaxRetries: -1,
		Logger:     logger,
	})
	return svc
}

// Start requeues events orphaned by a previous process and begins polling.
func (s *OutboxService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.requeueStale(ctx)
	s.queue.Start(ctx)

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("outbox dispatcher started", zap.Duration("poll_interval", s.cfg.PollInterval))
}

// Stop halts polling and waits for in-flight deliveries.
func (s *OutboxService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.queue.Stop()
	s.logger.Info("outbox dispatcher stopped")
}

func (s *OutboxService) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	lastMaintenance := s.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("outbox poll failed", zap.Error(err))
			}
			if s.now().Sub(lastMaintenance) >= s.cfg.StaleAfter {
				s.requeueStale(ctx)
				s.publishBacklog(ctx)
				lastMaintenance = s.now()
			}
		}
	}
}

// Poll claims due events and hands them to the worker queue. Events that do
// not fit in the queue go straight back to pending.
func (s *OutboxService) Poll(ctx context.Context) (int, error) {
	limit := s.cfg.BatchSize - s.queue.Len()
	if limit <= 0 {
		return 0, nil
	}
	events, err := s.store.Claim(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, event := range events {
		if err := s.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: string(event.Kind), Payload: event}); err != nil {
			if rerr := s.store.MarkRetry(ctx, event.ID, err.Error(), s.now().UTC()); rerr != nil {
				s.logger.Warn("failed to release outbox event", zap.String("event_id", event.ID), zap.Error(rerr))
			}
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

func (s *OutboxService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.OutboxEvent)
	if !ok {
		return fmt.Errorf("unexpected outbox payload %T", job.Payload)
	}
	s.Process(ctx, event)
	return nil
}

// Process delivers one claimed event and records the result.
func (s *OutboxService) Process(ctx context.Context, event models.OutboxEvent) {
	err := s.Deliver(ctx, event)
	now := s.now().UTC()
	kind := string(event.Kind)

	switch {
	case err == nil:
		if merr := s.store.MarkDelivered(ctx, event.ID, now); merr != nil {
			s.logger.Warn("failed to mark outbox event delivered", zap.String("event_id", event.ID), zap.Error(merr))
		}
		s.metrics.RecordOutboxDelivery(kind, "delivered")
	case errors.Is(err, errUndeliverable) || event.Attempts >= s.cfg.MaxAttempts:
		s.logger.Warn("outbox event failed permanently",
			zap.String("event_id", event.ID),
			zap.String("kind", kind),
			zap.Int("attempts", event.Attempts),
			zap.Error(err),
		)
		if merr := s.store.MarkFailed(ctx, event.ID, err.Error(), now); merr != nil {
			s.logger.Warn("failed to mark outbox event failed", zap.String("event_id", event.ID), zap.Error(merr))
		}
		s.metrics.RecordOutboxDelivery(kind, "failed")
	default:
		next := now.Add(s.backoff(event.Attempts))
		s.logger.Warn("outbox delivery failed, will retry",
			zap.String("event_id", event.ID),
			zap.String("kind", kind),
			zap.Int("attempts", event.Attempts),
			zap.Time("next_attempt", next),
			zap.Error(err),
		)
		if merr := s.store.MarkRetry(ctx, event.ID, err.Error(), next); merr != nil {
			s.logger.Warn("failed to reschedule outbox event", zap.String("event_id", event.ID), zap.Error(merr))
		}
		s.metrics.RecordOutboxDelivery(kind, "retry")
	}
}

// Deliver hands an event to its collaborator.
func (s *OutboxService) Deliver(ctx context.Context, event models.OutboxEvent) error {
	switch event.Kind {
	case models.OutboxKindAudit:
		var intent models.AuditIntent
		if err := json.Unmarshal(event.Payload, &intent); err != nil {
			return fmt.Errorf("%w: decode audit payload: %v", errUndeliverable, err)
		}
		if s.audit == nil {
			return fmt.Errorf("%w: no audit recorder", errUndeliverable)
		}
		err := s.audit.Create(ctx, &models.AuditLog{
			ID:          event.ID,
			UserID:      intent.UserID,
			Action:      intent.Action,
			Description: intent.Description,
			ClearanceID: intent.ClearanceID,
			IPAddress:   intent.IPAddress,
			UserAgent:   intent.UserAgent,
			CreatedAt:   event.CreatedAt,
		})
		if repository.IsUniqueViolation(err) {
			// written by an earlier attempt whose status update was lost
			return nil
		}
		return err
	case models.OutboxKindNotification:
		var intent models.NotificationIntent
		if err := json.Unmarshal(event.Payload, &intent); err != nil {
			return fmt.Errorf("%w: decode notification payload: %v", errUndeliverable, err)
		}
		if intent.To == "" {
			return fmt.Errorf("%w: notification without recipient", errUndeliverable)
		}
		if s.mailer == nil {
			return fmt.Errorf("%w: no mailer", errUndeliverable)
		}
		return s.mailer.Send(ctx, mailer.Message{To: intent.To, Subject: intent.Subject, Body: intent.Body})
	default:
		return fmt.Errorf("%w: unknown kind %q", errUndeliverable, event.Kind)
	}
}

func (s *OutboxService) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.RetryDelay
	for i := 1; i < attempts && delay < maxOutboxBackoff; i++ {
		delay *= 2
	}
	if delay > maxOutboxBackoff {
		delay = maxOutboxBackoff
	}
	return delay
}

func (s *OutboxService) requeueStale(ctx context.Context) {
	n, err := s.store.RequeueStale(ctx, s.now().UTC().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.logger.Warn("failed to requeue stale outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("requeued stale outbox events", zap.Int64("count", n))
	}
}

func (s *OutboxService) publishBacklog(ctx context.Context) {
	counts, err := s.Backlog(ctx)
	if err != nil {
		s.logger.Warn("failed to count outbox events", zap.Error(err))
		return
	}
	s.metrics.SetOutboxBacklog(counts)
}

// Backlog returns the number of events per status.
func (s *OutboxService) Backlog(ctx context.Context) (map[string]int, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out, nil
}
