package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"order-fulfillment-service/internal/dto"
	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/repository"
	"order-fulfillment-service/internal/status"
)

// WebhookLedger is the retry ledger backing webhook ingestion.
type WebhookLedger interface {
	Insert(ctx context.Context, e *model.WebhookLogEntry) error
	FindActiveByProviderEventID(ctx context.Context, providerEventID string) (*model.WebhookLogEntry, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.WebhookLogEntry, error)
	MarkProcessed(ctx context.Context, id primitive.ObjectID, result string) error
	MarkDuplicate(ctx context.Context, id primitive.ObjectID, result string) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, retryCount int, result string) error
	ScheduleRetry(ctx context.Context, id primitive.ObjectID, retryCount int, nextRetryAt time.Time, result string) error
	ResetForReplay(ctx context.Context, id primitive.ObjectID) error
	FindDue(ctx context.Context, now time.Time, limit int64) ([]*model.WebhookLogEntry, error)
	FindFailed(ctx context.Context) ([]*model.WebhookLogEntry, error)
}

// OrderResolver is the slice of the order side the webhook applier needs.
type OrderResolver interface {
	FindByShipment(ctx context.Context, shipmentID, awbCode string) (*model.Order, error)
	FindByDisplayID(ctx context.Context, displayID string) (*model.Order, error)
}

var (
	// ErrMalformedPayload marks events no retry can fix.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrDuplicateEvent   = errors.New("duplicate provider event")
	ErrReplayNotFailed  = errors.New("only failed ledger entries can be replayed")
)

// SourceMeta is the audit trail of an inbound delivery.
type SourceMeta struct {
	IP        string
	UserAgent string
}

type WebhookService struct {
	ledger       WebhookLedger
	orders       OrderResolver
	applier      LifecycleApplier
	maxRetries   int
	retryBase    time.Duration
	applyTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// LifecycleApplier is implemented by OrderService: every order mutation
// from a webhook goes through the state machine, never a blind write.
type LifecycleApplier interface {
	ApplyLifecycle(ctx context.Context, order *model.Order, next status.Lifecycle, location, description string) error
}

func NewWebhookService(ledger WebhookLedger, orders OrderResolver, applier LifecycleApplier, maxRetries int, retryBase, applyTimeout time.Duration, log zerolog.Logger) *WebhookService {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if retryBase <= 0 {
		retryBase = 30 * time.Second
	}
	if applyTimeout <= 0 {
		applyTimeout = 5 * time.Second
	}
	return &WebhookService{
		ledger:       ledger,
		orders:       orders,
		applier:      applier,
		maxRetries:   maxRetries,
		retryBase:    retryBase,
		applyTimeout: applyTimeout,
		now:          time.Now,
		log:          log.With().Str("component", "webhook_service").Logger(),
	}
}

// WithClock overrides the service clock for tests.
func (s *WebhookService) WithClock(now func() time.Time) *WebhookService {
	s.now = now
	return s
}

// Ingest runs the synchronous per-delivery pipeline:
// dedup -> record pending -> resolve -> attempt-transition -> record outcome.
// The ledger entry is written before the order is touched, so a crash
// in between at worst causes a retry, never a duplicate order mutation.
func (s *WebhookService) Ingest(ctx context.Context, raw []byte, meta SourceMeta) (*model.WebhookLogEntry, error) {
	var payload dto.CarrierWebhookPayload
	parseErr := json.Unmarshal(raw, &payload)

	entry := &model.WebhookLogEntry{
		ProviderEventID: payload.EventID,
		EventType:       payload.EventType,
		ShipmentID:      payload.ShipmentID,
		AWBCode:         payload.AWBCode,
		OrderID:         payload.OrderID,
		Payload:         string(raw),
		Status:          model.WebhookPending,
		MaxRetries:      s.maxRetries,
		SourceIP:        meta.IP,
		SourceUserAgent: meta.UserAgent,
		ReceivedAt:      s.now().UTC(),
	}

	// A payload without an event id or any order correlation cannot be
	// deduplicated or applied; retrying will not fix it.
	if parseErr != nil || payload.EventID == "" ||
		(payload.ShipmentID == "" && payload.AWBCode == "" && payload.OrderID == "") {
		entry.Status = model.WebhookFailed
		entry.Result = "malformed payload"
		if insErr := s.ledger.Insert(ctx, entry); insErr != nil {
			return nil, insErr
		}
		s.log.Warn().Str("source_ip", meta.IP).Msg("malformed webhook payload rejected")
		return entry, ErrMalformedPayload
	}

	existing, err := s.ledger.FindActiveByProviderEventID(ctx, payload.EventID)
	if err != nil {
		return nil, fmt.Errorf("ledger dedup check: %w", err)
	}
	if existing != nil {
		entry.Status = model.WebhookDuplicate
		entry.Result = "already recorded as " + existing.Status
		if insErr := s.ledger.Insert(ctx, entry); insErr != nil {
			return nil, insErr
		}
		s.log.Debug().Str("provider_event_id", payload.EventID).Msg("duplicate webhook discarded")
		return entry, ErrDuplicateEvent
	}

	if err := s.ledger.Insert(ctx, entry); err != nil {
		if !repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("recording webhook event: %w", err)
		}
		// Lost the insert race on the partial unique index: someone
		// else holds the non-duplicate slot for this event id.
		entry.ID = primitive.NilObjectID
		entry.Status = model.WebhookDuplicate
		entry.Result = "concurrent delivery"
		if insErr := s.ledger.Insert(ctx, entry); insErr != nil {
			return nil, insErr
		}
		return entry, ErrDuplicateEvent
	}

	s.attempt(ctx, entry, payload)
	return entry, nil
}

// attempt applies one event to its order and records the outcome on the
// ledger entry. Downstream order lookups run under the per-event
// timeout; a timeout is a transient failure and schedules a retry.
func (s *WebhookService) attempt(ctx context.Context, entry *model.WebhookLogEntry, payload dto.CarrierWebhookPayload) {
	applyCtx, cancel := context.WithTimeout(ctx, s.applyTimeout)
	defer cancel()

	next, ok := status.ParseLifecycle(payload.CurrentStatus)
	if !ok {
		entry.Status = model.WebhookFailed
		entry.Result = fmt.Sprintf("unrecognized carrier status %q", payload.CurrentStatus)
		if err := s.ledger.MarkFailed(ctx, entry.ID, entry.RetryCount, entry.Result); err != nil {
			s.log.Error().Err(err).Msg("recording failed webhook")
		}
		return
	}

	order, err := s.resolveOrder(applyCtx, payload)
	if err != nil {
		s.recordFailure(ctx, entry, fmt.Errorf("resolving order: %w", err))
		return
	}

	description := payload.Remark
	if description == "" {
		description = payload.EventType
	}

	err = s.applier.ApplyLifecycle(applyCtx, order, next, payload.Location, description)
	switch {
	case err == nil:
		entry.Status = model.WebhookProcessed
		entry.Result = fmt.Sprintf("lifecycle -> %s", next)
		now := s.now().UTC()
		entry.ProcessedAt = &now
		if err := s.ledger.MarkProcessed(ctx, entry.ID, entry.Result); err != nil {
			s.log.Error().Err(err).Msg("recording processed webhook")
		}
	case errors.Is(err, ErrStaleLifecycle):
		// Out-of-order retransmission of an older status: discard,
		// never regress the order.
		entry.Status = model.WebhookDuplicate
		entry.Result = err.Error()
		if err := s.ledger.MarkDuplicate(ctx, entry.ID, entry.Result); err != nil {
			s.log.Error().Err(err).Msg("recording stale webhook")
		}
	default:
		s.recordFailure(ctx, entry, err)
	}
}

// recordFailure schedules a bounded-backoff retry, or parks the entry
// as failed for the operator view once retries are exhausted.
func (s *WebhookService) recordFailure(ctx context.Context, entry *model.WebhookLogEntry, cause error) {
	entry.RetryCount++
	entry.Result = cause.Error()

	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = model.WebhookFailed
		if err := s.ledger.MarkFailed(ctx, entry.ID, entry.RetryCount, entry.Result); err != nil {
			s.log.Error().Err(err).Msg("recording exhausted webhook")
		}
		s.log.Warn().
			Str("provider_event_id", entry.ProviderEventID).
			Int("retry_count", entry.RetryCount).
			Msg("webhook retries exhausted")
		return
	}

	// Base delay doubles per attempt.
	delay := s.retryBase << (entry.RetryCount - 1)
	entry.Status = model.WebhookPending
	entry.NextRetryAt = s.now().UTC().Add(delay)

	if err := s.ledger.ScheduleRetry(ctx, entry.ID, entry.RetryCount, entry.NextRetryAt, entry.Result); err != nil {
		s.log.Error().Err(err).Msg("scheduling webhook retry")
		return
	}
	s.log.Info().
		Str("provider_event_id", entry.ProviderEventID).
		Int("retry_count", entry.RetryCount).
		Dur("delay", delay).
		Err(cause).
		Msg("webhook apply failed, retry scheduled")
}

func (s *WebhookService) resolveOrder(ctx context.Context, payload dto.CarrierWebhookPayload) (*model.Order, error) {
	if payload.ShipmentID != "" || payload.AWBCode != "" {
		if order, err := s.orders.FindByShipment(ctx, payload.ShipmentID, payload.AWBCode); err == nil {
			return order, nil
		}
	}
	if payload.OrderID != "" {
		return s.orders.FindByDisplayID(ctx, payload.OrderID)
	}
	return s.orders.FindByShipment(ctx, payload.ShipmentID, payload.AWBCode)
}

// SweepDue re-attempts every pending ledger entry whose nextRetryAt has
// elapsed; invoked by the periodic retry job.
func (s *WebhookService) SweepDue(ctx context.Context) (int, error) {
	due, err := s.ledger.FindDue(ctx, s.now().UTC(), 100)
	if err != nil {
		return 0, fmt.Errorf("fetching due webhook retries: %w", err)
	}

	for _, entry := range due {
		var payload dto.CarrierWebhookPayload
		if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
			// Should have been caught at ingestion; park it.
			if err := s.ledger.MarkFailed(ctx, entry.ID, entry.RetryCount, "malformed payload"); err != nil {
				s.log.Error().Err(err).Msg("parking malformed ledger entry")
			}
			continue
		}
		s.attempt(ctx, entry, payload)
	}
	return len(due), nil
}

// Replay resets a failed entry and attempts it once more; the manual
// escape hatch behind the operator failed-events view.
func (s *WebhookService) Replay(ctx context.Context, id primitive.ObjectID) (*model.WebhookLogEntry, error) {
	entry, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.WebhookFailed {
		return nil, ErrReplayNotFailed
	}

	if err := s.ledger.ResetForReplay(ctx, id); err != nil {
		return nil, err
	}
	entry.Status = model.WebhookPending
	entry.RetryCount = 0

	var payload dto.CarrierWebhookPayload
	if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
		return nil, ErrMalformedPayload
	}

	s.attempt(ctx, entry, payload)
	return entry, nil
}

// FailedEvents lists exhausted entries for the operator dashboard.
func (s *WebhookService) FailedEvents(ctx context.Context) ([]*model.WebhookLogEntry, error) {
	return s.ledger.FindFailed(ctx)
}
