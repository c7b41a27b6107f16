package events

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

var (
	errMissingDatabase   = errors.New("events: database handle is required")
	errMissingResolver   = errors.New("events: recipient resolver is required")
	errMissingSink       = errors.New("events: delivery sink is required")
	errMissingIDProvider = errors.New("events: id provider is required")
)

const (
	defaultWorkers   = 16
	defaultQueueSize = 256
)

// RecipientResolver turns an event into the set of users to notify. The
// set reflects live grant and membership state at publish time and never
// includes the acting user.
type RecipientResolver interface {
	Recipients(ctx context.Context, event Event) ([]string, error)
}

// DeliverySink is the external delivery boundary: push fabric, web socket
// hub, whatever accepts the payload. Best effort; no acknowledgment beyond
// "accepted for delivery" is assumed.
type DeliverySink interface {
	Deliver(ctx context.Context, recipientID string, kind Kind, payload []byte) error
}

// BusConfig describes the dependencies of the event bus.
type BusConfig struct {
	Database   *gorm.DB
	Resolver   RecipientResolver
	Sink       DeliverySink
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Workers    int
	QueueSize  int
}

// Bus accepts domain events, deduplicates recipients, durably records one
// notification per recipient, then dispatches deliveries on a bounded
// worker pool. Publish returns once the notification rows are written;
// deliveries are fire and forget.
type Bus struct {
	db         *gorm.DB
	resolver   RecipientResolver
	sink       DeliverySink
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	pool       *WorkerPool
}

// NewBus constructs and starts the bus.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}
	if cfg.Sink == nil {
		return nil, errMissingSink
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Bus{
		db:         cfg.Database,
		resolver:   cfg.Resolver,
		sink:       cfg.Sink,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		pool:       NewWorkerPool(workers, queueSize, logger),
	}, nil
}

// Publish records the event for every resolved recipient and schedules
// delivery. A recipient reachable through several sharing paths is
// notified exactly once. Delivery failures never propagate to the caller.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	recipients := event.Recipients
	if recipients == nil {
		resolved, err := b.resolver.Recipients(ctx, event)
		if err != nil {
			return apperr.Internal("recipient resolution failed", err)
		}
		recipients = resolved
	}
	recipients = dedupe(recipients, event.ActorID)
	publishedTotal.WithLabelValues(string(event.Kind)).Inc()
	if len(recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(deliveryEnvelope{
		Kind:          event.Kind,
		DocumentID:    event.DocumentID,
		DocumentTitle: event.DocumentTitle,
		ActorID:       event.ActorID,
		OccurredAt:    event.OccurredAt.UTC(),
		Data:          event.Payload,
	})
	if err != nil {
		return apperr.Internal("event payload serialization failed", err)
	}

	now := b.clock().UTC()
	notifications := make([]Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		id, err := b.idProvider.NewID()
		if err != nil {
			return apperr.Internal("notification id generation failed", err)
		}
		notifications = append(notifications, Notification{
			ID:          id,
			RecipientID: recipientID,
			SenderID:    event.ActorID,
			Kind:        event.Kind,
			DocumentID:  event.DocumentID,
			Payload:     string(payload),
			Status:      DeliveryPending,
			CreatedAt:   now,
		})
	}
	if err := b.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return apperr.Internal("notification write failed", err)
	}

	for _, notification := range notifications {
		b.dispatch(notification, payload)
	}
	return nil
}

// Close drains the delivery pool.
func (b *Bus) Close() {
	b.pool.Shutdown()
}

func (b *Bus) dispatch(notification Notification, payload []byte) {
	accepted := b.pool.Submit(func(ctx context.Context) error {
		err := b.sink.Deliver(ctx, notification.RecipientID, notification.Kind, payload)
		b.markOutcome(ctx, notification, err)
		if err != nil {
			// Logged and counted; one recipient's failure never blocks the
			// rest or the mutation that triggered the event.
			b.logger.Warn("event delivery failed",
				zap.String("recipient_id", notification.RecipientID),
				zap.String("kind", string(notification.Kind)),
				zap.Error(err))
		}
		return nil
	})
	if !accepted {
		deliveriesTotal.WithLabelValues(string(notification.Kind), "dropped").Inc()
	}
}

func (b *Bus) markOutcome(ctx context.Context, notification Notification, deliveryErr error) {
	updates := map[string]any{"status": DeliverySent}
	outcome := "sent"
	if deliveryErr != nil {
		updates["status"] = DeliveryFailed
		outcome = "failed"
	} else {
		sentAt := b.clock().UTC()
		updates["sent_at"] = &sentAt
	}
	deliveriesTotal.WithLabelValues(string(notification.Kind), outcome).Inc()

	err := b.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", notification.ID).
		Updates(updates).Error
	if err != nil {
		b.logger.Error("notification status update failed",
			zap.String("notification_id", notification.ID),
			zap.Error(err))
	}
}

func dedupe(recipients []string, actorID string) []string {
	seen := make(map[string]struct{}, len(recipients))
	result := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if id == "" || id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

type deliveryEnvelope struct {
	Kind          Kind           `json:"kind"`
	DocumentID    string         `json:"document_id"`
	DocumentTitle string         `json:"document_title"`
	ActorID       string         `json:"actor_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data,omitempty"`
}
