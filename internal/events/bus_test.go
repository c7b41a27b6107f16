package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/ids"
)

type staticResolver struct {
	recipients []string
	err        error
}

func (r *staticResolver) Recipients(ctx context.Context, event Event) ([]string, error) {
	return r.recipients, r.err
}

type recordingSink struct {
	mu        sync.Mutex
	delivered []string
	failFor   map[string]error
}

func (s *recordingSink) Deliver(ctx context.Context, recipientID string, kind Kind, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[recipientID]; ok {
		return err
	}
	s.delivered = append(s.delivered, recipientID)
	return nil
}

func (s *recordingSink) deliveredTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

func newBusTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestBus(t *testing.T, db *gorm.DB, resolver RecipientResolver, sink DeliverySink) *Bus {
	t.Helper()
	bus, err := NewBus(BusConfig{
		Database:   db,
		Resolver:   resolver,
		Sink:       sink,
		IDProvider: ids.NewUUIDProvider(),
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		Workers:    4,
		QueueSize:  16,
	})
	if err != nil {
		t.Fatalf("unexpected bus error: %v", err)
	}
	return bus
}

func TestPublishDeduplicatesRecipients(t *testing.T) {
	db := newBusTestDB(t)
	sink := &recordingSink{}
	// user-2 qualifies twice: direct collaborator and group member.
	resolver := &staticResolver{recipients: []string{"user-2", "user-3", "user-2"}}
	bus := newTestBus(t, db, resolver, sink)

	err := bus.Publish(context.Background(), Event{
		Kind:       KindUpdated,
		DocumentID: "doc-1",
		ActorID:    "user-1",
		OccurredAt: time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	bus.Close()

	var count int64
	if err := db.Model(&Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count notifications: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected exactly one notification per recipient, got %d rows", count)
	}
	if delivered := sink.deliveredTo(); len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", delivered)
	}
}

func TestPublishExcludesActor(t *testing.T) {
	db := newBusTestDB(t)
	sink := &recordingSink{}
	resolver := &staticResolver{recipients: []string{"user-1", "user-2"}}
	bus := newTestBus(t, db, resolver, sink)

	err := bus.Publish(context.Background(), Event{
		Kind:       KindCommented,
		DocumentID: "doc-1",
		ActorID:    "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	bus.Close()

	delivered := sink.deliveredTo()
	if len(delivered) != 1 || delivered[0] != "user-2" {
		t.Fatalf("expected only user-2 to be notified, got %v", delivered)
	}
}

func TestPublishWritesNotificationsBeforeDelivery(t *testing.T) {
	db := newBusTestDB(t)
	blocked := make(chan struct{})
	sink := &blockingSink{release: blocked}
	resolver := &staticResolver{recipients: []string{"user-2"}}
	bus := newTestBus(t, db, resolver, sink)

	err := bus.Publish(context.Background(), Event{Kind: KindUpdated, DocumentID: "doc-1", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	// Delivery has not completed, but the durable record already exists.
	var stored Notification
	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("expected notification row before delivery completion: %v", err)
	}
	if stored.Status != DeliveryPending {
		t.Fatalf("expected pending status, got %s", stored.Status)
	}

	close(blocked)
	bus.Close()

	if err := db.First(&stored).Error; err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if stored.Status != DeliverySent {
		t.Fatalf("expected sent status after delivery, got %s", stored.Status)
	}
	if stored.SentAt == nil {
		t.Fatalf("expected sent_at to be recorded")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, recipientID string, kind Kind, payload []byte) error {
	<-s.release
	return nil
}

func TestDeliveryFailureIsIsolatedPerRecipient(t *testing.T) {
	db := newBusTestDB(t)
	sink := &recordingSink{failFor: map[string]error{"user-2": errors.New("channel closed")}}
	resolver := &staticResolver{recipients: []string{"user-2", "user-3"}}
	bus := newTestBus(t, db, resolver, sink)

	err := bus.Publish(context.Background(), Event{Kind: KindUpdated, DocumentID: "doc-1", ActorID: "user-1"})
	if err != nil {
		t.Fatalf("delivery failure must not fail the publish: %v", err)
	}
	bus.Close()

	if delivered := sink.deliveredTo(); len(delivered) != 1 || delivered[0] != "user-3" {
		t.Fatalf("expected user-3 delivery to proceed, got %v", delivered)
	}

	var failed Notification
	if err := db.Where("recipient_id = ?", "user-2").First(&failed).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}
	if failed.Status != DeliveryFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}

	var sent Notification
	if err := db.Where("recipient_id = ?", "user-3").First(&sent).Error; err != nil {
		t.Fatalf("failed to load notification: %v", err)
	}
	if sent.Status != DeliverySent {
		t.Fatalf("expected sent status, got %s", sent.Status)
	}
}

func TestPublishUsesExplicitRecipients(t *testing.T) {
	db := newBusTestDB(t)
	sink := &recordingSink{}
	resolver := &staticResolver{err: errors.New("resolver must not be called")}
	bus := newTestBus(t, db, resolver, sink)

	err := bus.Publish(context.Background(), Event{
		Kind:       KindDeleted,
		DocumentID: "doc-1",
		ActorID:    "user-1",
		Recipients: []string{"user-2"},
	})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	bus.Close()

	if delivered := sink.deliveredTo(); len(delivered) != 1 || delivered[0] != "user-2" {
		t.Fatalf("expected explicit recipient delivery, got %v", delivered)
	}
}
