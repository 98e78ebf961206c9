package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/ports"
)

type stubOutbox struct {
	records      []ports.OutboxRecord
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (s *stubOutbox) Enqueue(context.Context, ports.OutboxEvent) error { return nil }

func (s *stubOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return s.records, nil
}

func (s *stubOutbox) MarkPublished(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ string, _ string, _ time.Time) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *stubOutbox) MarkDeadLettered(_ context.Context, id uuid.UUID, _ string, _ string, _ time.Time) error {
	s.deadLettered = append(s.deadLettered, id)
	return nil
}

type stubPublisher struct {
	err   error
	calls int
}

func (p *stubPublisher) Publish(context.Context, string, []byte) error {
	p.calls++
	return p.err
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(retries int) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:   uuid.New(),
		EventType:  "auth.user.registered",
		Payload:    []byte(`{}`),
		RetryCount: retries,
	}
}

func TestWorkerPublishesAndAcknowledges(t *testing.T) {
	t.Parallel()

	rec := record(0)
	outbox := &stubOutbox{records: []ports.OutboxRecord{rec}}
	publisher := &stubPublisher{}
	worker := NewOutboxWorker(silentLogger(), outbox, publisher, time.Second, 10, time.Minute, 5)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if publisher.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", publisher.calls)
	}
	if len(outbox.published) != 1 || outbox.published[0] != rec.OutboxID {
		t.Fatalf("published = %v", outbox.published)
	}
	if len(outbox.failed) != 0 || len(outbox.deadLettered) != 0 {
		t.Fatal("no failure marks expected on success")
	}
}

func TestWorkerSchedulesRetryOnPublishError(t *testing.T) {
	t.Parallel()

	rec := record(0)
	outbox := &stubOutbox{records: []ports.OutboxRecord{rec}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	worker := NewOutboxWorker(silentLogger(), outbox, publisher, time.Second, 10, time.Minute, 5)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(outbox.failed) != 1 || outbox.failed[0] != rec.OutboxID {
		t.Fatalf("failed = %v", outbox.failed)
	}
	if len(outbox.deadLettered) != 0 {
		t.Fatal("first failure must not dead-letter")
	}
}

func TestWorkerDeadLettersAtRetryCeiling(t *testing.T) {
	t.Parallel()

	// The next failed publish would be attempt five of five.
	rec := record(4)
	outbox := &stubOutbox{records: []ports.OutboxRecord{rec}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	worker := NewOutboxWorker(silentLogger(), outbox, publisher, time.Second, 10, time.Minute, 5)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(outbox.deadLettered) != 1 || outbox.deadLettered[0] != rec.OutboxID {
		t.Fatalf("deadLettered = %v", outbox.deadLettered)
	}
	if len(outbox.failed) != 0 {
		t.Fatal("ceiling failure must dead-letter, not retry")
	}
}

func TestWorkerSkipsRecordsAlreadyPastCeiling(t *testing.T) {
	t.Parallel()

	rec := record(5)
	outbox := &stubOutbox{records: []ports.OutboxRecord{rec}}
	publisher := &stubPublisher{}
	worker := NewOutboxWorker(silentLogger(), outbox, publisher, time.Second, 10, time.Minute, 5)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if publisher.calls != 0 {
		t.Fatal("exhausted record must not be published")
	}
	if len(outbox.deadLettered) != 1 {
		t.Fatalf("deadLettered = %v", outbox.deadLettered)
	}
}
