package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/eventing"
)

// OutboxStore is an in-memory outbox for single-process deployments and
// tests. Records are kept in insertion order.
type OutboxStore struct {
	mu      sync.Mutex
	records []outboxEntry
}

type outboxEntry struct {
	id       string
	envelope eventing.Envelope
	status   string
	attempts int
	created  time.Time
}

// NewOutboxStore constructs an in-memory outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{}
}

// Insert appends a pending envelope.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	id := eventing.NewEventID()
	s.mu.Lock()
	s.records = append(s.records, outboxEntry{
		id:       id,
		envelope: env,
		status:   "pending",
		created:  time.Now().UTC(),
	})
	s.mu.Unlock()
	return id, nil
}

// ListPending returns pending records oldest first.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []eventing.OutboxRecord
	for _, entry := range s.records {
		if entry.status != "pending" {
			continue
		}
		result = append(result, eventing.OutboxRecord{ID: entry.id, Envelope: entry.envelope})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkSent marks a record delivered.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	return s.setStatus(id, "sent")
}

// MarkFailed marks a record failed and bumps its attempt count.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	return s.setStatus(id, "failed")
}

func (s *OutboxStore) setStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].id == id {
			s.records[i].status = status
			s.records[i].attempts++
			return nil
		}
	}
	return nil
}

// Sent returns delivered envelopes, oldest first. Test helper.
func (s *OutboxStore) Sent() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []eventing.Envelope
	for _, entry := range s.records {
		if entry.status == "sent" {
			result = append(result, entry.envelope)
		}
	}
	return result
}

// ProcessedStore is an in-memory consumer idempotency store.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs an in-memory processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	_, ok := s.seen[eventID+"|"+consumerName]
	s.mu.Unlock()
	return ok, nil
}

// MarkProcessed records the event as handled by the consumer.
func (s *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	s.seen[eventID+"|"+consumerName] = struct{}{}
	s.mu.Unlock()
	return nil
}

// DLQStore is an in-memory dead letter store.
type DLQStore struct {
	mu      sync.Mutex
	entries []DLQEntry
}

// DLQEntry is a failed delivery.
type DLQEntry struct {
	Envelope eventing.Envelope
	Reason   string
	At       time.Time
}

// NewDLQStore constructs an in-memory DLQ.
func NewDLQStore() *DLQStore {
	return &DLQStore{}
}

// RecordFailure appends a failed delivery.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, err error) error {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.mu.Lock()
	s.entries = append(s.entries, DLQEntry{Envelope: env, Reason: reason, At: time.Now().UTC()})
	s.mu.Unlock()
	return nil
}

// Entries returns recorded failures. Test helper.
func (s *DLQStore) Entries() []DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DLQEntry(nil), s.entries...)
}
