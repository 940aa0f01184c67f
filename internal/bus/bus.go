// Package bus implements the Message Bus Client contract (§4.3, §5, §6) as
// a process-local, Badger-backed broker. It provides the required
// semantics -- at-least-once delivery with redelivery after an unacked
// lease expires, a delivery_attempts counter per message, per-message ack,
// and batch pull with a configurable max -- which the spec notes is
// sufficient for this scope as long as those semantics hold (§5 "a
// process-local in-memory broker is sufficient for testing if it preserves
// these semantics").
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

const (
	retrievalQueue = "retrieval"
	cleaningQueue  = "cleaning"
)

// envelope is the row stored in Badger for one bus message, regardless of
// which logical queue it belongs to.
type envelope struct {
	ID           string          `json:"id" badgerhold:"key"`
	Queue        string          `json:"queue" badgerhold:"index"`
	Body         json.RawMessage `json:"body"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAt    time.Time       `json:"visible_at" badgerhold:"index"`
	ReceiveCount int             `json:"receive_count"`
}

// Bus is the Badger-backed implementation of interfaces.Bus.
type Bus struct {
	store             *badgerhold.Store
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// New creates a Bus backed by the given badgerhold store. The store is
// owned by the caller and not closed by Bus.Close.
func New(store *badgerhold.Store, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) *Bus {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 5
	}
	return &Bus{store: store, visibilityTimeout: visibilityTimeout, maxReceive: maxReceive, logger: logger}
}

func (b *Bus) enqueue(queue string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message for queue %q: %w", queue, err)
	}

	now := time.Now()
	// Timestamp-prefixed id preserves FIFO ordering under badgerhold.SortBy("ID").
	id := fmt.Sprintf("%019d:%s", now.UnixNano(), uuid.New().String())

	row := envelope{
		ID:         id,
		Queue:      queue,
		Body:       data,
		EnqueuedAt: now,
		VisibleAt:  now,
	}

	if err := b.store.Insert(id, &row); err != nil {
		return fmt.Errorf("failed to enqueue message on queue %q: %w", queue, err)
	}
	return nil
}

// PublishTask publishes one task message to the retrieval queue (§6).
func (b *Bus) PublishTask(ctx context.Context, msg models.TaskMessage) error {
	return b.enqueue(retrievalQueue, msg)
}

// PublishAudit publishes one audit message to the cleaning queue (§4.3, §6).
func (b *Bus) PublishAudit(ctx context.Context, msg models.AuditMessage) error {
	return b.enqueue(cleaningQueue, msg)
}

// PullBatch receives up to maxMessages unacked task messages from the
// retrieval queue, marking each invisible for the configured visibility
// timeout and bumping its delivery-attempts counter (§5).
func (b *Bus) PullBatch(ctx context.Context, maxMessages int) ([]interfaces.ReceivedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	now := time.Now()
	var rows []envelope
	err := b.store.Find(&rows,
		badgerhold.Where("Queue").Eq(retrievalQueue).
			And("VisibleAt").Le(now).
			And("ReceiveCount").Lt(b.maxReceive).
			SortBy("ID").
			Limit(maxMessages))
	if err != nil {
		return nil, fmt.Errorf("failed to pull batch: %w", err)
	}

	out := make([]interfaces.ReceivedMessage, 0, len(rows))
	for i := range rows {
		row := rows[i]
		row.ReceiveCount++
		row.VisibleAt = now.Add(b.visibilityTimeout)
		if err := b.store.Update(row.ID, &row); err != nil {
			return nil, fmt.Errorf("failed to extend visibility for message %q: %w", row.ID, err)
		}

		var task models.TaskMessage
		if err := json.Unmarshal(row.Body, &task); err != nil {
			b.logger.Warn().Err(err).Str("message_id", row.ID).Msg("Dropping malformed bus message")
			_ = b.store.Delete(row.ID, &envelope{})
			continue
		}

		id := row.ID
		out = append(out, interfaces.ReceivedMessage{
			MessageID:        id,
			DeliveryAttempts: row.ReceiveCount,
			Task:             task,
			Ack: func(ctx context.Context) error {
				return b.store.Delete(id, &envelope{})
			},
		})
	}

	return out, nil
}

// PullCleaning receives up to maxMessages audit messages from the cleaning
// queue. The transform stage uses this rather than PullBatch since audit
// messages carry a different payload shape.
func (b *Bus) PullCleaning(ctx context.Context, maxMessages int) ([]models.AuditMessage, func(int) error, error) {
	now := time.Now()
	var rows []envelope
	err := b.store.Find(&rows,
		badgerhold.Where("Queue").Eq(cleaningQueue).
			And("VisibleAt").Le(now).
			SortBy("ID").
			Limit(maxMessages))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pull cleaning messages: %w", err)
	}

	out := make([]models.AuditMessage, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		var msg models.AuditMessage
		if err := json.Unmarshal(row.Body, &msg); err != nil {
			continue
		}
		out = append(out, msg)
		ids = append(ids, row.ID)
	}

	ackOne := func(i int) error {
		if i < 0 || i >= len(ids) {
			return fmt.Errorf("ack index %d out of range", i)
		}
		return b.store.Delete(ids[i], &envelope{})
	}

	return out, ackOne, nil
}

// Close is a no-op: the underlying Badger store is owned by the caller.
func (b *Bus) Close() error {
	return nil
}
