package interfaces

import (
	"context"

	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// ReceivedMessage pairs a decoded TaskMessage with the bus-specific metadata
// the dispatcher needs: the message id, the delivery-attempt counter used to
// compute retry_count (§3, §5), and an Ack callback.
type ReceivedMessage struct {
	MessageID          string
	DeliveryAttempts   int
	Task               models.TaskMessage
	Ack                func(ctx context.Context) error
}

// Bus is the Message Bus Client contract (§4.3, §5): at-least-once
// delivery, a delivery_attempts counter per message, per-message ack, and
// batch pull with a configurable max.
type Bus interface {
	PublishTask(ctx context.Context, msg models.TaskMessage) error
	PublishAudit(ctx context.Context, msg models.AuditMessage) error

	// PullBatch returns up to maxMessages received-but-unacked messages from
	// the retrieval subscription. An empty, non-error result means the
	// subscription is currently empty.
	PullBatch(ctx context.Context, maxMessages int) ([]ReceivedMessage, error)

	Close() error
}
