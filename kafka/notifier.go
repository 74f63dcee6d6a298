package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dailyyoga/contractflow/batch"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Headers and values attached to published events
const (
	HeaderEventType    = "event-type"
	EventBatchFinished = "batch.finished"
	HeaderContentType  = "content-type"
	ContentTypeJSON    = "application/json"
)

// ItemEvent is one item in a BatchEvent
type ItemEvent struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchEvent is the payload published when a batch job finishes
type BatchEvent struct {
	BatchID     string          `json:"batch_id"`
	Status      string          `json:"status"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	Pending     int             `json:"pending"`
	SuccessRate decimal.Decimal `json:"success_rate"`
	Polls       int             `json:"polls"`
	FailedPolls int             `json:"failed_polls"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	Error       string          `json:"error,omitempty"`
	Items       []ItemEvent     `json:"items,omitempty"`
}

// NewBatchEvent builds the event for a finished job snapshot
func NewBatchEvent(snap batch.Snapshot, withItems bool) BatchEvent {
	stats := snap.Stats()
	ev := BatchEvent{
		BatchID:     snap.ID,
		Status:      string(snap.Status),
		Total:       stats.Total,
		Completed:   stats.Completed,
		Failed:      stats.Failed,
		Pending:     stats.Pending,
		SuccessRate: stats.SuccessRate,
		Polls:       snap.Polls,
		FailedPolls: snap.FailedPolls,
		SubmittedAt: snap.SubmittedAt,
		FinishedAt:  snap.UpdatedAt,
		ElapsedMs:   stats.Elapsed.Milliseconds(),
	}
	if snap.Err != nil {
		ev.Error = snap.Err.Error()
	}
	if withItems {
		ev.Items = make([]ItemEvent, 0, len(snap.Items))
		for _, it := range snap.Items {
			ev.Items = append(ev.Items, ItemEvent{
				ID:     it.ID,
				Status: string(it.Status),
				Result: it.Result,
				Error:  it.Error,
			})
		}
	}
	return ev
}

// Notifier publishes a BatchEvent for every finished job. It satisfies
// batch.Notifier.
type Notifier struct {
	log       logger.Logger
	producer  Producer
	topic     string
	withItems bool
}

// NotifierOption configures a Notifier
type NotifierOption func(*Notifier)

// WithItems includes per-item results in published events
func WithItems() NotifierOption {
	return func(n *Notifier) { n.withItems = true }
}

// NewNotifier creates a notifier publishing to topic. An empty topic leaves
// the choice to the producer's configured default.
func NewNotifier(log logger.Logger, producer Producer, topic string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		log:      logger.Named(log, "kafka-notifier"),
		producer: producer,
		topic:    topic,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify publishes the job keyed by its batch id
func (n *Notifier) Notify(ctx context.Context, snap batch.Snapshot) error {
	value, err := json.Marshal(NewBatchEvent(snap, n.withItems))
	if err != nil {
		return ErrEncodeEvent(err)
	}
	msg := &Message{
		Topic: n.topic,
		Key:   []byte(snap.ID),
		Value: value,
		Headers: []Header{
			{Key: HeaderEventType, Value: []byte(EventBatchFinished)},
			{Key: HeaderContentType, Value: []byte(ContentTypeJSON)},
		},
	}
	if err := n.producer.Produce(ctx, msg); err != nil {
		return err
	}
	n.log.Debug("batch event published",
		zap.String("batch_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("bytes", len(value)),
	)
	return nil
}

var _ batch.Notifier = (*Notifier)(nil)
