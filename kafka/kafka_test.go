package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailyyoga/contractflow/batch"
	"github.com/dailyyoga/contractflow/logger"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (f *fakeProducer) Produce(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func finishedSnapshot() batch.Snapshot {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return batch.Snapshot{
		ID:     "b-42",
		Status: batch.StatusCompleted,
		Items: []batch.Item{
			{ID: "1", Status: batch.ItemCompleted, Result: json.RawMessage(`{"risk_level":"low"}`)},
			{ID: "2", Status: batch.ItemCompleted},
			{ID: "3", Status: batch.ItemFailed, Error: "parse error"},
		},
		Total:       3,
		Polls:       4,
		SubmittedAt: start,
		UpdatedAt:   start.Add(8 * time.Second),
	}
}

func TestNotifier_Notify(t *testing.T) {
	p := &fakeProducer{}
	n := NewNotifier(logger.NewNop(), p, "results")

	if err := n.Notify(context.Background(), finishedSnapshot()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(p.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(p.msgs))
	}
	msg := p.msgs[0]
	if msg.Topic != "results" || string(msg.Key) != "b-42" {
		t.Errorf("topic = %q, key = %q", msg.Topic, msg.Key)
	}
	if got := string(msg.GetHeader(HeaderEventType)); got != EventBatchFinished {
		t.Errorf("event type header = %q", got)
	}
	if msg.GetHeader("missing") != nil {
		t.Error("unknown header must be nil")
	}

	var ev map[string]any
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]any{
		"batch_id":     "b-42",
		"status":       "completed",
		"total":        float64(3),
		"completed":    float64(2),
		"failed":       float64(1),
		"pending":      float64(0),
		"success_rate": "66.67",
		"polls":        float64(4),
		"elapsed_ms":   float64(8000),
	}
	for k, v := range want {
		if ev[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, ev[k], ev[k], v)
		}
	}
	if _, ok := ev["items"]; ok {
		t.Error("items must be omitted unless requested")
	}
	if _, ok := ev["error"]; ok {
		t.Error("error must be omitted for a clean job")
	}
}

func TestNotifier_WithItems(t *testing.T) {
	p := &fakeProducer{}
	n := NewNotifier(nil, p, "", WithItems())

	snap := finishedSnapshot()
	snap.Status = batch.StatusTimedOut
	snap.Err = batch.ErrPollTimeout
	if err := n.Notify(context.Background(), snap); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	var ev BatchEvent
	if err := json.Unmarshal(p.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if len(ev.Items) != 3 || ev.Items[2].Error != "parse error" {
		t.Errorf("items = %+v", ev.Items)
	}
	if string(ev.Items[0].Result) != `{"risk_level":"low"}` {
		t.Errorf("result = %s", ev.Items[0].Result)
	}
	if ev.Error != batch.ErrPollTimeout.Error() || ev.Status != "timed_out" {
		t.Errorf("status = %q, error = %q", ev.Status, ev.Error)
	}
	if p.msgs[0].Topic != "" {
		t.Error("empty topic must be left to the producer")
	}
}

func TestNotifier_ProduceError(t *testing.T) {
	boom := errors.New("queue full")
	n := NewNotifier(nil, &fakeProducer{err: boom}, "results")
	if err := n.Notify(context.Background(), finishedSnapshot()); !errors.Is(err, boom) {
		t.Errorf("expected produce error, got %v", err)
	}
}

func TestProducerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ProducerConfig
		wantErr bool
	}{
		{"no brokers", &ProducerConfig{}, true},
		{"defaults", &ProducerConfig{Brokers: []string{"localhost:9092"}}, false},
		{"bad acks", &ProducerConfig{Brokers: []string{"localhost:9092"}, Acks: "some"}, true},
		{"negative linger", &ProducerConfig{Brokers: []string{"localhost:9092"}, LingerMs: -1}, true},
		{"negative timeout", &ProducerConfig{Brokers: []string{"localhost:9092"}, FlushTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.MergeDefaults().Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	var nilCfg *ProducerConfig
	if nilCfg.Enabled() {
		t.Error("nil config must be disabled")
	}

	cfg := (&ProducerConfig{Brokers: []string{"a:9092", "b:9092"}, ClientID: "batchctl"}).MergeDefaults()
	cm := cfg.BuildConfigMap()
	if v, _ := cm.Get("bootstrap.servers", ""); v != "a:9092,b:9092" {
		t.Errorf("bootstrap.servers = %v", v)
	}
	if v, _ := cm.Get("client.id", ""); v != "batchctl" {
		t.Errorf("client.id = %v", v)
	}
	if cfg.Topic != "contractflow.batch.finished" {
		t.Errorf("default topic = %q", cfg.Topic)
	}
}
