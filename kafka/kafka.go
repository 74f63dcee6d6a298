// Package kafka publishes batch job results to a Kafka topic.
package kafka

import "context"

// Message is one record to publish
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []Header
}

// GetHeader gets the header value by key
func (m *Message) GetHeader(k string) []byte {
	for _, header := range m.Headers {
		if header.Key == k {
			return header.Value
		}
	}
	return nil
}

// Header is the header of a kafka message
type Header struct {
	Key   string
	Value []byte
}

// Producer is the interface for kafka producer
type Producer interface {
	Produce(ctx context.Context, msg *Message) error
	Close() error
}
