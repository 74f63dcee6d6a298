package kafka

import "fmt"

var (
	// ErrProducerClosed is returned by Produce after Close
	ErrProducerClosed = fmt.Errorf("kafka: producer closed")
)

// ErrInvalidConfig Kafka configuration error
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("kafka: invalid config: %s", msg)
}

// ErrConnection Kafka connection error
func ErrConnection(err error) error {
	return fmt.Errorf("kafka: connection failed: %w", err)
}

// ErrProduce produce message error
func ErrProduce(topic string, err error) error {
	return fmt.Errorf("kafka: produce to topic %s failed: %w", topic, err)
}

// ErrEncodeEvent event encoding error
func ErrEncodeEvent(err error) error {
	return fmt.Errorf("kafka: encode event failed: %w", err)
}
