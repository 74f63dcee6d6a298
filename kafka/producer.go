package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/retry"
	"github.com/dailyyoga/contractflow/routine"
	"go.uber.org/zap"
)

type defaultProducer struct {
	logger logger.Logger
	config *ProducerConfig

	p *kafka.Producer

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// connectPolicy retries broker probing and producer creation
func connectPolicy(log logger.Logger, name string) retry.Policy {
	return retry.Policy{
		Name:           name,
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       5 * time.Second,
		JitterFraction: 0,
		Classify:       func(error) bool { return true },
		Logger:         log,
	}
}

// NewProducer validates the cluster and creates a kafka producer
func NewProducer(ctx context.Context, log logger.Logger, config *ProducerConfig) (Producer, error) {
	log = logger.Named(log, "kafka")
	config = config.MergeDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := validateKafkaCluster(ctx, log, config); err != nil {
		return nil, err
	}

	producer, err := retry.Do(ctx, connectPolicy(log, "kafka-producer"), func(context.Context) (*kafka.Producer, error) {
		return kafka.NewProducer(config.BuildConfigMap())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kp := &defaultProducer{
		p:      producer,
		logger: log,
		config: config,
		done:   make(chan struct{}),
	}

	kp.wg.Add(1)
	routine.GoNamed(log, "kafka-delivery-reports", func() {
		defer kp.wg.Done()
		kp.handleDeliveryReports()
	})

	log.Info("kafka producer initialized and validated",
		zap.Strings("brokers", config.Brokers),
		zap.String("topic", config.Topic),
	)
	return kp, nil
}

// validateKafkaCluster fetches cluster metadata to verify the brokers answer
func validateKafkaCluster(ctx context.Context, log logger.Logger, config *ProducerConfig) error {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(config.Brokers, ","),
		"request.timeout.ms": int(config.ConnectTimeout.Milliseconds()),
	}

	adminClient, err := retry.Do(ctx, connectPolicy(log, "kafka-admin"), func(context.Context) (*kafka.AdminClient, error) {
		return kafka.NewAdminClient(configMap)
	})
	if err != nil {
		return ErrConnection(err)
	}
	defer adminClient.Close()

	if _, err := adminClient.GetMetadata(nil, false, int(config.ConnectTimeout.Milliseconds())); err != nil {
		return ErrConnection(err)
	}

	log.Info("kafka brokers connection validated", zap.Strings("brokers", config.Brokers))
	return nil
}

// handleDeliveryReports logs the delivery reports of the kafka producer
func (kp *defaultProducer) handleDeliveryReports() {
	for {
		select {
		case <-kp.done:
			return
		case e := <-kp.p.Events():
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.logger.Error("failed to deliver message",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", *ev.TopicPartition.Topic),
						zap.ByteString("key", ev.Key),
					)
				} else {
					kp.logger.Debug("message delivered",
						zap.String("topic", *ev.TopicPartition.Topic),
						zap.Int32("partition", ev.TopicPartition.Partition),
						zap.Int64("offset", int64(ev.TopicPartition.Offset)),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
				if ev.Code() == kafka.ErrAllBrokersDown {
					kp.logger.Error("all kafka brokers are down", zap.Error(ev))
				}
			case nil:
				return
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

// Produce enqueues a message; delivery is reported asynchronously
func (kp *defaultProducer) Produce(ctx context.Context, msg *Message) error {
	select {
	case <-kp.done:
		return ErrProducerClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	topic := msg.Topic
	if topic == "" {
		topic = kp.config.Topic
	}
	if msg.Value == nil {
		return ErrInvalidConfig("value is required")
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   msg.Key,
		Value: msg.Value,
	}
	for _, header := range msg.Headers {
		message.Headers = append(message.Headers, kafka.Header{Key: header.Key, Value: header.Value})
	}

	if err := kp.p.Produce(message, nil); err != nil {
		return ErrProduce(topic, err)
	}
	return nil
}

// Close flushes queued messages and closes the producer
func (kp *defaultProducer) Close() error {
	kp.closeOnce.Do(func() {
		close(kp.done)
		kp.wg.Wait()

		remaining := kp.p.Flush(int(kp.config.FlushTimeout.Milliseconds()))
		if remaining > 0 {
			kp.logger.Warn("producer closed with unflushed messages", zap.Int("remaining", remaining))
		}

		kp.p.Close()
	})
	return nil
}
