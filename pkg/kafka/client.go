package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/inventory-backend/pkg/bus"
	"github.com/angelmondragon/inventory-backend/pkg/config"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

var errNoBrokers = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes bus messages to Kafka. Message keys are hashed so events of
// one aggregate stay on one partition.
type Publisher struct {
	writer  messageWriter
	brokers []string
}

func NewPublisher(cfg config.KafkaConfig, logg *logger.Logger) (*Publisher, error) {
	brokers := normalizeBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		WriteTimeout: cfg.WriteTimeout,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", strings.Join(brokers, ",")), "kafka publisher initialized")
	}
	return &Publisher{writer: writer, brokers: brokers}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, msg bus.Message) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("topic is required")
	}
	headers := make([]kafkago.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	kmsg := kafkago.Message{
		Topic:   topic,
		Value:   msg.Data,
		Headers: headers,
	}
	if msg.Key != "" {
		kmsg.Key = []byte(msg.Key)
	}
	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	return pingBrokers(ctx, p.brokers)
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NewReader joins the configured consumer group on the given topics.
func NewReader(cfg config.KafkaConfig, topics []string) (*kafkago.Reader, error) {
	brokers := normalizeBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id is required")
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
	}), nil
}

func pingBrokers(ctx context.Context, brokers []string) error {
	var errs []error
	for _, broker := range brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

// Ping checks broker connectivity for consumers that hold no Publisher.
func Ping(ctx context.Context, cfg config.KafkaConfig) error {
	brokers := normalizeBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return errNoBrokers
	}
	return pingBrokers(ctx, brokers)
}

func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
