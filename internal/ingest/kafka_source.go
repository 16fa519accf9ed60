package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

const defaultKafkaRetryBackoff = time.Second

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSource feeds a consumer-group reader into the router using the Kafka
// topic as the route. Offsets are committed only once a message is settled.
type KafkaSource struct {
	reader  kafkaReader
	router  *Router
	logg    *logger.Logger
	backoff time.Duration
}

func NewKafkaSource(reader kafkaReader, router *Router, logg *logger.Logger, backoff time.Duration) (*KafkaSource, error) {
	if reader == nil {
		return nil, fmt.Errorf("kafka reader required")
	}
	if router == nil {
		return nil, fmt.Errorf("router required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if backoff <= 0 {
		backoff = defaultKafkaRetryBackoff
	}
	return &KafkaSource{reader: reader, router: router, logg: logg, backoff: backoff}, nil
}

func (s *KafkaSource) Run(ctx context.Context) error {
	s.logg.Info(ctx, "kafka source started")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(ctx, "kafka fetch failed", err)
			if err := wait(ctx, s.backoff); err != nil {
				return err
			}
			continue
		}

		if err := s.settle(ctx, msg); err != nil {
			return err
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(s.logg.WithField(ctx, "offset", msg.Offset), "kafka commit failed", err)
		}
	}
}

// settle dispatches msg until the router stops asking for a retry.
func (s *KafkaSource) settle(ctx context.Context, kmsg kafka.Message) error {
	msg := toKafkaMessage(kmsg)
	for {
		retry, _ := s.router.Dispatch(ctx, msg)
		if !retry {
			return nil
		}
		if err := wait(ctx, s.backoff); err != nil {
			return err
		}
	}
}

func toKafkaMessage(msg kafka.Message) Message {
	attributes := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		attributes[header.Key] = string(header.Value)
	}
	id := attributes["event_id"]
	if id == "" {
		id = msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
	}
	return Message{
		ID:         id,
		Route:      msg.Topic,
		Key:        string(msg.Key),
		Data:       msg.Value,
		Attributes: attributes,
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

