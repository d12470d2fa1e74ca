package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const transactionsTopic = "conveyance.transactions"

// KafkaBus announces committed transactions over a shared Kafka topic. Each
// party consumes in its own group so every party sees every announcement.
type KafkaBus struct {
	client *kgo.Client
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler

	cancel context.CancelFunc
	done   chan struct{}
}

func NewKafkaBus(ctx context.Context, brokers []string, group string, logger *slog.Logger) (*KafkaBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(transactionsTopic),
		kgo.ConsumerGroup(group),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &KafkaBus{
		client: client,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.consume(loopCtx)
	return b, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, transactionsTopic)
	if err != nil {
		return fmt.Errorf("transport: create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("transport: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (b *KafkaBus) Publish(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: encode message: %w", err)
	}
	rec := &kgo.Record{
		Topic: transactionsTopic,
		Key:   []byte(msg.TxID.String()),
		Value: value,
	}
	if err := b.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *KafkaBus) consume(ctx context.Context) {
	defer close(b.done)
	for {
		fetches := b.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			b.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			var msg Message
			if err := json.Unmarshal(rec.Value, &msg); err != nil {
				b.logger.Error("dropping malformed bus message", "offset", rec.Offset, "error", err)
				return
			}
			b.mu.RLock()
			handlers := b.handlers
			b.mu.RUnlock()
			for _, h := range handlers {
				h(ctx, msg)
			}
		})
	}
}

func (b *KafkaBus) Close() error {
	b.cancel()
	b.client.Close()
	<-b.done
	return nil
}
