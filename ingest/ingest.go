package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/badhabitcaps/poker-web/domain"
)

// NewConsumer connects to the given brokers.
func NewConsumer(brokers []string) (sarama.Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// Ingest feeds events produced by server-side handlers through Kafka into
// the relay. Each record value is an event envelope.
type Ingest struct {
	consumer sarama.Consumer
	topic    string
	pub      domain.Publisher
}

func New(consumer sarama.Consumer, topic string, pub domain.Publisher) *Ingest {
	return &Ingest{consumer: consumer, topic: topic, pub: pub}
}

// Run consumes every partition of the topic from the newest offset until
// ctx is cancelled. Bad records and consumer errors are logged and skipped.
func (in *Ingest) Run(ctx context.Context) error {
	partitions, err := in.consumer.Partitions(in.topic)
	if err != nil {
		return fmt.Errorf("kafka partitions for %q: %w", in.topic, err)
	}

	pcs := make([]sarama.PartitionConsumer, 0, len(partitions))
	defer func() {
		for _, pc := range pcs {
			if err := pc.Close(); err != nil {
				slog.Debug("partition consumer close", "topic", in.topic, "error", err)
			}
		}
	}()

	for _, p := range partitions {
		pc, err := in.consumer.ConsumePartition(in.topic, p, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("kafka consume %s/%d: %w", in.topic, p, err)
		}
		pcs = append(pcs, pc)
	}

	slog.Info("kafka ingest started", "topic", in.topic, "partitions", len(partitions))

	var wg sync.WaitGroup
	for i, pc := range pcs {
		wg.Add(1)
		go func(partition int32, pc sarama.PartitionConsumer) {
			defer wg.Done()
			in.consume(ctx, partition, pc)
		}(partitions[i], pc)
	}
	wg.Wait()

	slog.Info("kafka ingest stopped", "topic", in.topic)
	return nil
}

func (in *Ingest) consume(ctx context.Context, partition int32, pc sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			in.handle(ctx, msg)
		case cerr, ok := <-pc.Errors():
			if !ok {
				return
			}
			slog.Error("kafka consumer error", "topic", in.topic, "partition", partition, "error", cerr.Err)
		}
	}
}

func (in *Ingest) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	evt, err := domain.DecodeEvent(msg.Value)
	if err != nil {
		slog.Warn("invalid kafka record", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}

	n, err := in.pub.Publish(ctx, evt)
	if err != nil {
		slog.Warn("kafka record not published", "offset", msg.Offset, "topic", evt.Topic, "error", err)
		return
	}
	slog.Debug("kafka record routed", "partition", msg.Partition, "offset", msg.Offset, "topic", evt.Topic, "recipients", n)
}
