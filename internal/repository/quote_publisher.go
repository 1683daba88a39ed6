package repository

import (
	"context"
	"fmt"

	"StockLive/internal/market"
	pkgkafka "StockLive/pkg/kafka"
)

// KafkaQuotePublisher republishes merged quotes to a Kafka topic, keyed by
// ticker so per-instrument ordering is preserved.
type KafkaQuotePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaQuotePublisher creates a Kafka-backed quote publisher.
func NewKafkaQuotePublisher(producer *pkgkafka.Producer, topic string) market.QuotePublisher {
	return &KafkaQuotePublisher{producer: producer, topic: topic}
}

func (p *KafkaQuotePublisher) PublishQuote(ctx context.Context, q market.Quote) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(q.Ticker), q); err != nil {
		return fmt.Errorf("publish quote %s: %w", q.Ticker, err)
	}
	return nil
}
