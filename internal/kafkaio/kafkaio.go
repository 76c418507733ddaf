// Package kafkaio holds the segmentio/kafka-go plumbing shared by the
// Kafka-backed sources and sinks.
package kafkaio

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageWriter abstracts kafka.Writer for testability.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SplitBrokers turns a comma-separated bootstrap list into broker addresses.
func SplitBrokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

// NewWriter returns a synchronous, key-hashed writer that waits for all
// in-sync replicas.
func NewWriter(bootstrap, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}
