package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"orderlake/internal/kafkaio"
	"orderlake/internal/model"
)

// messageReader abstracts kafka.Reader for testability.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource reads one raw order per message from the start of a topic
// partition. A fetch ends once no message arrived for readTimeout.
type KafkaSource struct {
	newReader   func() messageReader
	readTimeout time.Duration
}

// NewKafkaSource creates a Kafka-backed source.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaSource(bootstrap string, topic string, readTimeout time.Duration) *KafkaSource {
	brokers := kafkaio.SplitBrokers(bootstrap)
	return &KafkaSource{
		newReader: func() messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
		readTimeout: readTimeout,
	}
}

// NewKafkaSourceWith is only for tests to inject a fake reader.
func NewKafkaSourceWith(newReader func() messageReader, readTimeout time.Duration) *KafkaSource {
	return &KafkaSource{newReader: newReader, readTimeout: readTimeout}
}

func (k *KafkaSource) Fetch(ctx context.Context, since *time.Time) ([]model.RawRecord, error) {
	rd := k.newReader()
	defer rd.Close()

	var records []model.RawRecord
	for {
		readCtx, cancel := context.WithTimeout(ctx, k.readTimeout)
		m, err := rd.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// idle topic or closed reader: the backlog is drained
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read kafka: %w", err)
		}
		r, err := model.DecodeRawRecord(m.Value)
		if err != nil {
			log.Printf("source: skipping undecodable message at offset %d: %v", m.Offset, err)
			continue
		}
		records = append(records, r)
	}
	log.Printf("source: read %d orders from kafka", len(records))
	if since != nil {
		records = FilterSince(records, *since)
		log.Printf("source: %d orders after incremental filter", len(records))
	}
	return records, nil
}
