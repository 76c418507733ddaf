package kafkaio

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
	if got := SplitBrokers(""); len(got) != 0 {
		t.Fatalf("want no brokers, got %v", got)
	}
}

func TestNewWriter(t *testing.T) {
	w := NewWriter("a:9092,b:9092", "orders.quarantine")
	if w.Topic != "orders.quarantine" {
		t.Fatalf("unexpected topic %q", w.Topic)
	}
	if w.RequiredAcks != kafka.RequireAll || w.Async {
		t.Fatalf("writer must be synchronous with acks=all")
	}
}
