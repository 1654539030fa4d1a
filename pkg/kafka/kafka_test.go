package kafka

import (
	"testing"
	"time"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	min, max := 50*time.Millisecond, 400*time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v outside (0, %v]", attempt, d, max)
		}
	}
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]int{"a": 1})
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("unexpected json encoding %q %v", b, err)
	}
	b, _ = encode("raw")
	if string(b) != "raw" {
		t.Fatalf("strings must pass through, got %q", b)
	}
	if _, err := encode(func() {}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected producer error without brokers")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected consumer error without brokers")
	}
}
