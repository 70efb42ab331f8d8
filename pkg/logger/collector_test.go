package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanPublisher struct {
	topics  chan string
	batches chan []AggregatedLogEntry
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{topics: make(chan string, 4), batches: make(chan []AggregatedLogEntry, 4)}
}

func (p *chanPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.topics <- topic
	p.batches <- payload.([]AggregatedLogEntry)
	return nil
}

func TestCollector_AggregatesRepeatedErrors(t *testing.T) {
	pub := newChanPublisher()
	l := NewWriter(&bytes.Buffer{})
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "ovip.logs.errors", Publisher: pub})
	defer l.RemoveCollector()

	for i := 0; i < 3; i++ {
		l.Error("pipeline run failed", String("source", "csv:data"), Error(errors.New("no data file")))
	}
	assert.Equal(t, 1, l.collector.Pending())

	l.Error("persist features failed", String("run_id", "r1"))

	select {
	case topic := <-pub.topics:
		assert.Equal(t, "ovip.logs.errors", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch published")
	}
	batch := <-pub.batches
	require.Len(t, batch, 2)

	counts := map[string]int{}
	for _, e := range batch {
		counts[e.Message] = e.Count
		assert.Equal(t, "error", e.Level)
		assert.Contains(t, e.Caller, "collector_test.go")
	}
	assert.Equal(t, 3, counts["pipeline run failed"])
	assert.Equal(t, 1, counts["persist features failed"])
}

func TestCollector_FlushesOnClose(t *testing.T) {
	pub := newChanPublisher()
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "t", Publisher: pub})
	c.AddLog("error", "consumer stopped", nil, "app.go:10")
	c.Close()

	select {
	case batch := <-pub.batches:
		require.Len(t, batch, 1)
		assert.Equal(t, "consumer stopped", batch[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not flush")
	}
}

func TestCollector_WarnIsNotCollected(t *testing.T) {
	l := NewWriter(&bytes.Buffer{})
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10})
	defer l.RemoveCollector()

	l.Warn("slow request")
	assert.Zero(t, l.collector.Pending())
}
