package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	fails int
	calls int
	seen  []string
}

func (h *flakyHandler) Topic() string { return "ovip.panel.observations" }

func (h *flakyHandler) Handle(_ context.Context, data []byte) error {
	h.calls++
	h.seen = append(h.seen, string(data))
	if h.calls <= h.fails {
		return errors.New("transient")
	}
	return nil
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "t" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestProcess_RetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{fails: 2}

	err := c.process(h, h.Topic(), kafka.Message{Value: []byte(`{"Date":"2021-06-01"}`)})
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestProcess_GivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &flakyHandler{fails: 10}

	err := c.process(h, h.Topic(), kafka.Message{Value: []byte("x")})
	assert.Error(t, err)
	assert.Equal(t, 2, h.calls, "first attempt plus one retry")
}

func TestProcess_RecoversPanic(t *testing.T) {
	c := newTestConsumer(t, 0)
	err := c.process(panicHandler{}, "t", kafka.Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestProcess_HooksTransformAndObserve(t *testing.T) {
	c := newTestConsumer(t, 0)
	var afterErr error
	afterCalled := false

	c.WithConsumerHook(NewHookChain(
		HookFuncs{Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
			return ctx, append([]byte("a:"), data...), nil
		}},
		nil,
		HookFuncs{
			Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
				return ctx, append([]byte("b:"), data...), nil
			},
			After: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) {
				afterCalled = true
				afterErr = err
			},
		},
	))

	h := &flakyHandler{}
	require.NoError(t, c.process(h, h.Topic(), kafka.Message{Value: []byte("x")}))
	assert.Equal(t, []string{"b:a:x"}, h.seen)
	assert.True(t, afterCalled)
	assert.NoError(t, afterErr)
}

func TestProcess_BeforeHookRejects(t *testing.T) {
	c := newTestConsumer(t, 3)
	c.WithConsumerHook(NewHookChain(HookFuncs{Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
		panic("bad hook")
	}}))

	h := &flakyHandler{}
	err := c.process(h, h.Topic(), kafka.Message{})
	require.Error(t, err)
	assert.Zero(t, h.calls)
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.True(t, d > 0 && d <= 80*time.Millisecond, "attempt %d: %v", attempt, d)
	}
	assert.LessOrEqual(t, backoffWithJitter(0, 0, 1), 50*time.Millisecond)
}
