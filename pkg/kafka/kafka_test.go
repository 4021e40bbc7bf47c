package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/pkg/logger"
)

type memWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerEncodesValues(t *testing.T) {
	w := &memWriter{}
	p := newProducer(w, "gzip")

	require.NoError(t, p.PublishMessage(context.Background(), "events", map[string]int{"k": 3}))
	require.NoError(t, p.Publish(context.Background(), "events", []byte("key"), "raw"))
	require.NoError(t, p.PublishBatch(context.Background(), "events", nil))

	require.Len(t, w.msgs, 2)
	assert.JSONEq(t, `{"k":3}`, string(w.msgs[0].Value))
	assert.Equal(t, "events", w.msgs[0].Topic)
	assert.Equal(t, []byte("key"), w.msgs[1].Key)
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	w.err = errors.New("broker down")
	assert.ErrorContains(t, p.PublishMessage(context.Background(), "events", 1), "broker down")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerRejectsUnencodable(t *testing.T) {
	p := newProducer(&memWriter{}, "gzip")
	assert.Error(t, p.PublishMessage(context.Background(), "events", make(chan int)))
}

func TestHookChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "xab", string(data))
	chain.AfterHandle(ctx, "t", km, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)
}

func TestHookChainRecoversPanic(t *testing.T) {
	var seen error
	chain := NewHookChain(
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		}},
	)

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Equal(t, err, seen)
	assert.Equal(t, "x", string(data))

	assert.NotPanics(t, func() {
		NewHookChain(HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { panic("x") }}).
			AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	})
}

func TestLoggingHookLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	hook := LoggingHook(logger.NewWriter(&buf), time.Hour)

	km := kafka.Message{Offset: 7, Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, km, data, err := hook.BeforeHandle(context.Background(), "obs", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", ctx.Value(CtxTraceID))

	hook.AfterHandle(ctx, "obs", km, data, nil)
	assert.Zero(t, buf.Len(), "fast successes are not logged")

	hook.AfterHandle(ctx, "obs", km, data, errors.New("store down"))
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["trace_id"])
	assert.Equal(t, float64(7), line["offset"])
	assert.Equal(t, "store down", line["error"])
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 200*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
	d := backoffWithJitter(10*time.Millisecond, time.Second, 1)
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.LessOrEqual(t, d, 10*time.Millisecond)
}
