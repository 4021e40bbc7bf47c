package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"FinDS/pkg/logger"
)

// ConsumerHook wraps message handling. BeforeHandle may replace the
// context, message or payload; an error from it skips the handler and is
// treated as a failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError classifies an error produced by a hook, e.g. "ERR_PANIC".
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs implements ConsumerHook from optional functions.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// HookChain runs hooks in order for BeforeHandle and in reverse order for
// AfterHandle. A panicking hook becomes a HookError instead of crashing the
// worker.
type HookChain struct {
	hooks []ConsumerHook
}

// NewHookChain ignores nil hooks.
func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range c.hooks {
		nextCtx, nextMsg, nextData, err := safeBefore(h, ctx, topic, km, data)
		if err != nil {
			c.OnError(ctx, topic, km, data, err)
			return ctx, km, data, err
		}
		ctx, km, data = nextCtx, nextMsg, nextData
	}
	return ctx, km, data, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		recoverHook(func() { h.AfterHandle(ctx, topic, km, data, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c.hooks {
		h := h
		recoverHook(func() { h.OnError(ctx, topic, km, data, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte) (outCtx context.Context, outMsg kafka.Message, outData []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			outCtx, outMsg, outData = ctx, km, data
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, topic, km, data)
}

func recoverHook(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey string

const (
	CtxStartTime ctxKey = "kafka_hook_start_time"
	CtxTraceID   ctxKey = "kafka_hook_trace_id"
)

// ExtractTraceID returns the "trace_id" header, if any.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}

// LoggingHook records the start time and trace id in the context and logs
// slow or failed messages.
func LoggingHook(lgr *logger.Logger, slow time.Duration) ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = context.WithValue(ctx, CtxStartTime, time.Now())
			if id := ExtractTraceID(km); id != "" {
				ctx = context.WithValue(ctx, CtxTraceID, id)
			}
			return ctx, km, data, nil
		},
		After: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			start, ok := ctx.Value(CtxStartTime).(time.Time)
			if !ok {
				return
			}
			elapsed := time.Since(start)
			if err != nil || (slow > 0 && elapsed > slow) {
				trace, _ := ctx.Value(CtxTraceID).(string)
				lgr.Warn("kafka message handled",
					logger.String("topic", topic),
					logger.Int("partition", km.Partition),
					logger.Int64("offset", km.Offset),
					logger.String("trace_id", trace),
					logger.Duration("elapsed_ms", elapsed),
					logger.Error(err))
			}
		},
	}
}
