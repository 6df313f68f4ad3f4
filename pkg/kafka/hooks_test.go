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

func TestHookChainOrderAndPanic(t *testing.T) {
	var order []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before1")
			return ctx, km, append(data, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after1") },
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before2")
			return ctx, km, append(data, '2'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after2") },
	}
	chain := NewHookChain(first, nil, second)

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "bars", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x12", string(data))
	chain.AfterHandle(ctx, "bars", km, data, nil)
	assert.Equal(t, []string{"before1", "before2", "after2", "after1"}, order)

	boom := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("bad hook")
	}}
	var seen error
	sink := HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }}
	_, _, _, err = NewHookChain(boom, sink).BeforeHandle(context.Background(), "bars", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Equal(t, err, seen)
}

func TestMaxAgeHook(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	h := MaxAgeHook(time.Minute, func() time.Time { return now })

	_, _, _, err := h.BeforeHandle(context.Background(), "fills", kafka.Message{Time: now.Add(-30 * time.Second)}, nil)
	assert.NoError(t, err)

	_, _, _, err = h.BeforeHandle(context.Background(), "fills", kafka.Message{Time: now.Add(-2 * time.Minute)}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_STALE", herr.Code)
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "bars", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", ctx.Value(CtxTraceID))
	_, ok := ctx.Value(CtxStartTime).(time.Time)
	assert.True(t, ok)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}
