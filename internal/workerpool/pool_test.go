package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustreamer-go/ustreamer/internal/encoder"
	"github.com/ustreamer-go/ustreamer/internal/frame"
)

func newTestPool(n int) *Pool {
	return New(n, func(i int) *encoder.Dispatcher {
		return encoder.New(encoder.NOOP, 0, encoder.H264Options{})
	})
}

func TestSubmitAndConsumeFIFO(t *testing.T) {
	p := newTestPool(2)
	ctx := context.Background()

	src1 := &frame.Frame{}
	src1.Set([]byte{1})
	src2 := &frame.Frame{}
	src2.Set([]byte{2})

	require.NoError(t, p.Submit(ctx, Job{Src: src1}))
	require.NoError(t, p.Submit(ctx, Job{Src: src2}))

	r1, err := p.ConsumeOldest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, r1.Dest.Data)

	r2, err := p.ConsumeOldest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, r2.Dest.Data)
}

func TestSubmitBlocksWhenPoolFull(t *testing.T) {
	p := newTestPool(1)
	ctx := context.Background()

	src := &frame.Frame{}
	require.NoError(t, p.Submit(ctx, Job{Src: src}))

	ctxShort, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctxShort, Job{Src: src})
	assert.Error(t, err, "submit must block (and time out) when no worker is free")
}

func TestTryConsumeOldestIsFalseWhenNothingDispatched(t *testing.T) {
	p := newTestPool(2)
	_, ok := p.TryConsumeOldest()
	assert.False(t, ok)
}

func TestFluencyAdmitsFirstFrameThenGatesBursts(t *testing.T) {
	fc := NewFluencyController(2)
	now := time.Now()
	assert.True(t, fc.Admit(now), "first frame must always be admitted")

	fc.RecordDuration(100 * time.Millisecond)
	assert.False(t, fc.Admit(time.Now()), "a frame arriving immediately after a slow encode should be gated")
}
