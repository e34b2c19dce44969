package httpserver

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

// streamClient is the per-HTTP-stream state from spec §3: a stable UUID,
// the request's query-parameter options, drop-same-frames bookkeeping and
// a per-client FPS counter.
type streamClient struct {
	id string

	extraHeaders    bool
	advanceHeaders  bool
	dualFinalFrames bool

	lastSent         *frame.Frame
	consecutiveDrops int
	lastWasDrop      bool

	sentCount atomic.Int64
	startedAt time.Time
}

func newStreamClient(extraHeaders, advanceHeaders, dualFinalFrames bool) *streamClient {
	return &streamClient{
		id:              uuid.NewString(),
		extraHeaders:    extraHeaders,
		advanceHeaders:  advanceHeaders,
		dualFinalFrames: dualFinalFrames,
		startedAt:       time.Now(),
	}
}

func (c *streamClient) fps() float64 {
	elapsed := time.Since(c.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.sentCount.Load()) / elapsed
}

// shouldSend applies the drop-same-frames rule from spec §4.6: if f
// compares equal to the last frame sent to this client and fewer than max
// consecutive drops have happened, suppress it and bump the drop counter.
// It reports whether to send now, and whether this send should additionally
// repeat (dual_final_frames: the WebKit workaround that flushes a stalled
// buffer by resending the new frame once more after a run of drops).
func (c *streamClient) shouldSend(f *frame.Frame, maxDrops int) (send bool, dual bool) {
	if c.lastSent == nil {
		return true, false
	}

	if maxDrops > 0 && frame.CompareIgnoringTimestamps(f, c.lastSent) && c.consecutiveDrops < maxDrops {
		c.consecutiveDrops++
		c.lastWasDrop = true
		return false, false
	}

	dual = c.dualFinalFrames && c.lastWasDrop
	c.consecutiveDrops = 0
	c.lastWasDrop = false
	return true, dual
}

func (c *streamClient) markSent(f *frame.Frame) {
	c.lastSent = f
	c.sentCount.Add(1)
}
