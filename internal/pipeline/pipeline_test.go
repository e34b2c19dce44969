package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

func TestExposedFrameGetSet(t *testing.T) {
	e := &ExposedFrame{}
	f, online, fps, dropped, _ := e.Get()
	assert.Nil(t, f)
	assert.False(t, online)
	assert.Zero(t, fps)
	assert.Zero(t, dropped)

	fr := frame.New()
	fr.Set([]byte{1, 2, 3})
	e.set(fr, true)
	e.bumpDropped()
	e.setFPS(12.5)

	f2, online2, fps2, dropped2, _ := e.Get()
	assert.Equal(t, fr, f2)
	assert.True(t, online2)
	assert.Equal(t, 12.5, fps2)
	assert.Equal(t, uint64(1), dropped2)
}

func TestApplySlowdownNoopWithoutDevice(t *testing.T) {
	p := New(Options{Slowdown: true})
	// dev is nil until Run opens a capture session; applySlowdown must not
	// panic when called before that.
	p.applySlowdown()
}
