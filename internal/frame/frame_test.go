package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGrowsAndCopies(t *testing.T) {
	f := New()
	f.Set([]byte("hello"))
	require.Equal(t, 5, f.Used())
	assert.Equal(t, "hello", string(f.Data))

	f.Set([]byte("hi"))
	assert.Equal(t, "hi", string(f.Data))
	assert.GreaterOrEqual(t, f.Allocated(), 5, "Realloc must never shrink the backing array")
}

func TestAppendGrowsBeyondCapacity(t *testing.T) {
	f := New()
	f.Realloc(4)
	f.Set([]byte("ab"))
	f.Append([]byte("cdef"))
	assert.Equal(t, "abcdef", string(f.Data))
}

func TestReallocIsNoopWhenAlreadyLargeEnough(t *testing.T) {
	f := New()
	f.Realloc(100)
	before := f.Allocated()
	f.Realloc(10)
	assert.Equal(t, before, f.Allocated())
}

func TestCompareIgnoringTimestamps(t *testing.T) {
	a := &Frame{Width: 640, Height: 480, Format: 1, Stride: 1280, Online: true}
	a.Set([]byte{1, 2, 3})
	a.GrabTimestamp = time.Now()

	b := &Frame{Width: 640, Height: 480, Format: 1, Stride: 1280, Online: true}
	b.Set([]byte{1, 2, 3})
	b.GrabTimestamp = time.Now().Add(time.Hour)

	assert.True(t, CompareIgnoringTimestamps(a, b))

	b.Key = true
	assert.False(t, CompareIgnoringTimestamps(a, b))
}

func TestGetPadding(t *testing.T) {
	f := &Frame{Width: 640, Stride: 1312}
	assert.Equal(t, uint32(32), f.GetPadding(2)) // 640*2 = 1280, stride 1312 → 32 pad

	f2 := &Frame{Width: 640, Stride: 1280}
	assert.Equal(t, uint32(0), f2.GetPadding(2))
}
