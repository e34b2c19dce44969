package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srv, err := Open(dir, "test-stream", 4096)
	require.NoError(t, err)
	defer srv.Close()

	client, err := OpenClient(dir, "test-stream")
	require.NoError(t, err)
	defer client.Close()

	f := &frame.Frame{
		Data:          []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9},
		Width:         640,
		Height:        480,
		Format:        1,
		Online:        true,
		Key:           true,
		GrabTimestamp: time.Now(),
	}
	require.NoError(t, srv.Put(f))

	out := frame.New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Get(ctx, out, time.Second))

	assert.Equal(t, f.Data, out.Data)
	assert.Equal(t, f.Width, out.Width)
	assert.True(t, out.Online)
	assert.True(t, out.Key)
}

func TestGetReturnsNoUpdateWithoutAPublish(t *testing.T) {
	dir := t.TempDir()
	srv, err := Open(dir, "idle-stream", 4096)
	require.NoError(t, err)
	defer srv.Close()

	client, err := OpenClient(dir, "idle-stream")
	require.NoError(t, err)
	defer client.Close()

	out := frame.New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = client.Get(ctx, out, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoUpdate)
}

func TestPutRejectsOversizedFrame(t *testing.T) {
	dir := t.TempDir()
	srv, err := Open(dir, "small-stream", 8)
	require.NoError(t, err)
	defer srv.Close()

	err = srv.Put(&frame.Frame{Data: make([]byte, 64)})
	assert.Error(t, err)
}

func TestCheckDemandRequiresRecentClientAndData(t *testing.T) {
	dir := t.TempDir()
	srv, err := Open(dir, "demand-stream", 4096)
	require.NoError(t, err)
	defer srv.Close()

	assert.False(t, srv.CheckDemand(100, time.Second), "no client has ever ticked yet")

	srv.r.store(offLastClientTsNanos, uint64(time.Now().UnixNano()))
	assert.True(t, srv.CheckDemand(100, time.Second))
	assert.False(t, srv.CheckDemand(0, time.Second), "empty candidate frame should not warrant publishing")
}

func TestRequestKeyFrameSetsAndClears(t *testing.T) {
	dir := t.TempDir()
	srv, err := Open(dir, "key-stream", 4096)
	require.NoError(t, err)
	defer srv.Close()

	client, err := OpenClient(dir, "key-stream")
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, srv.KeyRequested())
	client.RequestKeyFrame()
	assert.True(t, srv.KeyRequested())
	srv.clearKeyRequested()
	assert.False(t, srv.KeyRequested())
}
