package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

type fakeSource struct {
	f         *frame.Frame
	online    bool
	fps       float64
	dropped   uint64
	exposedAt time.Time
}

func (s *fakeSource) Get() (*frame.Frame, bool, float64, uint64, time.Time) {
	return s.f, s.online, s.fps, s.dropped, s.exposedAt
}

func newTestServer(src Source, opts Options) *Server {
	opts.Logger = zerolog.Nop()
	return New(src, opts)
}

func TestIndexServesWithoutAuth(t *testing.T) {
	s := newTestServer(&fakeSource{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/stream")
}

func TestAuthMiddlewareRejectsMissingCredentials(t *testing.T) {
	s := newTestServer(&fakeSource{}, Options{User: "admin", Passwd: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsCorrectCredentials(t *testing.T) {
	s := newTestServer(&fakeSource{online: true}, Options{User: "admin", Passwd: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotReturns503WithoutFrame(t *testing.T) {
	s := newTestServer(&fakeSource{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotServesFrameBytes(t *testing.T) {
	f := &frame.Frame{Data: []byte{0xFF, 0xD8, 0xFF}, Width: 640, Height: 480}
	s := newTestServer(&fakeSource{f: f, online: true, exposedAt: time.Now()}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.Data, rec.Body.Bytes())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "640", rec.Header().Get("X-UStreamer-Width"))
}

func TestStateReportsClientCount(t *testing.T) {
	s := newTestServer(&fakeSource{online: true, fps: 30}, Options{})
	s.clients["a"] = newStreamClient(false, false, false)
	s.clients["b"] = newStreamClient(false, false, false)

	assert.EqualValues(t, 2, s.ClientCount())

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clients":[`)
}

func TestClientShouldSendDropsIdenticalFrames(t *testing.T) {
	c := newStreamClient(false, false, false)
	f1 := &frame.Frame{Data: []byte{1, 2, 3}}
	f2 := &frame.Frame{Data: []byte{1, 2, 3}}

	send, dual := c.shouldSend(f1, 2)
	assert.True(t, send)
	assert.False(t, dual)
	c.markSent(f1)

	send, _ = c.shouldSend(f2, 2)
	assert.False(t, send, "identical frame should be suppressed")
}

func TestClientDualFinalFramesAfterDropRun(t *testing.T) {
	c := newStreamClient(false, false, true)
	same := &frame.Frame{Data: []byte{9, 9}}
	fresh := &frame.Frame{Data: []byte{1, 2}}

	send, _ := c.shouldSend(same, 3)
	require.True(t, send)
	c.markSent(same)

	send, _ = c.shouldSend(same, 3)
	require.False(t, send)

	send, dual := c.shouldSend(fresh, 3)
	assert.True(t, send)
	assert.True(t, dual, "a fresh frame after a drop run should trigger the dual-send workaround")
}

func TestHandleStreamWritesMultipartFrame(t *testing.T) {
	f := &frame.Frame{Data: []byte{0xFF, 0xD8, 0xFF}, Width: 320, Height: 240}
	s := newTestServer(&fakeSource{f: f, online: true, exposedAt: time.Now()}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "multipart/x-mixed-replace")
	assert.Contains(t, rec.Body.String(), "Content-Type: image/jpeg")
}

func TestListenAndServeShutsDownOnContextCancel(t *testing.T) {
	s := newTestServer(&fakeSource{}, Options{Host: "127.0.0.1", Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not shut down in time")
	}
}
