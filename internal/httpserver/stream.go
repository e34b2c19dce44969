package httpserver

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

const streamBoundary = "boundarydonotcross"

// handleStream serves multipart/x-mixed-replace MJPEG, grounded on the
// mjpeg.Client/mjpeg.Stream technique in other_examples' Ch00k/kindavm
// mjpeg.go: a multipart.Writer over the hijacked-free http.ResponseWriter,
// one part per exposed frame, written until the client goes away.
//
// Query parameters, all optional: extra_headers (add X-UStreamer-* headers
// to every part), advance_headers (recorded on the client; parts are written
// the same way with or without it) and dual_final_frames
// (resend the first fresh frame after a run of suppressed duplicates, a
// workaround for WebKit's reluctance to redraw a stalled <img>).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	client := newStreamClient(
		q.Get("extra_headers") == "1",
		q.Get("advance_headers") == "1",
		q.Get("dual_final_frames") == "1",
	)

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.id)
		s.clientsMu.Unlock()
	}()

	s.log.Info().Str("client", client.id).Msg("stream client connected")
	defer s.log.Info().Str("client", client.id).Msg("stream client disconnected")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache, private, no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	mw := multipart.NewWriter(w)
	_ = mw.SetBoundary(streamBoundary)
	defer mw.Close()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastOnline *frame.Frame
	var offlineSince time.Time

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, online, _, _, exposedAt := s.source.Get()
		if f == nil {
			continue
		}
		if online {
			lastOnline, offlineSince = f, time.Time{}
		} else if lastOnline != nil && s.opts.LastFrameFreezeTimeout > 0 {
			if offlineSince.IsZero() {
				offlineSince = time.Now()
			}
			if time.Since(offlineSince) < s.opts.LastFrameFreezeTimeout {
				f = lastOnline
			}
		}

		send, dual := client.shouldSend(f, s.opts.DropSameFrames)
		if !send {
			continue
		}

		if err := s.writePart(mw, client, f, online, exposedAt); err != nil {
			return
		}
		client.markSent(f)

		if dual {
			if err := s.writePart(mw, client, f, online, exposedAt); err != nil {
				return
			}
		}

		flusher.Flush()
	}
}

func (s *Server) writePart(mw *multipart.Writer, c *streamClient, f *frame.Frame, online bool, exposedAt time.Time) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(f.Data)))
	header.Set("X-UStreamer-Online", fmt.Sprintf("%t", online))
	if c.extraHeaders {
		header.Set("X-Timestamp", fmt.Sprintf("%d", exposedAt.UnixNano()))
		header.Set("X-UStreamer-Width", strconv.FormatUint(uint64(f.Width), 10))
		header.Set("X-UStreamer-Height", strconv.FormatUint(uint64(f.Height), 10))
	}

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
