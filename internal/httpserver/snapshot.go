package httpserver

import (
	"fmt"
	"net/http"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	f, online, _, _, exposedAt := s.source.Get()
	if f == nil {
		http.Error(w, "no frame available yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(f.Data)))
	w.Header().Set("X-Timestamp", fmt.Sprintf("%d", exposedAt.Unix()))
	w.Header().Set("X-UStreamer-Online", fmt.Sprintf("%t", online))
	w.Header().Set("X-UStreamer-Width", fmt.Sprintf("%d", f.Width))
	w.Header().Set("X-UStreamer-Height", fmt.Sprintf("%d", f.Height))

	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(f.Data)
}
