package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type stateResponse struct {
	Source struct {
		Resolution string  `json:"resolution"`
		Online     bool    `json:"online"`
		FPS        float64 `json:"captured_fps"`
	} `json:"source"`
	DroppedCount uint64        `json:"dropped_count"`
	ExposedAt    time.Time     `json:"exposed_at"`
	Clients      []clientStats `json:"clients"`
}

type clientStats struct {
	ID  string  `json:"id"`
	FPS float64 `json:"fps"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	f, online, fps, dropped, exposedAt := s.source.Get()

	var resp stateResponse
	if f != nil && f.Width > 0 && f.Height > 0 {
		resp.Source.Resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	resp.Source.Online = online
	resp.Source.FPS = fps
	resp.DroppedCount = dropped
	resp.ExposedAt = exposedAt

	s.clientsMu.Lock()
	for _, c := range s.clients {
		resp.Clients = append(resp.Clients, clientStats{ID: c.id, FPS: c.fps()})
	}
	s.clientsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}
