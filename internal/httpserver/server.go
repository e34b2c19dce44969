// Package httpserver implements the stream pipeline's HTTP front door:
// "/", "/state", "/snapshot" and "/stream" (multipart/x-mixed-replace),
// with HTTP Basic auth and per-client drop-same-frames bookkeeping.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ustreamer-go/ustreamer/internal/frame"
)

// Source abstracts whatever publishes the exposed frame, so the server can
// be tested without a live pipeline.
type Source interface {
	Get() (f *frame.Frame, online bool, fps float64, dropped uint64, exposedAt time.Time)
}

// Options configures a Server.
type Options struct {
	Host string
	Port int
	Unix string // optional UNIX-domain socket path; takes precedence over Host/Port

	User   string
	Passwd string

	DropSameFrames int // max consecutive identical exposures to suppress

	// LastFrameFreezeTimeout, when non-zero, makes a stream keep repeating
	// its last good frame for this long after the source goes offline
	// before falling back to the blank/stub frame. Zero (the default)
	// switches to the stub immediately, matching spec.md's baseline
	// behavior; see DESIGN.md for the open-question rationale.
	LastFrameFreezeTimeout time.Duration

	Logger zerolog.Logger
}

// Server is the event-loop-driven HTTP front door from spec §4.6. It is
// built on net/http's own reactor rather than a hand-rolled one — idiomatic
// Go gets the readiness-based dispatch spec.md describes for free from the
// stdlib server, so there is no separate reactor loop to write.
type Server struct {
	opts   Options
	log    zerolog.Logger
	source Source

	router *mux.Router
	srv    *http.Server

	clientsMu sync.Mutex
	clients   map[string]*streamClient

	basicAuthHeader string
}

// New builds a Server that reads frames from source. Call ListenAndServe
// to start it.
func New(source Source, opts Options) *Server {
	s := &Server{
		opts:    opts,
		log:     opts.Logger.With().Str("component", "http").Logger(),
		source:  source,
		clients: make(map[string]*streamClient),
	}
	if opts.User != "" {
		s.basicAuthHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(opts.User+":"+opts.Passwd))
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet, http.MethodHead)
	r.Use(s.authMiddleware)
	s.router = r

	return s
}

// ClientCount reports the number of currently attached /stream clients,
// feeding the pipeline's slowdown decision.
func (s *Server) ClientCount() int64 {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return int64(len(s.clients))
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.basicAuthHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.basicAuthHeader)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="ustreamer"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe binds and serves until ctx is cancelled, honoring a UNIX
// socket path when configured ahead of host:port, as spec.md §4.6 requires.
// A bind failure is fatal to the process, as spec.md §7 prescribes.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var listener net.Listener
	var err error

	if s.opts.Unix != "" {
		listener, err = net.Listen("unix", s.opts.Unix)
	} else {
		addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}

	s.srv = &http.Server{Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpserver: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpserver: serve: %w", err)
	}
}
