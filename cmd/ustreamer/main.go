// Command ustreamer runs the capture→encode→expose pipeline and serves it
// over HTTP, an optional memory sink and an optional DRM output, per
// spec.md's thread inventory: one pipeline thread, N worker threads, one
// HTTP thread and an optional DRM follower, joined on shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ustreamer-go/ustreamer/capture"
	"github.com/ustreamer-go/ustreamer/internal/config"
	"github.com/ustreamer-go/ustreamer/internal/drmsink"
	"github.com/ustreamer-go/ustreamer/internal/encoder"
	"github.com/ustreamer-go/ustreamer/internal/httpserver"
	"github.com/ustreamer-go/ustreamer/internal/pipeline"
	"github.com/ustreamer-go/ustreamer/internal/sink"
	"github.com/ustreamer-go/ustreamer/internal/ulog"
	"github.com/ustreamer-go/ustreamer/v4l2"
)

// Exit codes from spec.md §6.
const (
	exitOK        = 0
	exitArgError  = 1
	exitInitError = 2
	exitFatal     = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ustreamer:", err)
		return exitArgError
	}

	root := &cobra.Command{
		Use:           "ustreamer",
		Short:         "Low-latency MJPEG/H.264 V4L2 streamer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.BindFlags(root.Flags())

	code := exitOK
	root.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := serve(cmd.Context(), cfg)
		code = c
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		if code == exitOK {
			code = exitFatal
		}
		fmt.Fprintln(os.Stderr, "ustreamer:", err)
	}
	return code
}

func serve(ctx context.Context, cfg *config.Config) (int, error) {
	log := ulog.New(cfg.LogLevel, cfg.LogFormat)

	pixFmt, err := parsePixelFormat(cfg.Format)
	if err != nil {
		return exitArgError, err
	}
	backend, err := encoder.ParseBackend(cfg.Encoder)
	if err != nil {
		return exitArgError, err
	}

	deviceOpts := []capture.Option{
		capture.WithIOType(v4l2.IOTypeMMAP),
		capture.WithVideoCaptureEnabled(),
		capture.WithPixFormat(v4l2.PixFormat{Width: cfg.Width, Height: cfg.Height, PixelFormat: pixFmt}),
		capture.WithBufferSize(cfg.Buffers),
		capture.WithFPS(cfg.DesiredFPS),
		capture.WithMinFrameSize(cfg.MinFrameSize),
		capture.WithPersistent(cfg.Persistent),
		capture.WithDVTimings(cfg.DVTimings),
	}

	h264Opts := encoder.H264Options{Bitrate: cfg.H264Bitrate, GOP: cfg.H264GOP}
	newBackend := func(workerIndex int) *encoder.Dispatcher {
		return encoder.New(backend, cfg.Quality, h264Opts)
	}

	pl := pipeline.New(pipeline.Options{
		DevicePath:     cfg.Device,
		DeviceOpts:     deviceOpts,
		Workers:        cfg.Workers,
		NewBackend:     newBackend,
		ErrorDelay:     cfg.ErrorDelay,
		GrabTimeout:    cfg.GrabTimeout,
		MinFrameSize:   cfg.MinFrameSize,
		FallbackWidth:  cfg.Width,
		FallbackHeight: cfg.Height,
		Slowdown:       cfg.Slowdown,
		DesiredFPS:     cfg.DesiredFPS,
		Logger:         log,
	})

	srv := httpserver.New(pl.Exposed(), httpserver.Options{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		Unix:                   cfg.Unix,
		User:                   cfg.User,
		Passwd:                 cfg.Passwd,
		DropSameFrames:         cfg.DropSameFrames,
		LastFrameFreezeTimeout: cfg.LastFrameFreezeTimeout,
		Logger:                 log,
	})

	var memSink *sink.Region
	if cfg.Sink != "" {
		memSink, err = sink.Open("", cfg.Sink, int(cfg.Width)*int(cfg.Height)*4)
		if err != nil {
			return exitInitError, fmt.Errorf("open memory sink: %w", err)
		}
		defer memSink.Close()
	}

	var drmOut *drmsink.Output
	if cfg.DRMDevice != "" {
		drmOut, err = drmsink.Open(cfg.DRMDevice, cfg.Width, cfg.Height)
		if err != nil {
			log.Warn().Err(err).Msg("DRM output unavailable, continuing without it")
		} else {
			defer drmOut.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pl.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error {
		clientSync(gctx, pl, srv)
		return nil
	})
	if memSink != nil {
		g.Go(func() error {
			publishToSink(gctx, pl, memSink)
			return nil
		})
	}
	if drmOut != nil {
		g.Go(func() error {
			publishToDRM(gctx, pl, drmOut)
			return nil
		})
	}

	var result *multierror.Error
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		result = multierror.Append(result, err)
	}
	if result.ErrorOrNil() != nil {
		return exitFatal, result.ErrorOrNil()
	}
	return exitOK, nil
}

// clientSync feeds the HTTP server's attached-client count into the
// pipeline so its slowdown logic (spec §4.5) knows when nobody is
// watching.
func clientSync(ctx context.Context, pl *pipeline.Pipeline, srv *httpserver.Server) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.SetClientCount(srv.ClientCount())
		}
	}
}

// publishToSink mirrors the exposed frame into the memory sink whenever it
// changes, skipping publication when server_check (spec §4.7) finds no
// recent client demand.
func publishToSink(ctx context.Context, pl *pipeline.Pipeline, region *sink.Region) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var lastExposedAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f, _, _, _, exposedAt := pl.Exposed().Get()
		if f == nil || exposedAt.Equal(lastExposedAt) {
			continue
		}
		lastExposedAt = exposedAt

		if !region.CheckDemand(len(f.Data), 10*time.Second) {
			continue
		}
		if err := region.Put(f); err != nil && err != sink.ErrBusy {
			return
		}
	}
}

// publishToDRM flips the exposed frame onto the DRM output. DMA-BUF import
// is unimplemented (see drmsink.ErrDMABufUnsupported), so only the
// no-signal/unsupported-resolution stub banners are ever drawn here; a
// genuine live composite would need a DMA-BUF capable encoder path this
// module does not build.
func publishToDRM(ctx context.Context, pl *pipeline.Pipeline, out *drmsink.Output) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, online, _, _, _ := pl.Exposed().Get()
		text := "NO SIGNAL"
		if online {
			text = "ONLINE IS ACTIVE"
		}
		_ = out.ExposeStub(text)
	}
}

func parsePixelFormat(name string) (v4l2.FourCCType, error) {
	switch name {
	case "YUYV":
		return v4l2.PixelFmtYUYV, nil
	case "UYVY":
		return v4l2.PixelFmtUYVY, nil
	case "RGB565":
		return v4l2.PixelFmtRGB565, nil
	case "RGB24":
		return v4l2.PixelFmtRGB24, nil
	case "MJPEG":
		return v4l2.PixelFmtMJPEG, nil
	case "JPEG":
		return v4l2.PixelFmtJPEG, nil
	default:
		return 0, fmt.Errorf("unsupported --format %q", name)
	}
}
