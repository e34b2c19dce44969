// Package config loads the streamer's options the way helixml/helix loads
// its server config — envconfig first, for container/systemd-friendly
// defaults — then layers cobra/pflag CLI flags on top so a flag passed on
// the command line always wins over its environment default.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
)

// Config is the full option set from spec.md §6's CLI table.
type Config struct {
	Device     string `envconfig:"USTREAMER_DEVICE" default:"/dev/video0"`
	Width      uint32 `envconfig:"USTREAMER_WIDTH" default:"640"`
	Height     uint32 `envconfig:"USTREAMER_HEIGHT" default:"480"`
	Format     string `envconfig:"USTREAMER_FORMAT" default:"MJPEG"`
	DesiredFPS uint32 `envconfig:"USTREAMER_DESIRED_FPS" default:"30"`

	Buffers uint32 `envconfig:"USTREAMER_BUFFERS" default:"4"`
	Workers int    `envconfig:"USTREAMER_WORKERS" default:"2"`

	Encoder      string `envconfig:"USTREAMER_ENCODER" default:"CPU"`
	Quality      int    `envconfig:"USTREAMER_QUALITY" default:"80"`
	H264Bitrate  int    `envconfig:"USTREAMER_H264_BITRATE" default:"5000"`
	H264GOP      int    `envconfig:"USTREAMER_H264_GOP" default:"30"`

	DVTimings  bool `envconfig:"USTREAMER_DV_TIMINGS" default:"false"`
	Persistent bool `envconfig:"USTREAMER_PERSISTENT" default:"false"`

	MinFrameSize int `envconfig:"USTREAMER_MIN_FRAME_SIZE" default:"128"`

	Host     string `envconfig:"USTREAMER_HOST" default:"0.0.0.0"`
	Port     int    `envconfig:"USTREAMER_PORT" default:"8080"`
	Unix     string `envconfig:"USTREAMER_UNIX"`
	UnixRM   bool   `envconfig:"USTREAMER_UNIX_RM" default:"false"`
	UnixMode uint32 `envconfig:"USTREAMER_UNIX_MODE" default:"660"`

	User   string `envconfig:"USTREAMER_USER"`
	Passwd string `envconfig:"USTREAMER_PASSWD"`

	DropSameFrames int  `envconfig:"USTREAMER_DROP_SAME_FRAMES" default:"0"`
	Slowdown       bool `envconfig:"USTREAMER_SLOWDOWN" default:"false"`

	Sink     string `envconfig:"USTREAMER_SINK"`
	SinkMode uint32 `envconfig:"USTREAMER_SINK_MODE" default:"660"`
	SinkRM   bool   `envconfig:"USTREAMER_SINK_RM" default:"false"`
	H264Sink string `envconfig:"USTREAMER_H264_SINK"`

	DRMDevice string `envconfig:"USTREAMER_DRM_DEVICE"`

	ErrorDelay             time.Duration `envconfig:"USTREAMER_ERROR_DELAY" default:"1s"`
	GrabTimeout            time.Duration `envconfig:"USTREAMER_GRAB_TIMEOUT" default:"2s"`
	LastFrameFreezeTimeout time.Duration `envconfig:"USTREAMER_LAST_FRAME_FREEZE_TIMEOUT" default:"0s"`

	LogLevel  string `envconfig:"USTREAMER_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"USTREAMER_LOG_FORMAT" default:"console"`
}

// Load reads environment-variable defaults, the way
// config.LoadServerConfig does in the teacher's pack.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags registers pflag flags for every option in cfg, using the
// env-derived values already in cfg as each flag's default so that an
// unset flag falls back to the environment rather than silently resetting
// to a different default.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Device, "device", c.Device, "V4L2 capture device node")
	fs.Uint32Var(&c.Width, "width", c.Width, "requested capture width")
	fs.Uint32Var(&c.Height, "height", c.Height, "requested capture height")
	fs.StringVar(&c.Format, "format", c.Format, "requested pixel format: YUYV|UYVY|RGB565|RGB24|MJPEG|JPEG")
	fs.Uint32Var(&c.DesiredFPS, "desired-fps", c.DesiredFPS, "driver FPS hint")

	fs.Uint32Var(&c.Buffers, "buffers", c.Buffers, "capture buffer pool size")
	fs.IntVar(&c.Workers, "workers", c.Workers, "encoder worker pool size")

	fs.StringVar(&c.Encoder, "encoder", c.Encoder, "encoder backend: CPU|HW|M2M-VIDEO|M2M-IMAGE|NOOP")
	fs.IntVar(&c.Quality, "quality", c.Quality, "JPEG quality 1..100")
	fs.IntVar(&c.H264Bitrate, "h264-bitrate", c.H264Bitrate, "H.264 bitrate in Kbps")
	fs.IntVar(&c.H264GOP, "h264-gop", c.H264GOP, "H.264 group-of-pictures length")

	fs.BoolVar(&c.DVTimings, "dv-timings", c.DVTimings, "negotiate DV timings and subscribe to source-change events")
	fs.BoolVar(&c.Persistent, "persistent", c.Persistent, "keep the device open across a no-data timeout")

	fs.IntVar(&c.MinFrameSize, "min-frame-size", c.MinFrameSize, "drop frames smaller than this many bytes")

	fs.StringVar(&c.Host, "host", c.Host, "HTTP bind host")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP bind port")
	fs.StringVar(&c.Unix, "unix", c.Unix, "HTTP UNIX socket path, takes precedence over host:port")
	fs.BoolVar(&c.UnixRM, "unix-rm", c.UnixRM, "remove the UNIX socket path before binding (parsed, not applied)")
	fs.Uint32Var(&c.UnixMode, "unix-mode", c.UnixMode, "UNIX socket permission bits, octal (parsed, not applied)")

	fs.StringVar(&c.User, "user", c.User, "HTTP Basic auth username")
	fs.StringVar(&c.Passwd, "passwd", c.Passwd, "HTTP Basic auth password")

	fs.IntVar(&c.DropSameFrames, "drop-same-frames", c.DropSameFrames, "max consecutive identical frames to suppress per client")
	fs.BoolVar(&c.Slowdown, "slowdown", c.Slowdown, "drop to 1 fps while no HTTP clients are attached")

	fs.StringVar(&c.Sink, "sink", c.Sink, "JPEG shared-memory sink name")
	fs.Uint32Var(&c.SinkMode, "sink-mode", c.SinkMode, "sink permission bits, octal (parsed, not applied; the sink is created 0666)")
	fs.BoolVar(&c.SinkRM, "sink-rm", c.SinkRM, "unlink the sink on shutdown (parsed, not applied)")
	fs.StringVar(&c.H264Sink, "h264-sink", c.H264Sink, "H.264 shared-memory sink name (parsed, not applied)")

	fs.StringVar(&c.DRMDevice, "drm-device", c.DRMDevice, "optional DRM node to drive as an output sink")

	fs.DurationVar(&c.ErrorDelay, "error-delay", c.ErrorDelay, "sleep between capture session retries")
	fs.DurationVar(&c.GrabTimeout, "grab-timeout", c.GrabTimeout, "per-frame capture timeout")
	fs.DurationVar(&c.LastFrameFreezeTimeout, "last-frame-timeout", c.LastFrameFreezeTimeout,
		"freeze on the last good frame for this long before switching to the blank stub (0 disables)")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace|debug|info|warn|error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "console|json")
}
