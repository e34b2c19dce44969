package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/ustreamer-go/ustreamer/internal/frame"
	"github.com/ustreamer-go/ustreamer/v4l2"
)

// buildBlankFrame renders a solid black JPEG at width×height and wraps it
// as a Frame flagged Online: false, for publication while the capture
// source has no signal. Built with Go's image/jpeg encoder the same way
// the encoder package's raw-to-JPEG conversion (convert.go) is.
func buildBlankFrame(width, height uint32) (*frame.Frame, error) {
	img := image.NewGray(image.Rect(0, 0, int(width), int(height)))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("pipeline: encode blank frame: %w", err)
	}

	f := frame.New()
	f.Set(buf.Bytes())
	f.Width = width
	f.Height = height
	f.Format = v4l2.PixelFmtJPEG
	f.Stride = 0
	f.Online = false
	f.Key = true
	f.GrabTimestamp = time.Now()
	f.EncodeBeginTimestamp = f.GrabTimestamp
	f.EncodeEndTimestamp = f.GrabTimestamp
	return f, nil
}
