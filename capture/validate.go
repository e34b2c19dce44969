package capture

import "github.com/ustreamer-go/ustreamer/v4l2"

// ValidateFrame applies the spec's per-buffer acceptance check: a filled
// buffer must carry at least minSize bytes, and if format is a JPEG-coded
// format (MJPEG or still JPEG) its payload must also start with a JPEG SOI
// marker (0xFFD8) and end with a recognized EOI marker (0xFFD9, or the
// 0xD900/0x0000 padding some MJPEG webcams trail their frames with).
// Buffers failing this check are truncated/corrupt captures and must be
// requeued rather than handed to a caller.
func ValidateFrame(data []byte, format v4l2.FourCCType, minSize int) bool {
	if len(data) < minSize {
		return false
	}
	switch format {
	case v4l2.PixelFmtMJPEG, v4l2.PixelFmtJPEG:
		return validJPEGMarkers(data)
	default:
		return true
	}
}

// validJPEGMarkers reports whether data looks like a complete JPEG frame:
// a two-byte SOI header and one of the EOI trailer variants uStreamer's
// source devices are known to emit.
func validJPEGMarkers(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return false
	}
	n := len(data)
	last2 := data[n-2:]
	switch {
	case last2[0] == 0xFF && last2[1] == 0xD9:
		return true
	case last2[0] == 0xD9 && last2[1] == 0x00:
		return true
	case last2[0] == 0x00 && last2[1] == 0x00:
		return true
	default:
		return false
	}
}
