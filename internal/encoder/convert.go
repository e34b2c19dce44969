package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/ustreamer-go/ustreamer/v4l2"
)

// yuyvToJPEG converts a YUYV422 (4:2:2) raw frame to JPEG using Go's built-in
// YCbCr encoder, avoiding an intermediate RGB conversion.
func yuyvToJPEG(width, height int, src []byte, quality int) ([]byte, error) {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	need := width * height * 2
	if len(src) < need {
		return nil, fmt.Errorf("yuyv to jpeg: short frame: have %d bytes, want %d", len(src), need)
	}

	pairs := width * height / 2
	for i := 0; i < pairs; i++ {
		o := i * 4
		y1, u, y2, v := src[o], src[o+1], src[o+2], src[o+3]
		img.Y[i*2] = y1
		img.Y[i*2+1] = y2
		img.Cb[i] = u
		img.Cr[i] = v
	}

	return encodeJPEG(img, quality)
}

// uyvyToJPEG converts a UYVY422 raw frame to JPEG, identical to YUYV but with
// luma/chroma byte order swapped within each 4-byte macropixel.
func uyvyToJPEG(width, height int, src []byte, quality int) ([]byte, error) {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	need := width * height * 2
	if len(src) < need {
		return nil, fmt.Errorf("uyvy to jpeg: short frame: have %d bytes, want %d", len(src), need)
	}

	pairs := width * height / 2
	for i := 0; i < pairs; i++ {
		o := i * 4
		u, y1, v, y2 := src[o], src[o+1], src[o+2], src[o+3]
		img.Y[i*2] = y1
		img.Y[i*2+1] = y2
		img.Cb[i] = u
		img.Cr[i] = v
	}

	return encodeJPEG(img, quality)
}

// rgb565ToJPEG unpacks 16-bit RGB565 pixels into an RGBA image before
// handing off to the stdlib JPEG encoder.
func rgb565ToJPEG(width, height int, src []byte, quality int) ([]byte, error) {
	need := width * height * 2
	if len(src) < need {
		return nil, fmt.Errorf("rgb565 to jpeg: short frame: have %d bytes, want %d", len(src), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		o := i * 2
		px := uint16(src[o]) | uint16(src[o+1])<<8
		r := uint8((px >> 11) & 0x1f)
		g := uint8((px >> 5) & 0x3f)
		b := uint8(px & 0x1f)
		img.Set(i%width, i/width, color.RGBA{
			R: (r << 3) | (r >> 2),
			G: (g << 2) | (g >> 4),
			B: (b << 3) | (b >> 2),
			A: 0xff,
		})
	}

	return encodeJPEG(img, quality)
}

// rgb24ToJPEG copies a packed 24-bit RGB raw frame into a newly allocated
// image.RGBA and encodes it to JPEG.
func rgb24ToJPEG(width, height int, src []byte, quality int) ([]byte, error) {
	need := width * height * 3
	if len(src) < need {
		return nil, fmt.Errorf("rgb24 to jpeg: short frame: have %d bytes, want %d", len(src), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		o := i * 3
		img.Set(i%width, i/width, color.RGBA{R: src[o], G: src[o+1], B: src[o+2], A: 0xff})
	}

	return encodeJPEG(img, quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// convertToJPEG dispatches to the converter for the given fourcc. Formats
// already in MJPEG/JPEG are passed through as-is by the caller and never
// reach this function.
func convertToJPEG(format uint32, width, height int, src []byte, quality int) ([]byte, error) {
	switch format {
	case v4l2.PixelFmtYUYV:
		return yuyvToJPEG(width, height, src, quality)
	case v4l2.PixelFmtUYVY:
		return uyvyToJPEG(width, height, src, quality)
	case v4l2.PixelFmtRGB565:
		return rgb565ToJPEG(width, height, src, quality)
	case v4l2.PixelFmtRGB24:
		return rgb24ToJPEG(width, height, src, quality)
	default:
		return nil, fmt.Errorf("jpeg encode: unsupported source format %#x", format)
	}
}
