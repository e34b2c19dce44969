// Package capture provides a high-level, idiomatic Go interface for Video4Linux2 (V4L2) devices.
// It abstracts the complexity of the low-level v4l2 binding package and provides a
// synchronous grab/release interface for video capture and streaming.
//
// # Overview
//
// The capture package is the device-level API of this module over the v4l2 package.
// It handles device initialization, configuration, buffer management, and streaming,
// allowing developers to focus on processing video frames rather than managing low-level details.
//
// # Key Features
//
//   - Simple device open/close lifecycle management
//   - Automatic capability detection and configuration
//   - Zero-copy frame capture using memory-mapped buffers
//   - Synchronous Grab/Release frame delivery
//   - Context-based cancellation of Grab
//   - Flexible configuration through functional options
//
// # Basic Usage
//
// Opening and using a video device typically follows this pattern:
//
//	// Open the device
//	dev, err := capture.Open("/dev/video0",
//	    capture.WithBufferSize(4),
//	    capture.WithPixFormat(v4l2.PixFormat{
//	        Width: 1920,
//	        Height: 1080,
//	        PixelFormat: v4l2.PixelFmtMJPEG,
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	// Start streaming
//	if err := dev.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Stop()
//
//	// Capture frames
//	ctx := context.Background()
//	for {
//	    frame, err := dev.Grab(ctx)
//	    if err != nil {
//	        break
//	    }
//	    // Process frame data, then hand the buffer back to the driver
//	    processFrame(frame.Data)
//	    frame.Release()
//	}
//
// # Device Discovery
//
// Devices are typically found at /dev/video* paths. You can enumerate available devices:
//
//	paths, err := capture.GetAllDevicePaths()
//	for _, p := range paths {
//	    fmt.Printf("Found device: %s\n", p)
//	}
//
// # Configuration Options
//
// The package provides several configuration options through the functional options pattern:
//
//   - WithBufferSize: Set the number of buffers for streaming (affects latency vs. reliability)
//   - WithPixFormat: Configure pixel format, resolution, and color space
//   - WithFPS: Set the desired frame rate
//   - WithMinFrameSize: Reject frames smaller than a byte count
//   - WithPersistent: Report a Grab wait timeout as ErrorNoData instead of ErrorRestartRequired
//   - WithDVTimings: Negotiate DV timings and subscribe to source-change events
//   - WithIOType: Accepted, but Open always selects memory-mapped I/O
//
// # Pixel Formats
//
// Common pixel formats include:
//
//   - PixelFmtMJPEG: Motion JPEG (compressed, widely supported)
//   - PixelFmtYUYV: YUV 4:2:2 (uncompressed, good quality)
//   - PixelFmtH264: H.264 video (compressed, efficient)
//   - PixelFmtRGB24: RGB (uncompressed, direct use)
//
// # Error Handling
//
// The package returns detailed errors that can be inspected:
//
//	if errors.Is(err, v4l2.ErrorUnsupportedFeature) {
//	    // Handle unsupported feature
//	}
//
// # Performance Considerations
//
//   - Use memory-mapped I/O for best performance (default)
//   - Configure appropriate buffer count (2-4 buffers typical)
//   - Process frames quickly to avoid drops
//   - Consider frame format impact (MJPEG vs. raw formats)
//
// # Limitations
//
//   - Linux only (V4L2 is Linux-specific)
//   - Requires kernel 5.10 or later
//   - Currently supports only memory-mapped I/O
//   - Single-consumer model (one goroutine calling Grab)
//
// # Thread Safety
//
// A Device guards its streaming state with an internal mutex. A Frame is not
// safe for concurrent use, and its Data must not be read after Release.
package capture
