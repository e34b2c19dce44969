package drmsink

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// State is the DRM output's lifecycle, per spec.md §4.8: CLOSED -> OK ->
// CLOSED, with a transient NO_DISPLAY while the connector reports
// disconnected.
type State int

const (
	StateClosed State = iota
	StateOK
	StateNoDisplay
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateNoDisplay:
		return "NO_DISPLAY"
	default:
		return "CLOSED"
	}
}

// ErrDMABufUnsupported is returned by ExposeDMA: importing a capture
// DMA-BUF as a DRM framebuffer needs PRIME-import (DRM_IOCTL_PRIME_FD_TO_HANDLE)
// plus GBM/modifier negotiation that appears nowhere in the retrieval
// pack; only the dumb-buffer path below is implemented, per DESIGN.md.
var ErrDMABufUnsupported = errors.New("drmsink: DMA-BUF import is not implemented")

// Output is a DRM/KMS sink: one connector+CRTC pair, driven by dumb
// buffers, with a drawn fallback for no-signal / unsupported-mode states.
type Output struct {
	card        *os.File
	connectorID uint32
	crtcID      uint32
	sysfsStatus string

	state State

	fbID    uint32
	handle  uint32
	pitch   uint32
	size    uint64
	mapping []byte
	mode    drmModeModeInfo
	width   uint32
	height  uint32
}

// Open discovers a connector/CRTC on the given DRM node (e.g.
// /dev/dri/card0) and picks a mode for (wantWidth, wantHeight) following
// spec.md §4.8's preference order: exact match, then equal width with a
// smaller height, then the connector's first (preferred) mode.
func Open(devicePath string, wantWidth, wantHeight uint32) (*Output, error) {
	card, err := openCard(devicePath)
	if err != nil {
		return nil, err
	}

	crtcIDs, connectorIDs, err := getResources(card)
	if err != nil {
		card.Close()
		return nil, err
	}

	for _, connID := range connectorIDs {
		conn, modes, err := getConnector(card, connID)
		if err != nil || conn.Connection != connectorStatusConnected || len(modes) == 0 {
			continue
		}

		mode := pickMode(modes, wantWidth, wantHeight)
		crtcID := crtcIDs[0]

		o := &Output{
			card:        card,
			connectorID: connID,
			crtcID:      crtcID,
			sysfsStatus: sysfsStatusPath(connID),
			mode:        mode,
			width:       uint32(mode.Hdisplay),
			height:      uint32(mode.Vdisplay),
		}
		if err := o.allocateFramebuffer(); err != nil {
			card.Close()
			return nil, err
		}
		o.state = StateOK
		return o, nil
	}

	card.Close()
	return nil, fmt.Errorf("drmsink: no connected output found on %s", devicePath)
}

// pickMode implements the exact-match / equal-width-smaller-height /
// first-mode fallback chain from spec.md §4.8.
func pickMode(modes []drmModeModeInfo, width, height uint32) drmModeModeInfo {
	for _, m := range modes {
		if uint32(m.Hdisplay) == width && uint32(m.Vdisplay) == height {
			return m
		}
	}
	var best *drmModeModeInfo
	for i, m := range modes {
		if uint32(m.Hdisplay) == width && uint32(m.Vdisplay) < height {
			if best == nil || m.Vdisplay > best.Vdisplay {
				best = &modes[i]
			}
		}
	}
	if best != nil {
		return *best
	}
	return modes[0]
}

func (o *Output) allocateFramebuffer() error {
	handle, pitch, size, err := createDumbBuffer(o.card, o.width, o.height)
	if err != nil {
		return err
	}
	fbID, err := addFramebuffer(o.card, o.width, o.height, pitch, handle)
	if err != nil {
		destroyDumbBuffer(o.card, handle)
		return err
	}
	mapping, err := mapDumbBuffer(o.card, handle, size)
	if err != nil {
		removeFramebuffer(o.card, fbID)
		destroyDumbBuffer(o.card, handle)
		return err
	}

	o.handle, o.pitch, o.size, o.fbID, o.mapping = handle, pitch, size, fbID, mapping
	return setCrtc(o.card, o.crtcID, o.fbID, o.connectorID, o.mode)
}

// State returns the output's current lifecycle state, re-checking the
// connector's sysfs status byte for the NO_DISPLAY transient.
func (o *Output) State() State {
	if o.state == StateClosed {
		return StateClosed
	}
	if connectorDisconnected(o.sysfsStatus) {
		o.state = StateNoDisplay
	} else {
		o.state = StateOK
	}
	return o.state
}

func connectorDisconnected(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false
	}
	return data[0] == 'd'
}

func sysfsStatusPath(connectorID uint32) string {
	return fmt.Sprintf("/sys/class/drm/card0-%d/status", connectorID)
}

// ExposeStub draws a text banner ("NO SIGNAL", "UNSUPPORTED RESOLUTION
// ...", "ONLINE IS ACTIVE") into the dumb buffer and flips it.
func (o *Output) ExposeStub(text string) error {
	if o.state == StateClosed {
		return fmt.Errorf("drmsink: output is closed")
	}
	drawBanner(o.mapping, int(o.width), int(o.height), int(o.pitch), text)
	return pageFlip(o.card, o.crtcID, o.fbID)
}

// ExposeDMA would flip an imported capture DMA-BUF; see ErrDMABufUnsupported.
func (o *Output) ExposeDMA(_ int) error {
	return ErrDMABufUnsupported
}

// WaitForVSync blocks on the card's pageflip-event fd until the previously
// requested flip completes or timeout elapses.
func (o *Output) WaitForVSync(timeout time.Duration) error {
	fd := int(o.card.Fd())
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	n, err := unix.Poll(pfd, int(timeout/time.Millisecond))
	if err != nil {
		return fmt.Errorf("drmsink: poll: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("drmsink: vsync wait timed out")
	}

	buf := make([]byte, 1024)
	_, err = unix.Read(fd, buf)
	return err
}

// Close tears down the framebuffer and dumb buffer and releases the card.
func (o *Output) Close() error {
	if o.state == StateClosed {
		return nil
	}
	o.state = StateClosed

	var err error
	if o.mapping != nil {
		if uerr := unix.Munmap(o.mapping); uerr != nil {
			err = uerr
		}
		o.mapping = nil
	}
	if o.fbID != 0 {
		removeFramebuffer(o.card, o.fbID)
	}
	if o.handle != 0 {
		destroyDumbBuffer(o.card, o.handle)
	}
	if cerr := o.card.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
