// Package drmsink implements the optional DRM output sink from spec
// §4.8: connector/CRTC discovery, a dumb-buffer framebuffer, pageflip and
// a drawn no-signal stub.
//
// The ioctl numbers and wire structs below are lifted directly from
// helixml/helix's api/pkg/drm package (ioctl_linux.go, cmd/drm-flipper) —
// ground truth for what the kernel's DRM/KMS uAPI actually expects on this
// platform, reused verbatim where the struct layout is a kernel ABI detail
// rather something this package should reinvent.
package drmsink

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func drmIoctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func openCard(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drmsink: open %s: %w", path, err)
	}
	if err := drmIoctl(f.Fd(), ioctlSetMaster, nil); err != nil {
		f.Close()
		return nil, fmt.Errorf("drmsink: SET_MASTER: %w", err)
	}
	return f, nil
}

func getResources(f *os.File) (crtcIDs, connectorIDs []uint32, err error) {
	var res drmModeCardRes
	if err := drmIoctl(f.Fd(), ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, nil, fmt.Errorf("GETRESOURCES(count): %w", err)
	}
	if res.CountCrtcs == 0 || res.CountConnectors == 0 {
		return nil, nil, fmt.Errorf("no CRTCs or connectors (crtcs=%d connectors=%d)", res.CountCrtcs, res.CountConnectors)
	}

	crtcIDs = make([]uint32, res.CountCrtcs)
	connectorIDs = make([]uint32, res.CountConnectors)
	res2 := drmModeCardRes{
		CrtcIDPtr:       uint64(uintptr(unsafe.Pointer(&crtcIDs[0]))),
		ConnectorIDPtr:  uint64(uintptr(unsafe.Pointer(&connectorIDs[0]))),
		CountCrtcs:      res.CountCrtcs,
		CountConnectors: res.CountConnectors,
	}
	if err := drmIoctl(f.Fd(), ioctlModeGetResources, unsafe.Pointer(&res2)); err != nil {
		return nil, nil, fmt.Errorf("GETRESOURCES(fill): %w", err)
	}
	return crtcIDs, connectorIDs, nil
}

func getConnector(f *os.File, connectorID uint32) (conn drmModeGetConnector, modes []drmModeModeInfo, err error) {
	conn = drmModeGetConnector{ConnectorID: connectorID}
	if err = drmIoctl(f.Fd(), ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return conn, nil, fmt.Errorf("GETCONNECTOR(%d,count): %w", connectorID, err)
	}
	if conn.CountModes == 0 {
		return conn, nil, nil
	}
	modes = make([]drmModeModeInfo, conn.CountModes)
	conn2 := drmModeGetConnector{
		ConnectorID: connectorID,
		ModesPtr:    uint64(uintptr(unsafe.Pointer(&modes[0]))),
		CountModes:  conn.CountModes,
	}
	if err = drmIoctl(f.Fd(), ioctlModeGetConnector, unsafe.Pointer(&conn2)); err != nil {
		return conn, nil, fmt.Errorf("GETCONNECTOR(%d,modes): %w", connectorID, err)
	}
	return conn2, modes, nil
}

func createDumbBuffer(f *os.File, width, height uint32) (handle uint32, pitch uint32, size uint64, err error) {
	dumb := drmModeCreateDumb{Width: width, Height: height, Bpp: 32}
	if err := drmIoctl(f.Fd(), ioctlModeCreateDumb, unsafe.Pointer(&dumb)); err != nil {
		return 0, 0, 0, fmt.Errorf("CREATE_DUMB: %w", err)
	}
	return dumb.Handle, dumb.Pitch, dumb.Size, nil
}

func destroyDumbBuffer(f *os.File, handle uint32) error {
	req := drmModeDestroyDumb{Handle: handle}
	if err := drmIoctl(f.Fd(), ioctlModeDestroyDumb, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("DESTROY_DUMB: %w", err)
	}
	return nil
}

func mapDumbBuffer(f *os.File, handle uint32, size uint64) ([]byte, error) {
	req := drmModeMapDumb{Handle: handle}
	if err := drmIoctl(f.Fd(), ioctlModeMapDumb, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("MAP_DUMB: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), int64(req.Offset), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}
	return data, nil
}

func addFramebuffer(f *os.File, width, height, pitch, handle uint32) (uint32, error) {
	fb := drmModeFbCmd{Width: width, Height: height, Pitch: pitch, Bpp: 32, Depth: 24, Handle: handle}
	if err := drmIoctl(f.Fd(), ioctlModeAddFb, unsafe.Pointer(&fb)); err != nil {
		return 0, fmt.Errorf("ADDFB: %w", err)
	}
	return fb.FbID, nil
}

func removeFramebuffer(f *os.File, fbID uint32) error {
	id := fbID
	if err := drmIoctl(f.Fd(), ioctlModeRmFb, unsafe.Pointer(&id)); err != nil {
		return fmt.Errorf("RMFB: %w", err)
	}
	return nil
}

func setCrtc(f *os.File, crtcID, fbID, connectorID uint32, mode drmModeModeInfo) error {
	connectors := []uint32{connectorID}
	crtc := drmModeCrtc{
		CrtcID:           crtcID,
		FbID:             fbID,
		SetConnectorsPtr: uint64(uintptr(unsafe.Pointer(&connectors[0]))),
		CountConnectors:  1,
		ModeValid:        1,
		Mode:             mode,
	}
	if err := drmIoctl(f.Fd(), ioctlModeSetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return fmt.Errorf("SETCRTC: %w", err)
	}
	return nil
}

func pageFlip(f *os.File, crtcID, fbID uint32) error {
	req := drmModePageFlip{CrtcID: crtcID, FbID: fbID, Flags: drmModePageFlipEvent}
	if err := drmIoctl(f.Fd(), ioctlModePageFlip, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("PAGE_FLIP: %w", err)
	}
	return nil
}
