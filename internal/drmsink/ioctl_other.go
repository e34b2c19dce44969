//go:build !linux

package drmsink

import (
	"fmt"
	"os"
)

// Stubs for non-Linux platforms; DRM/KMS is a Linux-only uAPI.

func openCard(path string) (*os.File, error) {
	return nil, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func getResources(f *os.File) (crtcIDs, connectorIDs []uint32, err error) {
	return nil, nil, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func getConnector(f *os.File, connectorID uint32) (conn drmModeGetConnector, modes []drmModeModeInfo, err error) {
	return drmModeGetConnector{}, nil, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func createDumbBuffer(f *os.File, width, height uint32) (handle uint32, pitch uint32, size uint64, err error) {
	return 0, 0, 0, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func destroyDumbBuffer(f *os.File, handle uint32) error {
	return fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func mapDumbBuffer(f *os.File, handle uint32, size uint64) ([]byte, error) {
	return nil, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func addFramebuffer(f *os.File, width, height, pitch, handle uint32) (uint32, error) {
	return 0, fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func removeFramebuffer(f *os.File, fbID uint32) error {
	return fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func setCrtc(f *os.File, crtcID, fbID, connectorID uint32, mode drmModeModeInfo) error {
	return fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}

func pageFlip(f *os.File, crtcID, fbID uint32) error {
	return fmt.Errorf("drmsink: DRM ioctls only supported on Linux")
}
