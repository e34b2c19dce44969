package drmsink

// Kernel DRM/KMS uAPI ioctl numbers and wire structs, platform-independent
// so both ioctl_linux.go and the non-Linux stub in ioctl_other.go can
// share the same signatures. Lifted from helixml/helix's api/pkg/drm and
// cmd/drm-flipper — these are kernel ABI layouts, not design choices.
const (
	ioctlSetMaster        = 0x641e
	ioctlDropMaster       = 0x641f
	ioctlModeGetResources = 0xc04064a0
	ioctlModeGetConnector = 0xc05064a7
	ioctlModeGetCrtc      = 0xc06864a1
	ioctlModeSetCrtc      = 0xc06864a2
	ioctlModeCreateDumb   = 0xc02064b2
	ioctlModeMapDumb      = 0xc01064b3
	ioctlModeDestroyDumb  = 0xc00464b4
	ioctlModeAddFb        = 0xc01c64ae
	ioctlModeRmFb         = 0xc00464af
	ioctlModePageFlip     = 0xc01064b0

	drmModePageFlipEvent = 0x01

	connectorStatusConnected    = 1
	connectorStatusDisconnected = 2
)

type drmModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type drmModeModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type drmModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type drmModeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             drmModeModeInfo
}

type drmModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type drmModeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type drmModeDestroyDumb struct {
	Handle uint32
}

type drmModeFbCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

type drmModePageFlip struct {
	CrtcID   uint32
	FbID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}
