package drmsink

// font5x7 is a minimal bitmap font covering the banner vocabulary
// ("NO SIGNAL", "UNSUPPORTED RESOLUTION ...", "ONLINE IS ACTIVE"): one
// byte per row, 5 columns wide, MSB unused.
var font5x7 = map[byte][7]byte{
	' ': {0, 0, 0, 0, 0, 0, 0},
	'A': {0x0E, 0x11, 0x11, 0x1F, 0x11, 0x11, 0x11},
	'C': {0x0E, 0x11, 0x01, 0x01, 0x01, 0x11, 0x0E},
	'D': {0x1E, 0x09, 0x09, 0x09, 0x09, 0x09, 0x1E},
	'E': {0x1F, 0x01, 0x01, 0x1F, 0x01, 0x01, 0x1F},
	'G': {0x0E, 0x11, 0x01, 0x1D, 0x11, 0x11, 0x0E},
	'I': {0x0E, 0x04, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'L': {0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x1F},
	'N': {0x11, 0x19, 0x15, 0x13, 0x11, 0x11, 0x11},
	'O': {0x0E, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'P': {0x1E, 0x11, 0x11, 0x1E, 0x01, 0x01, 0x01},
	'R': {0x1E, 0x11, 0x11, 0x1E, 0x09, 0x11, 0x11},
	'S': {0x0E, 0x11, 0x01, 0x0E, 0x10, 0x11, 0x0E},
	'T': {0x1F, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04},
	'U': {0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'V': {0x11, 0x11, 0x11, 0x11, 0x11, 0x0A, 0x04},
	'X': {0x11, 0x11, 0x0A, 0x04, 0x0A, 0x11, 0x11},
	'0': {0x0E, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0E},
	'1': {0x04, 0x0C, 0x04, 0x04, 0x04, 0x04, 0x0E},
}

const (
	glyphW    = 5
	glyphH    = 7
	glyphGap  = 1
	charScale = 4
)

// drawBanner paints text, white-on-black, centered vertically, onto an
// RGBA32 dumb buffer of the given pitch. Unknown runes render as blanks.
func drawBanner(buf []byte, width, height int, pitch int, text string) {
	for i := range buf {
		buf[i] = 0
	}

	textWidth := len(text) * (glyphW + glyphGap) * charScale
	startX := (width - textWidth) / 2
	if startX < 0 {
		startX = 0
	}
	startY := (height - glyphH*charScale) / 2
	if startY < 0 {
		startY = 0
	}

	for i := 0; i < len(text); i++ {
		glyph, ok := font5x7[normalizeGlyphKey(text[i])]
		if !ok {
			continue
		}
		ox := startX + i*(glyphW+glyphGap)*charScale
		for row := 0; row < glyphH; row++ {
			bits := glyph[row]
			for col := 0; col < glyphW; col++ {
				if bits&(1<<uint(glyphW-1-col)) == 0 {
					continue
				}
				for sy := 0; sy < charScale; sy++ {
					for sx := 0; sx < charScale; sx++ {
						px := ox + col*charScale + sx
						py := startY + row*charScale + sy
						setPixel(buf, pitch, width, height, px, py)
					}
				}
			}
		}
	}
}

func normalizeGlyphKey(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func setPixel(buf []byte, pitch, width, height, x, y int) {
	if x < 0 || x >= width || y < 0 || y >= height {
		return
	}
	off := y*pitch + x*4
	if off+4 > len(buf) {
		return
	}
	buf[off] = 0xFF
	buf[off+1] = 0xFF
	buf[off+2] = 0xFF
	buf[off+3] = 0xFF
}
