package xz

// Stream magic bytes and lengths (§6.1, §4.11).
var (
	headerMagic = [6]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	footerMagic = [2]byte{'Y', 'Z'}
)

const (
	streamHeaderLen = 12
	streamFooterLen = 12
)

// Index indicator byte: chosen so it can never be mistaken for a valid
// block-header size byte (§4.11).
const indexIndicator = 0x00
