package xz

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vela-compress/xz/internal/check"
)

// streamFlags is the one meaningful byte of the stream header/footer:
// the check id in the low 4 bits, upper 4 bits reserved zero (§4.11,
// §6.1).
type streamFlags struct {
	checkID check.ID
}

func (f streamFlags) validate() error {
	if f.checkID > 15 {
		return fmt.Errorf("%w: check id out of range", ErrOptions)
	}
	return nil
}

func crc32Of(b []byte) []byte {
	h, _ := check.New(check.CRC32)
	h.Write(b)
	return h.Sum(nil)
}

// writeStreamHeader writes the 12-byte stream header (§4.11, §6.1).
func writeStreamHeader(w io.Writer, f streamFlags) error {
	if err := f.validate(); err != nil {
		return taxError(OptionsError, err)
	}
	data := make([]byte, streamHeaderLen)
	copy(data, headerMagic[:])
	data[7] = byte(f.checkID)
	copy(data[8:], crc32Of(data[6:8]))
	_, err := w.Write(data)
	return err
}

// readStreamHeader reads and validates a 12-byte stream header.
func readStreamHeader(r io.Reader) (streamFlags, error) {
	data := make([]byte, streamHeaderLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return streamFlags{}, err
	}
	if !bytes.Equal(data[:6], headerMagic[:]) {
		return streamFlags{}, taxError(FormatError, fmt.Errorf("%w: bad magic", ErrFormat))
	}
	if data[6] != 0 {
		return streamFlags{}, taxError(OptionsError, fmt.Errorf("%w: reserved header flag byte set", ErrOptions))
	}
	f := streamFlags{checkID: check.ID(data[7] & 0x0F)}
	if data[7]&0xF0 != 0 {
		return streamFlags{}, taxError(OptionsError, fmt.Errorf("%w: reserved bits set in flags byte", ErrOptions))
	}
	if !bytes.Equal(crc32Of(data[6:8]), data[8:12]) {
		return streamFlags{}, taxError(DataError, fmt.Errorf("%w: header CRC mismatch", ErrData))
	}
	return f, nil
}

// writeStreamFooter writes the 12-byte stream footer; indexSize is the
// exact byte length of the encoded index (§4.11, §6.1).
func writeStreamFooter(w io.Writer, f streamFlags, indexSize int64) error {
	if err := f.validate(); err != nil {
		return taxError(OptionsError, err)
	}
	if indexSize < 4 || indexSize%4 != 0 {
		return taxError(ProgError, fmt.Errorf("%w: invalid index size %d", ErrProg, indexSize))
	}
	data := make([]byte, streamFooterLen)
	backward := uint32(indexSize/4 - 1)
	data[4] = byte(backward)
	data[5] = byte(backward >> 8)
	data[6] = byte(backward >> 16)
	data[7] = byte(backward >> 24)
	data[9] = byte(f.checkID)
	copy(data[10:], footerMagic[:])
	copy(data[:4], crc32Of(data[4:10]))
	_, err := w.Write(data)
	return err
}

// readStreamFooter reads and validates a 12-byte stream footer, returning
// its flags and the index size it declares.
func readStreamFooter(r io.Reader) (f streamFlags, indexSize int64, err error) {
	data := make([]byte, streamFooterLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return streamFlags{}, 0, err
	}
	if !bytes.Equal(crc32Of(data[4:10]), data[:4]) {
		return streamFlags{}, 0, taxError(DataError, fmt.Errorf("%w: footer CRC mismatch", ErrData))
	}
	if !bytes.Equal(data[10:12], footerMagic[:]) {
		return streamFlags{}, 0, taxError(FormatError, fmt.Errorf("%w: bad footer magic", ErrFormat))
	}
	backward := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	indexSize = (int64(backward) + 1) * 4
	if data[8] != 0 {
		return streamFlags{}, 0, taxError(OptionsError, fmt.Errorf("%w: reserved footer byte set", ErrOptions))
	}
	f = streamFlags{checkID: check.ID(data[9] & 0x0F)}
	if data[9]&0xF0 != 0 {
		return streamFlags{}, 0, taxError(OptionsError, fmt.Errorf("%w: reserved bits set in footer flags", ErrOptions))
	}
	return f, indexSize, nil
}
