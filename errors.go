package xz

import "errors"

// Code is the xz error taxonomy (§6.2, §7): every public operation that
// can fail in a way a caller should branch on returns one of these,
// alongside a wrapped error giving the specific cause.
type Code int

const (
	// OK reports progress with more work remaining.
	OK Code = iota
	// StreamEnd reports that the requested action reached its terminal
	// condition.
	StreamEnd
	// NoCheck is an informational code: the stream declares no integrity
	// check. Decoding continues.
	NoCheck
	// UnsupportedCheck is informational: the stream's check id is not
	// implemented by this package, so it is skipped rather than verified.
	UnsupportedCheck
	// GetCheck is informational: reports which check id a stream uses,
	// once its header has been parsed.
	GetCheck
	// MemError means the configured allocator could not satisfy a
	// legitimate allocation.
	MemError
	// MemlimitError means a memory-tracked allocator refused an
	// allocation because it would exceed its configured limit. Distinct
	// from MemError so callers can raise the limit and retry.
	MemlimitError
	// FormatError means the input does not begin with a recognizable
	// format magic.
	FormatError
	// OptionsError (aka HeaderError) means the format is recognized but
	// carries unsupported or invalid parameters.
	OptionsError
	// DataError means a checksum mismatch, malformed VLI, declared-size
	// disagreement, or another internal consistency failure.
	DataError
	// BufError means the caller made no decodable/encodable progress
	// possible with the buffers given; non-fatal, refill and retry (§4.12).
	BufError
	// ProgError means the API was misused (nil buffer with nonzero
	// length, action out of sequence, handle reused after a fatal error).
	ProgError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case StreamEnd:
		return "STREAM_END"
	case NoCheck:
		return "NO_CHECK"
	case UnsupportedCheck:
		return "UNSUPPORTED_CHECK"
	case GetCheck:
		return "GET_CHECK"
	case MemError:
		return "MEM_ERROR"
	case MemlimitError:
		return "MEMLIMIT_ERROR"
	case FormatError:
		return "FORMAT_ERROR"
	case OptionsError:
		return "OPTIONS_ERROR"
	case DataError:
		return "DATA_ERROR"
	case BufError:
		return "BUF_ERROR"
	case ProgError:
		return "PROG_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors wrapped by this package's operations (§7). Callers
// that need the taxonomy code rather than errors.Is should use the Code
// field on a *Error.
var (
	ErrFormat           = errors.New("xz: unrecognized format magic")
	ErrOptions          = errors.New("xz: unsupported or invalid header options")
	ErrData             = errors.New("xz: data error")
	ErrBuf              = errors.New("xz: no progress possible")
	ErrProg             = errors.New("xz: API misused")
	ErrIndexMismatch    = errors.New("xz: decoded index does not match stored index")
	ErrFlagsMismatch    = errors.New("xz: stream footer flags do not match header flags")
	ErrUnsupportedCheck = errors.New("xz: unsupported integrity check id")
)

// Error wraps an underlying cause with the taxonomy Code a caller should
// branch on.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func taxError(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}
