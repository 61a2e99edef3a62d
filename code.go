package xz

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Action selects what a Stream.Code call should do with its buffers
// (§4.12).
type Action int

const (
	// Run processes as much of the available input as it can.
	Run Action = iota
	// SyncFlush asks the encoder to make all input provided so far
	// decodeable from the output produced so far.
	SyncFlush
	// FullFlush ends the current block and starts a new one (encoder
	// only).
	FullFlush
	// Finish declares no more input will arrive and requests the
	// handle drain to completion.
	Finish
)

// Stream is a push-based handle implementing the Action/Return vocabulary
// of §4.12. An encoding Stream owns its Writer end to end: compressed
// bytes are staged internally and delivered only through Code's output
// buffer, so the caller controls both halves of the buffer-in/buffer-out
// contract and may segment either side however it likes. A decoding
// Stream wraps an already-constructed Reader; see NewDecodeStream.
type Stream struct {
	w     *Writer
	stage bytes.Buffer // encoder: compressed bytes not yet handed to the caller
	r     *Reader

	finished   bool // encoder: Finish processed; only draining remains
	poisoned   bool
	noProgress int // consecutive no-progress Code calls
}

// NewEncodeStream creates a push-based encoding handle. cfg is as for
// NewWriter; nil selects DefaultWriterConfig. The stream header is staged
// immediately and appears at the front of the first Code output.
func NewEncodeStream(cfg *WriterConfig) (*Stream, error) {
	s := &Stream{}
	w, err := NewWriter(&s.stage, cfg)
	if err != nil {
		return nil, err
	}
	s.w = w
	return s, nil
}

// NewDecodeStream wraps r (already constructed via NewReader) as a
// push-based Stream.
func NewDecodeStream(r *Reader) *Stream { return &Stream{r: r} }

// Code processes input through the handle and writes encoded/decoded
// bytes into output, returning how many bytes of each were consumed and
// produced, the resulting Code, and an error if one occurred (§4.12).
//
// "No progress" detection (§4.12): if a call consumes zero input and
// produces zero output while returning OK, one retry is tolerated; a
// second consecutive such call returns BufError. BufError is non-fatal
// (§7): refill a buffer and call again. Any other error poisons the
// handle, after which only End is legal.
func (s *Stream) Code(input []byte, output []byte, action Action) (consumed, produced int, code Code, err error) {
	if s.poisoned {
		return 0, 0, ProgError, taxError(ProgError, fmt.Errorf("%w: handle reused after fatal error", ErrProg))
	}

	switch {
	case s.w != nil:
		consumed, produced, code, err = s.codeEncode(input, output, action)
	case s.r != nil:
		consumed, produced, code, err = s.codeDecode(input, output, action)
	default:
		return 0, 0, ProgError, taxError(ProgError, fmt.Errorf("%w: stream has no writer or reader bound", ErrProg))
	}

	if err != nil {
		if code != BufError {
			s.poisoned = true
		}
		return consumed, produced, code, err
	}

	if consumed == 0 && produced == 0 && code == OK {
		s.noProgress++
		if s.noProgress >= 2 {
			return consumed, produced, BufError, taxError(BufError, fmt.Errorf("%w", ErrBuf))
		}
	} else {
		s.noProgress = 0
	}
	return consumed, produced, code, err
}

func (s *Stream) codeEncode(input, output []byte, action Action) (int, int, Code, error) {
	consumed := 0
	if len(input) > 0 {
		if s.finished {
			return 0, 0, ProgError, taxError(ProgError, fmt.Errorf("%w: input after Finish", ErrProg))
		}
		n, err := s.w.Write(input)
		consumed = n
		if err != nil {
			code, werr := taxonomize(err)
			return consumed, 0, code, werr
		}
	}

	switch action {
	case SyncFlush, FullFlush:
		// A block boundary is this container's finest flush granularity:
		// it makes everything provided so far independently decodeable,
		// which satisfies SyncFlush's contract as well as FullFlush's.
		if err := s.w.Flush(); err != nil {
			code, werr := taxonomize(err)
			return consumed, 0, code, werr
		}
	case Finish:
		if !s.finished {
			if err := s.w.Close(); err != nil {
				code, werr := taxonomize(err)
				return consumed, 0, code, werr
			}
			s.finished = true
		}
	}

	produced := s.drain(output)
	if s.finished && s.stage.Len() == 0 {
		return consumed, produced, StreamEnd, nil
	}
	return consumed, produced, OK, nil
}

// drain moves staged compressed bytes into the caller's output buffer.
func (s *Stream) drain(output []byte) int {
	if len(output) == 0 || s.stage.Len() == 0 {
		return 0
	}
	n, _ := s.stage.Read(output)
	return n
}

func (s *Stream) codeDecode(input, output []byte, action Action) (int, int, Code, error) {
	// The Reader pulls from its own bound io.Reader rather than an
	// input buffer passed per call, matching how block.Decode consumes
	// a live stream; `input` is accepted for API-shape fidelity with
	// §4.12 but is not separately staged here. See DESIGN.md.
	n, err := s.r.Read(output)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, n, StreamEnd, nil
		}
		code, werr := taxonomize(err)
		return 0, n, code, werr
	}
	return 0, n, OK, nil
}

// taxonomize maps an error onto its taxonomy code, preserving the code
// of an error that already carries one instead of re-wrapping it.
func taxonomize(err error) (Code, error) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code, err
	}
	return DataError, taxError(DataError, err)
}

// End releases resources held by the handle. It is unconditional: it
// must succeed even on a poisoned handle (§5 "Cancellation").
func (s *Stream) End() error {
	if s.w != nil && !s.w.closed {
		return s.w.Close()
	}
	return nil
}
