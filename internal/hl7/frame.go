package hl7

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const (
	// MLLP frame characters
	StartBlock     = 0x0B
	EndBlock       = 0x1C
	CarriageReturn = 0x0D

	// DefaultMaxFrameSize bounds a single buffered payload (1 MB).
	DefaultMaxFrameSize = 1 << 20
)

// FrameError reports a malformed byte stream for one frame. The connection
// that produced it remains usable; the framer resynchronises on the next
// start block.
type FrameError struct {
	Reason string
	Bytes  int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("MLLP frame error: %s (%d bytes discarded)", e.Reason, e.Bytes)
}

// Framer turns a byte stream into MLLP payloads. One Framer is used per
// connection; partial frames survive across reads because the underlying
// bufio.Reader keeps them buffered.
type Framer struct {
	reader  *bufio.Reader
	maxSize int
	buffer  bytes.Buffer
}

// NewFramer creates a framer reading from r. maxSize <= 0 selects
// DefaultMaxFrameSize.
func NewFramer(r io.Reader, maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framer{
		reader:  bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// Next blocks until a complete frame is available and returns its payload.
// Bytes before the first start block are discarded. A *FrameError is returned
// for a malformed frame; any other error comes from the underlying reader and
// ends the stream.
func (f *Framer) Next() ([]byte, error) {
	// Wait for start block
	for {
		b, err := f.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == StartBlock {
			break
		}
	}

	f.buffer.Reset()
	for {
		b, err := f.reader.ReadByte()
		if err != nil {
			return nil, err
		}

		switch b {
		case StartBlock:
			// A new frame started before the previous one ended.
			discarded := f.buffer.Len()
			f.buffer.Reset()
			if discarded > 0 {
				return nil, f.resync(&FrameError{Reason: "start block inside frame", Bytes: discarded}, false)
			}
			continue
		case EndBlock:
			next, err := f.reader.ReadByte()
			if err != nil {
				return nil, err
			}
			if next != CarriageReturn {
				if uerr := f.reader.UnreadByte(); uerr != nil {
					return nil, uerr
				}
				return nil, &FrameError{
					Reason: fmt.Sprintf("CR expected after end block, got %02X", next),
					Bytes:  f.buffer.Len(),
				}
			}
			payload := make([]byte, f.buffer.Len())
			copy(payload, f.buffer.Bytes())
			return payload, nil
		}

		f.buffer.WriteByte(b)
		if f.buffer.Len() > f.maxSize {
			return nil, f.resync(&FrameError{
				Reason: fmt.Sprintf("frame exceeds %d bytes", f.maxSize),
				Bytes:  f.buffer.Len(),
			}, true)
		}
	}
}

// resync records the frame error and, when skip is set, drops bytes until the
// end of the oversized frame so its tail is not mistaken for a new message.
func (f *Framer) resync(ferr *FrameError, skip bool) error {
	f.buffer.Reset()
	if !skip {
		// The start block that caused the error begins a fresh frame.
		if err := f.reader.UnreadByte(); err != nil {
			return err
		}
		return ferr
	}
	for {
		b, err := f.reader.ReadByte()
		if err != nil {
			return err
		}
		ferr.Bytes++
		if b == StartBlock {
			ferr.Bytes--
			if err := f.reader.UnreadByte(); err != nil {
				return err
			}
			return ferr
		}
		if b == EndBlock {
			if next, err := f.reader.Peek(1); err == nil && next[0] == CarriageReturn {
				f.reader.ReadByte()
				return ferr
			}
		}
	}
}

// Wrap adds the MLLP wrapper to a payload.
func Wrap(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, StartBlock)
	frame = append(frame, payload...)
	return append(frame, EndBlock, CarriageReturn)
}

// Unwrap removes an MLLP wrapper if present.
func Unwrap(message []byte) []byte {
	message = bytes.TrimPrefix(message, []byte{StartBlock})
	message = bytes.TrimSuffix(message, []byte{EndBlock, CarriageReturn})
	return message
}
