package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Sink contract
// ---------------------------------------------------------------------------

// Status is the outcome of a sink write or of a whole dump.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

// String returns "OK" or "ERROR".
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Writer receives the dumped bytes one block at a time. The block is
// p[start:start+length]; p may be reused after WriteBlock returns, so
// implementations must copy what they keep. Any status other than StatusOK
// ends the dump: no further blocks are delivered.
type Writer interface {
	WriteBlock(p []byte, start, length int) Status
}

// WriterFunc adapts an ordinary function to the Writer interface.
type WriterFunc func(p []byte, start, length int) Status

// WriteBlock calls f(p, start, length).
func (f WriterFunc) WriteBlock(p []byte, start, length int) Status {
	return f(p, start, length)
}

// ---------------------------------------------------------------------------
// io.Writer adapter
// ---------------------------------------------------------------------------

// ErrDumpFailed is returned by the io adapters when the sink failed.
var ErrDumpFailed = errors.New("chunk: dump failed")

// IOWriter forwards blocks to an io.Writer and remembers the first error.
type IOWriter struct {
	w   io.Writer
	n   int64
	err error
}

// NewIOWriter wraps w as a chunk Writer.
func NewIOWriter(w io.Writer) *IOWriter {
	return &IOWriter{w: w}
}

// WriteBlock writes the block to the underlying writer. Short writes count
// as failures.
func (iw *IOWriter) WriteBlock(p []byte, start, length int) Status {
	if iw.err != nil {
		return StatusError
	}
	n, err := iw.w.Write(p[start : start+length])
	iw.n += int64(n)
	if err == nil && n != length {
		err = io.ErrShortWrite
	}
	if err != nil {
		iw.err = err
		return StatusError
	}
	return StatusOK
}

// Err returns the first error reported by the underlying writer.
func (iw *IOWriter) Err() error {
	return iw.err
}

// Written returns the number of bytes accepted by the underlying writer.
func (iw *IOWriter) Written() int64 {
	return iw.n
}

// DumpTo dumps p to w. A failing writer yields an error wrapping both
// ErrDumpFailed and the writer's own error.
func DumpTo(w io.Writer, p *Prototype, strip bool) error {
	iw := NewIOWriter(w)
	if Dump(p, iw, strip) != StatusOK {
		if iw.err != nil {
			return fmt.Errorf("%w: %w", ErrDumpFailed, iw.err)
		}
		return ErrDumpFailed
	}
	return nil
}

// Marshal returns the complete chunk for p.
func Marshal(p *Prototype, strip bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := DumpTo(&buf, p, strip); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
