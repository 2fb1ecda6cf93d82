// Package framer reassembles chunked byte streams into complete text lines.
package framer

import (
	"bytes"
	"iter"
)

// Framer splits a byte stream that arrives in arbitrary chunks into
// newline-terminated lines. A line that has not yet seen its terminator is
// kept until a later chunk completes it or Flush is called.
//
// A Framer is not safe for concurrent use; it is owned by the goroutine
// draining one stream.
type Framer struct {
	buf []byte
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// Feed appends chunk to the pending buffer and returns the complete lines now
// available. The sequence is lazy: lines are consumed from the buffer as they
// are yielded, and any the caller does not consume are returned by the
// sequence of the next Feed call. Blank lines are skipped and a trailing
// carriage return is removed.
func (f *Framer) Feed(chunk []byte) iter.Seq[string] {
	f.buf = append(f.buf, chunk...)
	return f.lines
}

func (f *Framer) lines(yield func(string) bool) {
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			if len(f.buf) == 0 {
				f.buf = nil
			}
			return
		}
		line := trimCR(f.buf[:i])
		f.buf = f.buf[i+1:]
		if isBlank(line) {
			continue
		}
		if !yield(string(line)) {
			return
		}
	}
}

// Flush returns the buffered partial line, if it holds anything other than
// whitespace, and resets the Framer. Call it once the stream has ended.
func (f *Framer) Flush() (string, bool) {
	line := trimCR(f.buf)
	f.buf = nil
	if isBlank(line) {
		return "", false
	}
	return string(line), true
}

// Buffered reports how many bytes are waiting for a line terminator or to be
// consumed.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}
