package readwriter

import (
	"bufio"
	"io"
)

// Writer wraps a bufio.Writer and remembers the first error seen.
type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

func (wtr *Writer) Bufio() *bufio.Writer { return wtr.w }

func (wtr *Writer) IsErr() bool    { return wtr.err != nil }
func (wtr *Writer) IsNotErr() bool { return wtr.err == nil }

func (wtr *Writer) SetErr(err error) {
	if wtr.err == nil {
		wtr.err = err
	}
}

func (wtr *Writer) WriteBytes(p []byte) {
	if wtr.IsErr() {
		return
	}
	_, err := wtr.w.Write(p)
	wtr.SetErr(err)
}

func (wtr *Writer) WriteByte(b byte) {
	if wtr.IsErr() {
		return
	}
	wtr.SetErr(wtr.w.WriteByte(b))
}

// Err flushes the underlying buffer and returns the first error seen,
// either during writes or during the flush.
func (wtr *Writer) Err() error {
	if err := wtr.w.Flush(); err != nil && wtr.err == nil {
		wtr.err = err
	}
	return wtr.err
}

func (wtr *Writer) Write(p []byte) (n int, err error) { return wtr.w.Write(p) }
