package packet

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrFieldTooLong is latched when a length-prefixed field exceeds 65535 bytes.
var ErrFieldTooLong = errors.New("packet: length-prefixed field exceeds 65535 bytes")

// Writer appends little-endian primitives to a growable buffer. The buffer is
// reused across Reset calls, so Bytes is only valid until the next write.
type Writer struct {
	buf []byte
	err error
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Reset empties the buffer and clears any latched error.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.err = nil
}

// Err returns the first error latched by a write.
func (w *Writer) Err() error { return w.err }

// WriteUint8 writes 1 byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte, 1 for true.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteInt16 writes 2 bytes.
func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }

// WriteUint16 writes 2 bytes.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteInt32 writes 4 bytes.
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

// WriteUint32 writes 4 bytes.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteInt64 writes 8 bytes.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteUint64 writes 8 bytes.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteString writes the UTF-16LE encoding of s prefixed by its byte length.
func (w *Writer) WriteString(s string) {
	if s == "" {
		w.WriteUint16(0)
		return
	}
	encoded, err := utf16.NewEncoder().Bytes([]byte(s))
	if err != nil {
		w.fail(err)
		w.WriteUint16(0)
		return
	}
	w.WriteByteArray(encoded)
}

// WriteByteArray writes a uint16 length followed by b.
func (w *Writer) WriteByteArray(b []byte) {
	if len(b) > math.MaxUint16 {
		w.fail(ErrFieldTooLong)
		w.WriteUint16(0)
		return
	}
	w.WriteUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteBytes writes raw bytes without a prefix.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the written content. The slice aliases the internal buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}
