package packet

import (
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/unicode"
)

// ErrShortBuffer is latched by a Reader that was asked for more bytes than remain.
var ErrShortBuffer = errors.New("packet: read past end of buffer")

// utf16 matches the length-prefixed little-endian text field, no BOM.
var utf16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Reader is a cursor over a command buffer. All multi-byte reads are
// little-endian. The first out-of-range read latches ErrShortBuffer; every
// read after that returns zero values without moving.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Reset points the reader at a new buffer and offset, clearing any error.
func (r *Reader) Reset(data []byte, start int) {
	r.data = data
	r.off = start
	r.err = nil
	if start < 0 || start > len(data) {
		r.err = ErrShortBuffer
	}
}

// Err returns the latched error, if any.
func (r *Reader) Err() error { return r.err }

// Position returns the cursor offset from the start of the buffer.
func (r *Reader) Position() int { return r.off }

// Seek moves the cursor to an absolute offset. Seeking outside the buffer
// latches ErrShortBuffer.
func (r *Reader) Seek(off int) {
	if off < 0 || off > len(r.data) {
		r.err = ErrShortBuffer
		return
	}
	r.off = off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.off >= len(r.data) {
		return 0
	}
	return len(r.data) - r.off
}

// take advances the cursor by n and returns the consumed window, or nil once
// the buffer is exhausted.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadUint8 reads 1 byte.
func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads 1 byte; any non-zero value is true.
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadInt16 reads 2 bytes as a signed value.
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadUint16 reads 2 bytes.
func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadInt32 reads 4 bytes as a signed value.
func (r *Reader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadUint32 reads 4 bytes.
func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadInt64 reads 8 bytes as a signed value.
func (r *Reader) ReadInt64() int64 {
	return int64(r.ReadUint64())
}

// ReadUint64 reads 8 bytes.
func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ReadString reads a uint16 byte length followed by UTF-16LE text.
func (r *Reader) ReadString() string {
	n := int(r.ReadUint16())
	raw := r.take(n)
	if raw == nil || n == 0 {
		return ""
	}
	decoded, err := utf16.NewDecoder().Bytes(raw)
	if err != nil {
		r.err = err
		return ""
	}
	return string(decoded)
}

// ReadByteArray reads a uint16 length followed by that many bytes. The result
// is a copy; the source buffer may be reused by the caller.
func (r *Reader) ReadByteArray() []byte {
	n := int(r.ReadUint16())
	raw := r.take(n)
	if raw == nil {
		return nil
	}
	b := make([]byte, n)
	copy(b, raw)
	return b
}

// ReadBytes reads n raw bytes without a length prefix.
func (r *Reader) ReadBytes(n int) []byte {
	raw := r.take(n)
	if raw == nil {
		return nil
	}
	b := make([]byte, n)
	copy(b, raw)
	return b
}
