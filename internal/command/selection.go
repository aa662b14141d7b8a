package command

import (
	"math/bits"

	"github.com/l1jgo/lockstep/internal/net/packet"
)

const (
	selectionChunks = 64
	// MaxSelectable is one past the highest local id a selection can carry.
	MaxSelectable = selectionChunks * 64
)

// Selection is a set of controller-local agent ids stored as 64 chunks of 64
// bits. On the wire only the non-zero chunks are written, after a header whose
// bit i marks chunk i as present.
type Selection struct {
	chunks [selectionChunks]uint64
}

// Add inserts a local id. Ids at or beyond MaxSelectable are rejected.
func (s *Selection) Add(localID uint16) bool {
	if int(localID) >= MaxSelectable {
		return false
	}
	s.chunks[localID>>6] |= 1 << (localID & 63)
	return true
}

// Remove deletes a local id if present.
func (s *Selection) Remove(localID uint16) {
	if int(localID) >= MaxSelectable {
		return
	}
	s.chunks[localID>>6] &^= 1 << (localID & 63)
}

// Contains reports whether the id is selected.
func (s *Selection) Contains(localID uint16) bool {
	if int(localID) >= MaxSelectable {
		return false
	}
	return s.chunks[localID>>6]&(1<<(localID&63)) != 0
}

func (s *Selection) Clear() { s.chunks = [selectionChunks]uint64{} }

// Len counts selected ids.
func (s *Selection) Len() int {
	n := 0
	for _, c := range s.chunks {
		n += bits.OnesCount64(c)
	}
	return n
}

func (s *Selection) Empty() bool {
	for _, c := range s.chunks {
		if c != 0 {
			return false
		}
	}
	return true
}

// Each visits selected ids in ascending order.
func (s *Selection) Each(fn func(localID uint16)) {
	for i, c := range s.chunks {
		for c != 0 {
			b := bits.TrailingZeros64(c)
			fn(uint16(i<<6 | b))
			c &= c - 1
		}
	}
}

// IDs returns the selected ids in ascending order.
func (s *Selection) IDs() []uint16 {
	ids := make([]uint16, 0, s.Len())
	s.Each(func(id uint16) { ids = append(ids, id) })
	return ids
}

func (s *Selection) header() uint64 {
	var h uint64
	for i, c := range s.chunks {
		if c != 0 {
			h |= 1 << i
		}
	}
	return h
}

func (s *Selection) write(w *packet.Writer) {
	h := s.header()
	w.WriteUint64(h)
	for i, c := range s.chunks {
		if h&(1<<i) != 0 {
			w.WriteUint64(c)
		}
	}
}

func (s *Selection) read(r *packet.Reader) {
	s.Clear()
	h := r.ReadUint64()
	for i := range s.chunks {
		if h&(1<<i) != 0 {
			s.chunks[i] = r.ReadUint64()
		}
	}
}
