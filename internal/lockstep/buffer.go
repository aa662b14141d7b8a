package lockstep

import (
	"errors"
	"fmt"

	"github.com/l1jgo/lockstep/internal/command"
)

// MaxFrameLead is how many influence frames past the next one a batch may be
// scheduled for.
const MaxFrameLead = 1024

var (
	ErrFutureBatch    = errors.New("lockstep: batch scheduled too far ahead")
	ErrDuplicateBatch = errors.New("lockstep: batch already received for frame and peer")
	ErrStaleBatch     = errors.New("lockstep: batch for an already merged frame")
	ErrUnknownPeer    = errors.New("lockstep: batch from unknown peer")
)

// FrameBuffer holds received batches until every participant has delivered
// one for the next influence frame.
type FrameBuffer struct {
	participants int
	next         int32
	// frames is only used for lookup; merge order comes from the peer index.
	frames map[int32][]*command.Batch
}

func NewFrameBuffer(participants int) *FrameBuffer {
	if participants < 1 {
		participants = 1
	}
	return &FrameBuffer{
		participants: participants,
		frames:       make(map[int32][]*command.Batch),
	}
}

// Add stores b. Batches for merged frames, frames MaxFrameLead or more ahead,
// unknown peers and duplicates are rejected.
func (fb *FrameBuffer) Add(b *command.Batch) error {
	if b.Frame < fb.next {
		return fmt.Errorf("frame %d peer %d (next %d): %w", b.Frame, b.Peer, fb.next, ErrStaleBatch)
	}
	if int64(b.Frame)-int64(fb.next) >= MaxFrameLead {
		return fmt.Errorf("frame %d peer %d (next %d): %w", b.Frame, b.Peer, fb.next, ErrFutureBatch)
	}
	if int(b.Peer) >= fb.participants {
		return fmt.Errorf("frame %d peer %d: %w", b.Frame, b.Peer, ErrUnknownPeer)
	}
	slots := fb.frames[b.Frame]
	if slots == nil {
		slots = make([]*command.Batch, fb.participants)
		fb.frames[b.Frame] = slots
	}
	if slots[b.Peer] != nil {
		return fmt.Errorf("frame %d peer %d: %w", b.Frame, b.Peer, ErrDuplicateBatch)
	}
	slots[b.Peer] = b
	return nil
}

// Ready reports whether the next frame can be merged.
func (fb *FrameBuffer) Ready() bool {
	slots := fb.frames[fb.next]
	if slots == nil {
		return false
	}
	for _, b := range slots {
		if b == nil {
			return false
		}
	}
	return true
}

// Missing lists the peers the next frame still waits for.
func (fb *FrameBuffer) Missing() []uint8 {
	slots := fb.frames[fb.next]
	var out []uint8
	for p := 0; p < fb.participants; p++ {
		if slots == nil || slots[p] == nil {
			out = append(out, uint8(p))
		}
	}
	return out
}

// Pop removes the next frame's batches in peer order and advances. It
// returns nil when the frame is not ready.
func (fb *FrameBuffer) Pop() []*command.Batch {
	if !fb.Ready() {
		return nil
	}
	slots := fb.frames[fb.next]
	delete(fb.frames, fb.next)
	fb.next++
	return slots
}

// Next is the influence frame Pop will return.
func (fb *FrameBuffer) Next() int32 { return fb.next }

// Buffered is the number of frames holding at least one batch.
func (fb *FrameBuffer) Buffered() int { return len(fb.frames) }

// Participants is the number of peers every frame waits for.
func (fb *FrameBuffer) Participants() int { return fb.participants }

// Reset forgets everything and restarts at frame 0.
func (fb *FrameBuffer) Reset() {
	clear(fb.frames)
	fb.next = 0
}
