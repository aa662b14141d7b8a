package persist

import (
	"bytes"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/net/packet"
)

// Digest is a running BLAKE2b-256 over every merged frame of a match. Two
// peers that merged the same input produce the same sum.
type Digest struct {
	h hash.Hash
	w *packet.Writer
}

func NewDigest() *Digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	return &Digest{h: h, w: packet.NewWriter()}
}

// Add folds one merged frame into the digest.
func (d *Digest) Add(frame int32, batches []*command.Batch) error {
	d.w.Reset()
	d.w.WriteInt32(frame)
	for _, b := range batches {
		if err := b.Encode(d.w); err != nil {
			return err
		}
	}
	_, err := d.h.Write(d.w.Bytes())
	return err
}

// Sum returns the digest of everything added so far.
func (d *Digest) Sum() []byte { return d.h.Sum(nil) }

// VerifyDigest recomputes the digest of frames and compares it with want.
func VerifyDigest(frames []FrameRow, want []byte) (bool, error) {
	d := NewDigest()
	for _, f := range frames {
		if err := d.Add(f.Frame, f.Batches); err != nil {
			return false, err
		}
	}
	return bytes.Equal(d.Sum(), want), nil
}
