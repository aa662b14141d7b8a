package command

import (
	"errors"
	"fmt"
	"math"

	"github.com/l1jgo/lockstep/internal/net/packet"
)

// MaxBatchCommands is the most commands one batch can carry.
const MaxBatchCommands = math.MaxUint16

var ErrBatchTooLarge = errors.New("command: batch holds more than 65535 commands")

// Batch is everything one peer issued for one influence frame.
// Wire format: [frame:int32][peer:uint8][count:uint16][commands back to back].
type Batch struct {
	Frame    int32
	Peer     uint8
	Commands []*Command
}

// Encode appends the wire form of b to w.
func (b *Batch) Encode(w *packet.Writer) error {
	if len(b.Commands) > MaxBatchCommands {
		return ErrBatchTooLarge
	}
	w.WriteInt32(b.Frame)
	w.WriteUint8(b.Peer)
	w.WriteUint16(uint16(len(b.Commands)))
	for _, c := range b.Commands {
		if err := c.Serialize(w); err != nil {
			return fmt.Errorf("batch frame %d peer %d: %w", b.Frame, b.Peer, err)
		}
	}
	return nil
}

// MarshalBinary returns the batch in a fresh buffer.
func (b *Batch) MarshalBinary() ([]byte, error) {
	w := packet.NewWriter()
	if err := b.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeBatch parses a whole batch. Trailing bytes are an error.
func DecodeBatch(data []byte) (*Batch, error) {
	r := packet.NewReader(data)
	b := &Batch{
		Frame: r.ReadInt32(),
		Peer:  r.ReadUint8(),
	}
	n := int(r.ReadUint16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read batch header: %w", err)
	}
	b.Commands = make([]*Command, 0, n)
	for i := 0; i < n; i++ {
		c := &Command{}
		if err := c.ReadFrom(r); err != nil {
			return nil, fmt.Errorf("batch frame %d peer %d command %d: %w", b.Frame, b.Peer, i, err)
		}
		b.Commands = append(b.Commands, c)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("batch frame %d peer %d: %d trailing bytes", b.Frame, b.Peer, r.Remaining())
	}
	return b, nil
}
