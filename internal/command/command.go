// Package command holds the per-tick player intent record and its compact
// wire form.
package command

import (
	"errors"
	"fmt"
	"math"

	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/net/packet"
)

// InputCode identifies what a command asks for.
type InputCode uint8

const (
	InputNone InputCode = iota
	InputSpawn
	InputMove
	InputStop
	InputSelect

	// InputUser is the first code free for gameplay-defined input.
	InputUser InputCode = 32
)

func (c InputCode) String() string {
	switch c {
	case InputNone:
		return "None"
	case InputSpawn:
		return "Spawn"
	case InputMove:
		return "Move"
	case InputStop:
		return "Stop"
	case InputSelect:
		return "Select"
	default:
		return fmt.Sprintf("Input(%d)", uint8(c))
	}
}

// GlobalController routes a command to behaviour helpers only.
const GlobalController uint8 = 0xFF

// Field is one bit of the presence mask. The bit order is also the order in
// which present fields are written.
type Field uint32

const (
	FieldPosition Field = 1 << iota
	FieldTarget
	FieldFlag
	FieldCoord
	FieldCount
	FieldSelect
	FieldGroupID
	FieldText
	FieldRotation
	FieldRaw

	knownFields = FieldRaw<<1 - 1
)

// HeaderSize is the encoded size of a command with no fields.
const HeaderSize = 6

// positionShift drops the low fraction bits of a position on the wire.
const positionShift = fixed.Shift - 7

var ErrUnknownField = errors.New("command: unknown field bits in mask")

// Coordinate is an integer grid coordinate.
type Coordinate struct {
	X int32
	Y int32
}

// Command is a sparse record of player intent. Fields are present only when
// set through their setter; absent fields cost nothing on the wire. A Command
// must not be retained past the tick that consumed it.
type Command struct {
	ControllerID uint8
	Input        InputCode

	mask      Field
	position  fixed.Vector2d
	target    uint16
	flag      bool
	coord     Coordinate
	count     int32
	selection Selection
	groupID   uint8
	text      string
	rotation  fixed.Rotation
	raw       []byte
}

// New returns an empty command for a controller and input code.
func New(controllerID uint8, input InputCode) *Command {
	return &Command{ControllerID: controllerID, Input: input}
}

// Reset clears every field so the command can be reused.
func (c *Command) Reset() {
	raw := c.raw[:0]
	*c = Command{raw: raw}
}

// Has reports whether every field in f is present.
func (c *Command) Has(f Field) bool { return c.mask&f == f }

// Mask returns the presence mask.
func (c *Command) Mask() Field { return c.mask }

func (c *Command) SetPosition(v fixed.Vector2d) {
	c.position = v
	c.mask |= FieldPosition
}

func (c *Command) Position() fixed.Vector2d { return c.position }

func (c *Command) SetTarget(globalID uint16) {
	c.target = globalID
	c.mask |= FieldTarget
}

func (c *Command) Target() uint16 { return c.target }

func (c *Command) SetFlag(v bool) {
	c.flag = v
	c.mask |= FieldFlag
}

func (c *Command) Flag() bool { return c.flag }

func (c *Command) SetCoordinate(v Coordinate) {
	c.coord = v
	c.mask |= FieldCoord
}

func (c *Command) Coordinate() Coordinate { return c.coord }

func (c *Command) SetCount(n int32) {
	c.count = n
	c.mask |= FieldCount
}

func (c *Command) Count() int32 { return c.count }

// SetSelection copies s into the command.
func (c *Command) SetSelection(s *Selection) {
	c.selection = *s
	c.mask |= FieldSelect
}

// Select adds a single local id, marking the selection present.
func (c *Command) Select(localID uint16) bool {
	c.mask |= FieldSelect
	return c.selection.Add(localID)
}

func (c *Command) Selection() *Selection { return &c.selection }

func (c *Command) SetGroupID(id uint8) {
	c.groupID = id
	c.mask |= FieldGroupID
}

func (c *Command) GroupID() uint8 { return c.groupID }

func (c *Command) SetText(s string) {
	c.text = s
	c.mask |= FieldText
}

func (c *Command) Text() string { return c.text }

func (c *Command) SetRotation(r fixed.Rotation) {
	c.rotation = r
	c.mask |= FieldRotation
}

func (c *Command) Rotation() fixed.Rotation { return c.rotation }

// SetRaw copies b into the command.
func (c *Command) SetRaw(b []byte) {
	c.raw = append(c.raw[:0], b...)
	c.mask |= FieldRaw
}

func (c *Command) Raw() []byte { return c.raw }

// Serialize appends the wire form of c to w:
// [controllerId:1][inputCode:1][fieldMask:4][present fields in bit order].
func (c *Command) Serialize(w *packet.Writer) error {
	w.WriteUint8(c.ControllerID)
	w.WriteUint8(uint8(c.Input))
	w.WriteUint32(uint32(c.mask))

	if c.mask&FieldPosition != 0 {
		w.WriteInt16(compress(c.position.X))
		w.WriteInt16(compress(c.position.Y))
	}
	if c.mask&FieldTarget != 0 {
		w.WriteUint16(c.target)
	}
	if c.mask&FieldFlag != 0 {
		w.WriteBool(c.flag)
	}
	if c.mask&FieldCoord != 0 {
		w.WriteInt32(c.coord.X)
		w.WriteInt32(c.coord.Y)
	}
	if c.mask&FieldCount != 0 {
		w.WriteInt32(c.count)
	}
	if c.mask&FieldSelect != 0 {
		c.selection.write(w)
	}
	if c.mask&FieldGroupID != 0 {
		w.WriteUint8(c.groupID)
	}
	if c.mask&FieldText != 0 {
		w.WriteString(c.text)
	}
	if c.mask&FieldRotation != 0 {
		w.WriteInt64(c.rotation.Cos)
		w.WriteInt64(c.rotation.Sin)
	}
	if c.mask&FieldRaw != 0 {
		w.WriteByteArray(c.raw)
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("serialize command %s: %w", c.Input, err)
	}
	return nil
}

// Bytes returns the wire form of c in a fresh buffer.
func (c *Command) Bytes() ([]byte, error) {
	w := packet.NewWriter()
	if err := c.Serialize(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Reconstruct decodes one command starting at buf[start] and returns the
// number of bytes it consumed, so concatenated commands can be walked.
func (c *Command) Reconstruct(buf []byte, start int) (int, error) {
	r := packet.NewReader(nil)
	r.Reset(buf, start)
	if err := c.ReadFrom(r); err != nil {
		return 0, err
	}
	return r.Position() - start, nil
}

// ReadFrom decodes one command at the reader's cursor, replacing c's content.
func (c *Command) ReadFrom(r *packet.Reader) error {
	c.Reset()
	c.ControllerID = r.ReadUint8()
	c.Input = InputCode(r.ReadUint8())
	mask := Field(r.ReadUint32())
	if err := r.Err(); err != nil {
		return fmt.Errorf("read command header: %w", err)
	}
	if unknown := mask &^ knownFields; unknown != 0 {
		return fmt.Errorf("command %s mask %#x: %w", c.Input, uint32(unknown), ErrUnknownField)
	}
	c.mask = mask

	if mask&FieldPosition != 0 {
		c.position.X = expand(r.ReadInt16())
		c.position.Y = expand(r.ReadInt16())
	}
	if mask&FieldTarget != 0 {
		c.target = r.ReadUint16()
	}
	if mask&FieldFlag != 0 {
		c.flag = r.ReadBool()
	}
	if mask&FieldCoord != 0 {
		c.coord.X = r.ReadInt32()
		c.coord.Y = r.ReadInt32()
	}
	if mask&FieldCount != 0 {
		c.count = r.ReadInt32()
	}
	if mask&FieldSelect != 0 {
		c.selection.read(r)
	}
	if mask&FieldGroupID != 0 {
		c.groupID = r.ReadUint8()
	}
	if mask&FieldText != 0 {
		c.text = r.ReadString()
	}
	if mask&FieldRotation != 0 {
		c.rotation.Cos = r.ReadInt64()
		c.rotation.Sin = r.ReadInt64()
	}
	if mask&FieldRaw != 0 {
		c.raw = append(c.raw[:0], r.ReadByteArray()...)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read command %s fields: %w", c.Input, err)
	}
	return nil
}

// compress keeps 7 fraction bits and saturates to the int16 range.
func compress(v fixed.Fixed) int16 {
	s := v >> positionShift
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

func expand(v int16) fixed.Fixed {
	return fixed.Fixed(v) << positionShift
}

// TruncatePosition returns what a position reads back as after a round trip
// through the wire.
func TruncatePosition(v fixed.Vector2d) fixed.Vector2d {
	return fixed.Vector2d{X: expand(compress(v.X)), Y: expand(compress(v.Y))}
}
