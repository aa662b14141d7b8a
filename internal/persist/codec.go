package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/net/packet"
)

// EncodeFrame packs one merged influence frame: each batch's wire form in a
// length-prefixed frame, the whole stream lz4-compressed.
func EncodeFrame(batches []*command.Batch) ([]byte, error) {
	var raw bytes.Buffer
	for _, b := range batches {
		data, err := b.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := packet.WriteFrame(&raw, data); err != nil {
			return nil, err
		}
	}
	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(payload []byte) ([]*command.Batch, error) {
	zr := lz4.NewReader(bytes.NewReader(payload))
	var batches []*command.Batch
	for {
		data, err := packet.ReadFrame(zr)
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decompress frame: %w", err)
		}
		b, err := command.DecodeBatch(data)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
}
