package determinism

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// AgentState is one agent's authoritative state inside a Snapshot.
type AgentState struct {
	GlobalID   uint16 `msgpack:"gid"`
	LocalID    uint16 `msgpack:"lid"`
	Controller uint8  `msgpack:"ctl"`
	Code       string `msgpack:"code"`
	X          int64  `msgpack:"x"`
	Y          int64  `msgpack:"y"`
	Cos        int64  `msgpack:"cos"`
	Sin        int64  `msgpack:"sin"`
	Tunables   int32  `msgpack:"tun"`
}

// Snapshot is a diagnostic dump taken when peers disagree. It is never read
// back into a simulation.
type Snapshot struct {
	Frame     int          `msgpack:"frame"`
	Hash      int32        `msgpack:"hash"`
	RandState uint64       `msgpack:"rng"`
	Agents    []AgentState `msgpack:"agents"`
}

// Encode packs the snapshot with msgpack.
func (s *Snapshot) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot frame %d: %w", s.Frame, err)
	}
	return b, nil
}

// DecodeSnapshot unpacks a snapshot produced by Encode.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// Diff lists the global ids whose state differs between two snapshots,
// including agents present in only one of them.
func Diff(a, b *Snapshot) []uint16 {
	index := make(map[uint16]AgentState, len(b.Agents))
	for _, s := range b.Agents {
		index[s.GlobalID] = s
	}
	var out []uint16
	for _, s := range a.Agents {
		o, ok := index[s.GlobalID]
		if !ok || o != s {
			out = append(out, s.GlobalID)
		}
		delete(index, s.GlobalID)
	}
	for _, s := range b.Agents {
		if _, ok := index[s.GlobalID]; ok {
			out = append(out, s.GlobalID)
		}
	}
	return out
}
