package determinism

import (
	"math"

	"github.com/l1jgo/lockstep/internal/fixed"
)

// HashSource enumerates the authoritative state of every active agent in
// ascending global id.
type HashSource interface {
	EachHashed(fn func(pos fixed.Vector2d, rot fixed.Rotation))
}

// StateHash folds the shared random stream and all agent state into one
// int32. Peers that agree on state agree on this value no matter how their
// internal arrays are laid out.
func StateHash(rng *Random, agents HashSource) int32 {
	hash := int32(rng.Peek(math.MaxInt32))
	hash++
	hash ^= AgentHash(rng, agents)
	hash++
	return hash
}

// AgentHash alternates xor and add over the per-agent contributions so that
// swapping two agents' state changes the result.
func AgentHash(rng *Random, agents HashSource) int32 {
	hash := int32(rng.Peek(math.MaxInt32))
	toggle := 0
	agents.EachHashed(func(pos fixed.Vector2d, rot fixed.Rotation) {
		n := pos.StateHash() + rot.Vector().StateHash()
		if toggle == 0 {
			hash ^= n
		} else {
			hash += n
		}
		toggle = (toggle + 1) % 2
	})
	return hash
}
