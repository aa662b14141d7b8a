// Package determinism holds everything peers compare to prove they still agree:
// the shared random stream, the per-frame state hash, desync monitoring and
// diagnostic snapshots.
package determinism

// Random is a seeded xorshift64* generator. Every peer seeds it with the
// match seed and draws from it only inside simulation phases.
type Random struct {
	state uint64
}

const defaultSeed = 0x9E3779B97F4A7C15

func NewRandom(seed uint64) *Random {
	r := &Random{}
	r.Seed(seed)
	return r
}

// Seed restarts the stream. A zero seed is replaced by a fixed constant since
// xorshift never leaves the zero state.
func (r *Random) Seed(seed uint64) {
	if seed == 0 {
		seed = defaultSeed
	}
	r.state = seed
}

// State returns the raw generator state for snapshots.
func (r *Random) State() uint64 { return r.state }

func step(x uint64) (next, out uint64) {
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	return x, x * 2685821657736338717
}

// Next advances the stream and returns 64 random bits.
func (r *Random) Next() uint64 {
	var out uint64
	r.state, out = step(r.state)
	return out
}

// Range returns a value in [0, max). max <= 0 yields 0 without advancing.
func (r *Random) Range(max int64) int64 {
	if max <= 0 {
		return 0
	}
	return int64(r.Next()>>1) % max
}

// Between returns a value in [min, max).
func (r *Random) Between(min, max int64) int64 {
	return min + r.Range(max-min)
}

// Peek returns what Range(max) would return without advancing.
func (r *Random) Peek(max int64) int64 {
	if max <= 0 {
		return 0
	}
	_, out := step(r.state)
	return int64(out>>1) % max
}
