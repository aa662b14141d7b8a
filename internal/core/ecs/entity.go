package ecs

import "errors"

// ErrCapacity is returned when a pool has no id left below its ceiling.
var ErrCapacity = errors.New("ecs: id space exhausted")

// EntityID is a dense index. Retired ids are handed out again most recent
// first, so allocation order depends only on the create/destroy sequence.
type EntityID uint16

// EntityPool allocates dense ids below a ceiling with a LIFO free list. Each
// slot carries a generation that advances on every release so holders of a
// stale (id, generation) pair can detect reuse.
type EntityPool struct {
	limit       int
	generations []uint32
	live        []bool
	freeList    []EntityID
	count       int
}

// NewEntityPool returns a pool that never hands out an id >= limit.
func NewEntityPool(limit int) *EntityPool {
	return &EntityPool{
		limit:       limit,
		generations: make([]uint32, 0, 256),
		live:        make([]bool, 0, 256),
		freeList:    make([]EntityID, 0, 64),
	}
}

// Create returns the most recently retired id, or the next unused one.
func (p *EntityPool) Create() (EntityID, error) {
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.live[id] = true
		p.count++
		return id, nil
	}
	idx := len(p.generations)
	if idx >= p.limit {
		return 0, ErrCapacity
	}
	p.generations = append(p.generations, 0)
	p.live = append(p.live, true)
	p.count++
	return EntityID(idx), nil
}

// Alive reports whether id is currently handed out.
func (p *EntityPool) Alive(id EntityID) bool {
	return int(id) < len(p.live) && p.live[id]
}

// Generation returns the reuse counter of a slot.
func (p *EntityPool) Generation(id EntityID) uint32 {
	if int(id) >= len(p.generations) {
		return 0
	}
	return p.generations[id]
}

// Destroy retires id. Retiring a free id is a no-op.
func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return
	}
	p.live[id] = false
	p.generations[id]++
	p.freeList = append(p.freeList, id)
	p.count--
}

// Len is the number of live ids.
func (p *EntityPool) Len() int { return p.count }

// Peak is one past the highest id ever handed out.
func (p *EntityPool) Peak() int { return len(p.generations) }

// Limit is the ceiling passed to NewEntityPool.
func (p *EntityPool) Limit() int { return p.limit }

// Reset forgets every id. Generations restart at zero.
func (p *EntityPool) Reset() {
	p.generations = p.generations[:0]
	p.live = p.live[:0]
	p.freeList = p.freeList[:0]
	p.count = 0
}
