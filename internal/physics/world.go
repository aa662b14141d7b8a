package physics

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// MaxSimObjects bounds the body id space; it is also the PairKey stride.
const MaxSimObjects = 5000

var ErrCapacity = errors.New("physics: simulation object limit reached")

// Config lays out the partition grid.
type Config struct {
	Origin    fixed.Vector2d
	CellShift uint
	Width     int
	Height    int
}

// World owns every assimilated body, the partition and the pair cache.
// Accessed only from the simulation goroutine.
type World struct {
	log       *zap.Logger
	ids       *ecs.EntityPool
	bodies    *ecs.DenseStore[*Body]
	partition *Partition

	pairs map[int]*Pair
	// live holds active pairs in creation order; iteration never touches the map.
	live []*Pair

	ignore [32]uint32
	frame  int
	stamp  uint32
	dirty  bool

	onBegin func(a, b *Body)
	onEnd   func(a, b *Body)
	scratch []ecs.EntityID
}

func NewWorld(cfg Config, log *zap.Logger) *World {
	return &World{
		log:       log,
		ids:       ecs.NewEntityPool(MaxSimObjects),
		bodies:    ecs.NewDenseStore[*Body](256),
		partition: NewPartition(cfg.Origin, cfg.CellShift, cfg.Width, cfg.Height),
		pairs:     make(map[int]*Pair, 256),
		live:      make([]*Pair, 0, 256),
		scratch:   make([]ecs.EntityID, 0, 64),
	}
}

func (w *World) Partition() *Partition { return w.partition }

// Frame is the number of completed physics steps.
func (w *World) Frame() int { return w.frame }

// OnContactBegin and OnContactEnd install contact transition hooks. Both see
// the lower id body first.
func (w *World) OnContactBegin(fn func(a, b *Body)) { w.onBegin = fn }
func (w *World) OnContactEnd(fn func(a, b *Body))   { w.onEnd = fn }

// IgnoreLayerCollision toggles whether bodies on layers a and b can pair.
func (w *World) IgnoreLayerCollision(a, b uint8, ignore bool) {
	a, b = a&31, b&31
	if ignore {
		w.ignore[a] |= 1 << b
		w.ignore[b] |= 1 << a
	} else {
		w.ignore[a] &^= 1 << b
		w.ignore[b] &^= 1 << a
	}
}

func (w *World) layersCollide(a, b uint8) bool {
	return w.ignore[a&31]&(1<<(b&31)) == 0
}

// RequireCollisionPair reports whether two bodies are allowed to interact.
func (w *World) RequireCollisionPair(a, b *Body) bool {
	return w.layersCollide(a.Layer, b.Layer) &&
		!(a.Immovable && b.Immovable) &&
		!(a.Trigger && b.Trigger) &&
		a.Shape != ShapeNone && b.Shape != ShapeNone
}

// Assimilate adds a body to simulation and assigns its id.
func (w *World) Assimilate(b *Body) error {
	if b.active {
		return fmt.Errorf("assimilate body %d: already active", b.id)
	}
	id, err := w.ids.Create()
	if err != nil {
		return fmt.Errorf("assimilate body: %w", ErrCapacity)
	}
	b.id = id
	b.active = true
	w.bodies.Set(id, b)
	w.dirty = true
	return nil
}

// Dessimilate removes a body and deactivates every pair it took part in.
func (w *World) Dessimilate(b *Body) {
	if !b.active {
		return
	}
	id := b.id
	kept := w.live[:0]
	for _, p := range w.live {
		if p.Involves(id) {
			if p.inContact && w.onEnd != nil {
				w.onEnd(w.body(p.A), w.body(p.B))
			}
			p.Deactivate()
			delete(w.pairs, p.Key)
			continue
		}
		kept = append(kept, p)
	}
	clear(w.live[len(kept):])
	w.live = kept

	w.bodies.Remove(id)
	w.ids.Destroy(id)
	b.active = false
	w.dirty = true
}

func (w *World) body(id ecs.EntityID) *Body {
	b, _ := w.bodies.Get(id)
	return b
}

// Body looks up an active body by id.
func (w *World) Body(id ecs.EntityID) (*Body, bool) {
	return w.bodies.Get(id)
}

// Len is the number of active bodies.
func (w *World) Len() int { return w.bodies.Len() }

// Pair returns the cached pair for two ids, if any.
func (w *World) Pair(a, b ecs.EntityID) (*Pair, bool) {
	p, ok := w.pairs[PairKey(a, b)]
	return p, ok
}

// PairCount is the number of live pairs in the cache.
func (w *World) PairCount() int { return len(w.live) }

// Rebuild re-buckets every body into the partition in ascending id.
func (w *World) Rebuild() {
	w.partition.Clear()
	w.bodies.Each(func(id ecs.EntityID, b *Body) {
		min, max := b.Bounds()
		w.partition.Insert(id, min, max)
	})
	w.dirty = false
}

// Step advances physics by one frame: integrate velocities, rebuild the
// partition, find and resolve contacts, then close contacts that ended and
// release pairs whose bodies no longer share a cell.
func (w *World) Step() {
	w.bodies.Each(func(_ ecs.EntityID, b *Body) {
		if !b.Immovable && b.Velocity != fixed.Zero {
			b.Position.AddInPlace(b.Velocity)
		}
	})
	w.Rebuild()

	frame := w.frame
	for cy := 0; cy < w.partition.height; cy++ {
		for cx := 0; cx < w.partition.width; cx++ {
			cell := w.partition.Cell(cx, cy)
			for i := 0; i < len(cell); i++ {
				a := w.body(cell[i])
				for j := i + 1; j < len(cell); j++ {
					b := w.body(cell[j])
					if !w.RequireCollisionPair(a, b) {
						continue
					}
					w.check(a, b, frame)
				}
			}
		}
	}

	kept := w.live[:0]
	for _, p := range w.live {
		if p.inContact && p.touched != frame {
			p.inContact = false
			p.Ends++
			if w.onEnd != nil {
				w.onEnd(w.body(p.A), w.body(p.B))
			}
		}
		// bodies no longer share a cell
		if p.checked != frame {
			p.Deactivate()
			delete(w.pairs, p.Key)
			continue
		}
		kept = append(kept, p)
	}
	clear(w.live[len(kept):])
	w.live = kept
	w.frame++
}

// check runs the narrow phase for a candidate pair once per frame.
func (w *World) check(a, b *Body, frame int) {
	key := PairKey(a.id, b.id)
	p, ok := w.pairs[key]
	if !ok {
		p = newPair(a.id, b.id)
		w.pairs[key] = p
		w.live = append(w.live, p)
	}
	if p.checked == frame {
		return
	}
	p.checked = frame

	if a.id > b.id {
		a, b = b, a
	}
	if !a.HeightOverlaps(b) {
		return
	}
	c, hit := collide(a, b)
	if !hit {
		return
	}
	p.touched = frame
	if !p.inContact {
		p.inContact = true
		p.Begins++
		if w.onBegin != nil {
			w.onBegin(a, b)
		}
	}
	if a.Trigger || b.Trigger {
		return
	}
	resolve(a, b, c)
}

// QueryRadius visits active bodies whose center lies within r of pos, in
// ascending id order. fn must not start another query.
func (w *World) QueryRadius(pos fixed.Vector2d, r fixed.Fixed, fn func(*Body)) {
	if w.dirty {
		w.Rebuild()
	}
	rr := fixed.Mul(r, r)
	ext := fixed.Vector2d{X: r, Y: r}
	x0, y0, x1, y1, ok := w.partition.cellRange(pos.Sub(ext), pos.Add(ext))
	if !ok {
		return
	}
	w.stamp++
	found := w.scratch[:0]
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			for _, id := range w.partition.Cell(cx, cy) {
				b := w.body(id)
				if b == nil || b.stamp == w.stamp {
					continue
				}
				b.stamp = w.stamp
				if b.Position.SqrDistance(pos) <= rr {
					found = insertSorted(found, id)
				}
			}
		}
	}
	w.scratch = found
	for _, id := range found {
		if b := w.body(id); b != nil {
			fn(b)
		}
	}
}

func insertSorted(ids []ecs.EntityID, id ecs.EntityID) []ecs.EntityID {
	i := len(ids)
	ids = append(ids, id)
	for i > 0 && ids[i-1] > id {
		ids[i] = ids[i-1]
		i--
	}
	ids[i] = id
	return ids
}

// Reset drops every body and pair.
func (w *World) Reset() {
	w.bodies.Each(func(_ ecs.EntityID, b *Body) { b.active = false })
	w.bodies.Clear()
	w.ids.Reset()
	w.partition.Clear()
	clear(w.pairs)
	clear(w.live)
	w.live = w.live[:0]
	w.frame = 0
	w.dirty = false
	w.log.Debug("物理世界已重置")
}
