package ecs

// World owns an id pool and the component stores keyed by those ids.
type World struct {
	pool     *EntityPool
	registry *Registry
}

func NewWorld(limit int) *World {
	return &World{
		pool:     NewEntityPool(limit),
		registry: NewRegistry(),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() (EntityID, error) {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// DestroyEntity clears the entity's components and retires its id.
func (w *World) DestroyEntity(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
}

// Len is the number of live entities.
func (w *World) Len() int { return w.pool.Len() }

// Reset forgets every entity and empties every clearable store.
func (w *World) Reset() {
	w.pool.Reset()
	w.registry.ClearAll()
}

// DestroyQueue defers finalization of destroyed values to the cleanup phase
// at the end of the tick.
type DestroyQueue[T any] struct {
	items []T
	spare []T
}

func (q *DestroyQueue[T]) Push(v T) { q.items = append(q.items, v) }

func (q *DestroyQueue[T]) Len() int { return len(q.items) }

// Flush hands every queued value to fn in push order. Values pushed by fn
// wait for the next flush.
func (q *DestroyQueue[T]) Flush(fn func(T)) {
	batch := q.items
	q.items = q.spare[:0]
	for _, v := range batch {
		fn(v)
	}
	clear(batch)
	q.spare = batch[:0]
}

// Reset drops queued values without finalizing them.
func (q *DestroyQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}
