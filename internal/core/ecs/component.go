package ecs

// Store is implemented by every component store attached to a World: a
// destroyed entity's slot is removed, a reset empties the store.
type Store interface {
	Remove(id EntityID)
	Clear()
}

// DenseStore keeps one value per id in a slice. Iteration is always in
// ascending id order.
type DenseStore[T any] struct {
	data    []T
	present []bool
	count   int
}

func NewDenseStore[T any](capacity int) *DenseStore[T] {
	return &DenseStore[T]{
		data:    make([]T, 0, capacity),
		present: make([]bool, 0, capacity),
	}
}

func (s *DenseStore[T]) grow(id EntityID) {
	for int(id) >= len(s.data) {
		var zero T
		s.data = append(s.data, zero)
		s.present = append(s.present, false)
	}
}

func (s *DenseStore[T]) Set(id EntityID, v T) {
	s.grow(id)
	if !s.present[id] {
		s.count++
	}
	s.data[id] = v
	s.present[id] = true
}

func (s *DenseStore[T]) Get(id EntityID) (T, bool) {
	if !s.Has(id) {
		var zero T
		return zero, false
	}
	return s.data[id], true
}

func (s *DenseStore[T]) Remove(id EntityID) {
	if !s.Has(id) {
		return
	}
	var zero T
	s.data[id] = zero
	s.present[id] = false
	s.count--
}

func (s *DenseStore[T]) Has(id EntityID) bool {
	return int(id) < len(s.present) && s.present[id]
}

func (s *DenseStore[T]) Len() int { return s.count }

// Each visits present values in ascending id order. fn may remove the id it
// is visiting.
func (s *DenseStore[T]) Each(fn func(EntityID, T)) {
	for i := 0; i < len(s.data); i++ {
		if s.present[i] {
			fn(EntityID(i), s.data[i])
		}
	}
}

// Clear removes everything but keeps the backing arrays.
func (s *DenseStore[T]) Clear() {
	var zero T
	for i := range s.data {
		s.data[i] = zero
		s.present[i] = false
	}
	s.count = 0
}

// Each2 visits ids present in both stores, ascending.
func Each2[A, B any](sa *DenseStore[A], sb *DenseStore[B], fn func(EntityID, A, B)) {
	n := len(sa.data)
	if len(sb.data) < n {
		n = len(sb.data)
	}
	for i := 0; i < n; i++ {
		if sa.present[i] && sb.present[i] {
			fn(EntityID(i), sa.data[i], sb.data[i])
		}
	}
}
