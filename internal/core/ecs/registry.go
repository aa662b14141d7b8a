package ecs

// Registry is the list of stores a World keeps in step with its id pool.
type Registry struct {
	stores []Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make([]Store, 0, 8)}
}

func (r *Registry) Register(store Store) { r.stores = append(r.stores, store) }

// Len is the number of attached stores.
func (r *Registry) Len() int { return len(r.stores) }

// RemoveAll drops id from every store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}

// ClearAll empties every store.
func (r *Registry) ClearAll() {
	for _, s := range r.stores {
		s.Clear()
	}
}
