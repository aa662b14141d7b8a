package determinism

import "fmt"

// Tunables is an explicit registry of simulation-relevant values that can be
// changed at runtime and restored to their base. Each entry binds a getter and
// setter so the owning struct keeps plain typed fields.
type Tunables struct {
	entries []tunable
	index   map[string]int
}

type tunable struct {
	name string
	get  func() int64
	set  func(int64)
	base int64
}

func NewTunables() *Tunables {
	return &Tunables{index: make(map[string]int)}
}

// Register binds a named value. Its current value becomes the base.
// Registering the same name twice panics; names are fixed at setup time.
func (t *Tunables) Register(name string, get func() int64, set func(int64)) {
	if _, dup := t.index[name]; dup {
		panic(fmt.Sprintf("determinism: tunable %q registered twice", name))
	}
	t.index[name] = len(t.entries)
	t.entries = append(t.entries, tunable{name: name, get: get, set: set, base: get()})
}

// RegisterInt64 binds a pointer to an int64 or fixed.Fixed field.
func (t *Tunables) RegisterInt64(name string, p *int64) {
	t.Register(name, func() int64 { return *p }, func(v int64) { *p = v })
}

// RegisterInt binds a pointer to an int field.
func (t *Tunables) RegisterInt(name string, p *int) {
	t.Register(name, func() int64 { return int64(*p) }, func(v int64) { *p = int(v) })
}

// RegisterBool binds a pointer to a bool field.
func (t *Tunables) RegisterBool(name string, p *bool) {
	t.Register(name,
		func() int64 {
			if *p {
				return 1
			}
			return 0
		},
		func(v int64) { *p = v != 0 })
}

func (t *Tunables) Get(name string) (int64, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.entries[i].get(), true
}

// Set changes the live value. It reports false for unknown names.
func (t *Tunables) Set(name string, v int64) bool {
	i, ok := t.index[name]
	if !ok {
		return false
	}
	t.entries[i].set(v)
	return true
}

// Base returns the value Reset restores.
func (t *Tunables) Base(name string) (int64, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.entries[i].base, true
}

// SetBase changes what Reset restores without touching the live value.
func (t *Tunables) SetBase(name string, v int64) bool {
	i, ok := t.index[name]
	if !ok {
		return false
	}
	t.entries[i].base = v
	return true
}

// Reset restores one value to its base.
func (t *Tunables) Reset(name string) bool {
	i, ok := t.index[name]
	if !ok {
		return false
	}
	e := &t.entries[i]
	e.set(e.base)
	return true
}

// ResetAll restores every value in registration order.
func (t *Tunables) ResetAll() {
	for i := range t.entries {
		e := &t.entries[i]
		e.set(e.base)
	}
}

// Len is the number of registered values.
func (t *Tunables) Len() int { return len(t.entries) }

// Hash folds every live value in registration order.
func (t *Tunables) Hash() int32 {
	var h int32 = 17
	for i := range t.entries {
		v := t.entries[i].get()
		h = h*31 + int32(v^(v>>32))
	}
	return h
}
