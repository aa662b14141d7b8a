package ecs

import (
	"errors"
	"testing"
)

func TestEntityPoolReusesMostRecent(t *testing.T) {
	p := NewEntityPool(8)
	for i := 0; i < 4; i++ {
		if id, err := p.Create(); err != nil || int(id) != i {
			t.Fatalf("Create #%d = %d, %v", i, id, err)
		}
	}
	p.Destroy(1)
	p.Destroy(3)
	if id, _ := p.Create(); id != 3 {
		t.Errorf("first reuse = %d, want 3", id)
	}
	if id, _ := p.Create(); id != 1 {
		t.Errorf("second reuse = %d, want 1", id)
	}
	if id, _ := p.Create(); id != 4 {
		t.Errorf("fresh id = %d, want 4", id)
	}
	if p.Generation(1) != 1 || p.Generation(0) != 0 {
		t.Errorf("generations = %d, %d", p.Generation(1), p.Generation(0))
	}
	p.Destroy(1)
	p.Destroy(1)
	if p.Len() != 4 {
		t.Errorf("double destroy changed Len to %d", p.Len())
	}
}

func TestEntityPoolCapacity(t *testing.T) {
	p := NewEntityPool(2)
	p.Create()
	p.Create()
	if _, err := p.Create(); !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
	p.Destroy(0)
	if id, err := p.Create(); err != nil || id != 0 {
		t.Errorf("Create after destroy = %d, %v", id, err)
	}
}

func TestNoDuplicateLiveIDs(t *testing.T) {
	p := NewEntityPool(1024)
	ids := make([]EntityID, 0, 100)
	for i := 0; i < 100; i++ {
		id, _ := p.Create()
		ids = append(ids, id)
	}
	for i := 0; i < 100; i += 2 {
		p.Destroy(ids[i])
	}
	for i := 0; i < 50; i++ {
		p.Create()
	}
	seen := map[EntityID]bool{}
	for id := EntityID(0); int(id) < p.Peak(); id++ {
		if p.Alive(id) {
			if seen[id] {
				t.Fatalf("id %d live twice", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 100 || p.Peak() != 100 {
		t.Errorf("live = %d, peak = %d", len(seen), p.Peak())
	}
}

func TestDenseStoreOrder(t *testing.T) {
	s := NewDenseStore[string](4)
	s.Set(9, "c")
	s.Set(2, "a")
	s.Set(5, "b")
	s.Remove(5)
	s.Set(5, "b2")
	var got []string
	s.Each(func(_ EntityID, v string) { got = append(got, v) })
	if len(got) != 3 || got[0] != "a" || got[1] != "b2" || got[2] != "c" {
		t.Errorf("Each order = %v", got)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d", s.Len())
	}

	n := NewDenseStore[int](4)
	n.Set(5, 50)
	n.Set(9, 90)
	var both []EntityID
	Each2(s, n, func(id EntityID, _ string, _ int) { both = append(both, id) })
	if len(both) != 2 || both[0] != 5 || both[1] != 9 {
		t.Errorf("Each2 = %v", both)
	}
}

func TestWorldDestroyClearsStores(t *testing.T) {
	w := NewWorld(16)
	names := NewDenseStore[string](16)
	w.Registry().Register(names)

	a, _ := w.CreateEntity()
	b, _ := w.CreateEntity()
	names.Set(a, "a")
	names.Set(b, "b")

	w.DestroyEntity(b)
	if w.Alive(b) || names.Has(b) || !names.Has(a) {
		t.Error("destroy did not remove b only")
	}
	w.Reset()
	if names.Len() != 0 || w.Len() != 0 {
		t.Error("Reset left state behind")
	}
}

func TestDestroyQueueFlushOrder(t *testing.T) {
	var q DestroyQueue[int]
	q.Push(3)
	q.Push(1)
	var got []int
	q.Flush(func(v int) {
		got = append(got, v)
		if v == 3 {
			q.Push(9)
		}
	})
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("flushed %v", got)
	}
	if q.Len() != 1 {
		t.Fatalf("pushed during flush: Len = %d", q.Len())
	}
	got = got[:0]
	q.Flush(func(v int) { got = append(got, v) })
	if len(got) != 1 || got[0] != 9 || q.Len() != 0 {
		t.Errorf("second flush %v", got)
	}
}
