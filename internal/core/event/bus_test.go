package event

import (
	"reflect"
	"testing"
)

type ping struct{ n int }
type pong struct{ s string }

func TestBusDeliversNextFrameInEmissionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(p ping) { got = append(got, "ping") })
	Subscribe(b, func(p pong) { got = append(got, "pong:"+p.s) })
	Subscribe(b, func(p ping) { got = append(got, "ping2") })

	Emit(b, pong{s: "a"})
	Emit(b, ping{n: 1})
	Emit(b, pong{s: "b"})

	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("delivered before swap: %v", got)
	}

	b.SwapBuffers()
	b.DispatchAll()
	want := []string{"pong:a", "ping", "ping2", "pong:b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBusEmitDuringDispatch(t *testing.T) {
	b := NewBus()
	count := 0
	Subscribe(b, func(p ping) {
		count++
		if p.n < 3 {
			Emit(b, ping{n: p.n + 1})
		}
	})
	Emit(b, ping{n: 1})
	for i := 0; i < 5; i++ {
		b.SwapBuffers()
		b.DispatchAll()
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d", b.Pending())
	}
}
