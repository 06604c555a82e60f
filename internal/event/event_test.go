package event

import "testing"

func TestBus_EmitOrderAndCancel(t *testing.T) {
	var b Bus[int]
	var got []int

	cancelA := b.Subscribe(func(v int) { got = append(got, v*10) })
	b.Subscribe(func(v int) { got = append(got, v) })

	b.Emit(1)
	cancelA()
	b.Emit(2)

	want := []int{10, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if b.Len() != 1 {
		t.Fatalf("len=%d want 1", b.Len())
	}
}

func TestBus_CancelDuringEmit(t *testing.T) {
	var b Bus[string]
	calls := 0
	var cancel func()
	cancel = b.Subscribe(func(string) {
		calls++
		cancel()
	})
	b.Subscribe(func(string) { calls++ })

	b.Emit("x")
	b.Emit("y")

	if calls != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}

func TestBus_NilListenerIgnored(t *testing.T) {
	var b Bus[int]
	cancel := b.Subscribe(nil)
	cancel()
	b.Emit(1)
	if b.Len() != 0 {
		t.Fatalf("nil listener registered")
	}
}
