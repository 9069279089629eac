package listeners

import "testing"

func TestRegistryEmitsInSubscriptionOrder(t *testing.T) {
	var r Registry[int]
	var got []int
	r.Add(func(v int) { got = append(got, v*10+1) })
	r.Add(func(v int) { got = append(got, v*10+2) })
	r.Emit(3)
	if len(got) != 2 || got[0] != 31 || got[1] != 32 {
		t.Fatalf("got %v", got)
	}
}

func TestRegistryRemoveIsIdempotentAndTokenScoped(t *testing.T) {
	var r Registry[string]
	a, b := 0, 0
	same := func(string) { a++ }
	unsubscribeA := r.Add(same)
	r.Add(same)
	r.Add(func(string) { b++ })

	unsubscribeA()
	unsubscribeA()
	r.Emit("x")

	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestRegistrySubscribeDuringEmitWaitsForNextEvent(t *testing.T) {
	var r Registry[int]
	late := 0
	r.Add(func(int) {
		r.Add(func(int) { late++ })
	})
	r.Emit(1)
	if late != 0 {
		t.Fatalf("listener added mid-emit ran in the same emit")
	}
	r.Emit(2)
	if late != 1 {
		t.Fatalf("late=%d want=1", late)
	}
}

func TestRegistryEmpty(t *testing.T) {
	var r Registry[int]
	if !r.Empty() {
		t.Fatalf("new registry not empty")
	}
	unsubscribe := r.Add(func(int) {})
	if r.Empty() {
		t.Fatalf("registry empty after Add")
	}
	unsubscribe()
	if !r.Empty() {
		t.Fatalf("registry not empty after unsubscribe")
	}
}
