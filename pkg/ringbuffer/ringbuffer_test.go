package ringbuffer

import (
	"reflect"
	"testing"
)

func TestPushUnderCapacity(t *testing.T) {
	rb := New[int](5)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)

	if rb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rb.Len())
	}
	if got := rb.Items(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("Items() = %v, want [1 2 3]", got)
	}
}

func TestPushEvictsOldestAtCapacity(t *testing.T) {
	rb := New[int](3)
	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	if rb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rb.Len())
	}
	if got := rb.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("Items() = %v, want [3 4 5]", got)
	}
	if last, ok := rb.Last(); !ok || last != 5 {
		t.Errorf("Last() = %v, %v, want 5, true", last, ok)
	}
}

func TestCapacityInvariant(t *testing.T) {
	const capacity = 4
	rb := New[int](capacity)
	for n := 0; n < 20; n++ {
		rb.Push(n)
		want := n + 1
		if want > capacity {
			want = capacity
		}
		if rb.Len() != want {
			t.Fatalf("after %d pushes: Len() = %d, want %d", n+1, rb.Len(), want)
		}
	}
}

func TestIsEmptyAndIsFull(t *testing.T) {
	rb := New[string](2)
	if !rb.IsEmpty() {
		t.Error("IsEmpty() = false on fresh buffer")
	}
	rb.Push("a")
	rb.Push("b")
	if !rb.IsFull() {
		t.Error("IsFull() = false at capacity")
	}
	rb.Clear()
	if !rb.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(0) did not panic")
		}
	}()
	New[int](0)
}
