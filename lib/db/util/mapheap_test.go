package util

import (
	"container/heap"
	"testing"
)

func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

func TestAddItem(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, key := range []uint64{1, 2, 3} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %d", key)
		}
	}

	it, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}
	if it.Key != 3 || it.Priority != 50 {
		t.Errorf("Expected min item to be (3,50), got %s", it)
	}
}

func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(1, 300)

	it, exists := mh.GetByKey(1)
	if !exists {
		t.Fatal("Item with key 1 should exist")
	}
	if it.Priority != 300 {
		t.Errorf("Item with key 1 should have priority 300, got %d", it.Priority)
	}

	if min, _ := mh.Peek(); min.Key != 2 {
		t.Errorf("Min item should now be key 2, got %d", min.Key)
	}
}

func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 300)

	priority, exists := mh.RemoveByKey(2)
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if priority != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", priority)
	}
	if mh.Contains(2) || mh.Len() != 2 {
		t.Errorf("Key 2 should be gone and 2 items remain, got len %d", mh.Len())
	}

	if _, exists = mh.RemoveByKey(99); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

func TestEqualPrioritiesOrderByKey(t *testing.T) {
	mh := NewMapHeap()

	// three transactions started on the same snapshot
	mh.AddItem(7, 10)
	mh.AddItem(5, 10)
	mh.AddItem(6, 10)

	for _, want := range []uint64{5, 6, 7} {
		it := heap.Pop(mh).(*Item)
		if it.Key != want {
			t.Errorf("expected key %d, got %d", want, it.Key)
		}
	}
}

// TestWatermark simulates the active transaction table: the smallest
// snapshot stays on top until its transaction ends.
func TestWatermark(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 4) // seq 1, snapshot 4
	mh.AddItem(2, 4) // seq 2, snapshot 4
	mh.AddItem(3, 6) // seq 3, snapshot 6

	if it, _ := mh.Peek(); it.Priority != 4 {
		t.Fatalf("watermark should be 4, got %d", it.Priority)
	}

	mh.RemoveByKey(1)
	if it, _ := mh.Peek(); it.Priority != 4 {
		t.Fatalf("watermark should still be 4, got %d", it.Priority)
	}

	mh.RemoveByKey(2)
	if it, _ := mh.Peek(); it.Priority != 6 {
		t.Fatalf("watermark should advance to 6, got %d", it.Priority)
	}

	mh.RemoveByKey(3)
	if _, ok := mh.Peek(); ok {
		t.Fatal("heap should be empty")
	}
}

func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap()
	const n = 10000

	for i := uint64(n); i > 0; i-- {
		mh.AddItem(i, i*2)
	}
	for i := uint64(1); i <= n; i += 2 {
		mh.RemoveByKey(i)
	}

	prev := uint64(0)
	for mh.Len() > 0 {
		it := heap.Pop(mh).(*Item)
		if it.Priority < prev {
			t.Fatalf("heap order violated: %d after %d", it.Priority, prev)
		}
		if it.Key%2 != 0 {
			t.Fatalf("removed key %d popped", it.Key)
		}
		prev = it.Priority
	}
}
