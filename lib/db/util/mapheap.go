// Package util
//
// This file provides a min-heap that also supports access by key.
//
// The continuous layer uses it to track active transactions: the key is the
// transaction's sequence number and the priority its snapshot id. Peek then
// yields the oldest snapshot that is still observable, which is the watermark
// below which superseded versions of limited histories may be pruned.
//
// Complexity:
//   - O(log n) for AddItem, RemoveByKey and Pop
//   - O(1) for Peek, Contains and GetByKey
//
// Concurrency: MapHeap is not thread-safe, callers synchronize externally.
//
// Example usage:
//
//	active := NewMapHeap()
//	active.AddItem(seqNo, snapshotID)
//	if oldest, ok := active.Peek(); ok {
//	    watermark := oldest.Priority
//	}
//	active.RemoveByKey(seqNo)
package util

import (
	"container/heap"
	"strconv"
)

// Item is a single heap entry
type Item struct {
	Key      uint64 // Unique identifier for the item
	Priority uint64 // Ordering value, the smallest priority is on top
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap is a min-heap ordered by priority with O(1) lookup by key.
// Items with equal priority are ordered by key.
type MapHeap struct {
	items    []*Item
	itemsMap map[uint64]*Item
}

// NewMapHeap creates an empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[uint64]*Item),
	}
}

// Len returns the number of items (part of heap.Interface)
func (mh *MapHeap) Len() int { return len(mh.items) }

// Less orders by priority, then by key (part of heap.Interface)
func (mh *MapHeap) Less(i, j int) bool {
	if mh.items[i].Priority == mh.items[j].Priority {
		return mh.items[i].Key < mh.items[j].Key
	}
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push appends an item (part of heap.Interface, use AddItem instead)
func (mh *MapHeap) Push(x interface{}) {
	it := x.(*Item)
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

// Pop removes the last item (part of heap.Interface, use heap.Pop or RemoveByKey instead)
func (mh *MapHeap) Pop() interface{} {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// AddItem adds a new item or updates the priority of an existing one
func (mh *MapHeap) AddItem(key, priority uint64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &Item{
		Key:      key,
		Priority: priority,
	})
}

// RemoveByKey removes an item by its key and returns its priority
func (mh *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// Peek returns the item with the smallest priority without removing it
func (mh *MapHeap) Peek() (*Item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// Contains checks if a key exists in the heap
func (mh *MapHeap) Contains(key uint64) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap) GetByKey(key uint64) (*Item, bool) {
	it, exists := mh.itemsMap[key]
	return it, exists
}
