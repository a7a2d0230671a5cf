// Package bptree implements an in-memory B+ tree.
//
// Values live only in leaves and leaves are linked left-to-right so that
// ordered scans don't need to touch internal nodes. Nodes are stored in an
// arena (a slice) and refer to each other by index, including the
// leaf-to-leaf "next" link.
//
// Delete doesn't redistribute or merge under-full nodes. Leaves can become
// sparse (or empty) after many deletes; lookups and scans stay correct, the
// tree just doesn't shrink. The only recovery is resetting the tree to a
// single empty leaf once the root leaf itself is empty.
//
// A Tree is not safe for concurrent use.
package bptree

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// MinOrder is the smallest supported order (max children per internal node)
const MinOrder = 3

// ErrInvalidOrder is returned by New for order < MinOrder
var ErrInvalidOrder = errors.New("bptree: order must be at least 3")

const noNode = -1

// Entry is a key / value pair returned by scans
type Entry[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

type node[K cmp.Ordered, V any] struct {
	leaf bool
	keys []K
	// leaf only, len(values) == len(keys)
	values []V
	// internal only, len(children) == len(keys)+1
	// keys[i] is the smallest key reachable through children[i+1]
	children []int
	// leaf only, index of the next leaf or noNode
	next int
}

type Tree[K cmp.Ordered, V any] struct {
	order     int
	nodes     []node[K, V]
	root      int
	firstLeaf int
}

// New creates an empty tree. order is the maximum number of children
// of an internal node; a leaf holds at most order-1 keys.
func New[K cmp.Ordered, V any](order int) (*Tree[K, V], error) {
	if order < MinOrder {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidOrder, order)
	}
	t := &Tree[K, V]{
		order: order,
	}
	t.reset()
	return t, nil
}

func (t *Tree[K, V]) reset() {
	t.nodes = t.nodes[:0]
	t.root = t.newLeaf()
	t.firstLeaf = t.root
}

// Order returns the order the tree was created with
func (t *Tree[K, V]) Order() int {
	return t.order
}

// newLeaf / newInternal append to the arena which might re-allocate it
// so callers must not hold *node pointers across these calls
func (t *Tree[K, V]) newLeaf() int {
	t.nodes = append(t.nodes, node[K, V]{leaf: true, next: noNode})
	return len(t.nodes) - 1
}

func (t *Tree[K, V]) newInternal() int {
	t.nodes = append(t.nodes, node[K, V]{next: noNode})
	return len(t.nodes) - 1
}

// childIndex returns the index of the child to descend into:
// the first i for which key < keys[i]
func childIndex[K cmp.Ordered](keys []K, key K) int {
	i, found := slices.BinarySearch(keys, key)
	if found {
		return i + 1
	}
	return i
}

// findLeaf descends from the root to the leaf that should hold key.
// If path is not nil, indexes of visited internal nodes are appended to it,
// root first.
func (t *Tree[K, V]) findLeaf(key K, path *[]int) int {
	n := t.root
	for !t.nodes[n].leaf {
		if path != nil {
			*path = append(*path, n)
		}
		nd := &t.nodes[n]
		n = nd.children[childIndex(nd.keys, key)]
	}
	return n
}

// Insert adds key with value. If key already exists its value is replaced.
func (t *Tree[K, V]) Insert(key K, value V) {
	var path []int
	leafIdx := t.findLeaf(key, &path)
	leaf := &t.nodes[leafIdx]
	i, found := slices.BinarySearch(leaf.keys, key)
	if found {
		leaf.values[i] = value
		return
	}
	if len(leaf.keys) < t.order-1 {
		leaf.keys = slices.Insert(leaf.keys, i, key)
		leaf.values = slices.Insert(leaf.values, i, value)
		return
	}

	// the leaf is full: split it and put the key in the half it belongs to
	rightIdx := t.splitLeaf(leafIdx)
	target := leafIdx
	if key >= t.nodes[rightIdx].keys[0] {
		target = rightIdx
	}
	nd := &t.nodes[target]
	i, _ = slices.BinarySearch(nd.keys, key)
	nd.keys = slices.Insert(nd.keys, i, key)
	nd.values = slices.Insert(nd.values, i, value)

	t.insertIntoParent(path, leafIdx, t.nodes[rightIdx].keys[0], rightIdx)
}

// splitLeaf moves keys [mid, end) of a full leaf into a new leaf linked
// right after it and returns the new leaf's index
func (t *Tree[K, V]) splitLeaf(leafIdx int) int {
	rightIdx := t.newLeaf()
	left := &t.nodes[leafIdx]
	right := &t.nodes[rightIdx]
	mid := (t.order - 1) / 2

	right.keys = slices.Clone(left.keys[mid:])
	right.values = slices.Clone(left.values[mid:])
	left.keys = slices.Clip(left.keys[:mid])
	left.values = slices.Clip(left.values[:mid])

	right.next = left.next
	left.next = rightIdx
	return rightIdx
}

// insertIntoParent links newChild (whose smallest key is key) as the right
// sibling of child. path holds the ancestors of child, root first.
func (t *Tree[K, V]) insertIntoParent(path []int, child int, key K, newChild int) {
	if len(path) == 0 {
		// child was the root
		r := t.newInternal()
		root := &t.nodes[r]
		root.keys = []K{key}
		root.children = []int{child, newChild}
		t.root = r
		return
	}

	parentIdx := path[len(path)-1]
	parent := &t.nodes[parentIdx]
	i := 0
	for i < len(parent.keys) && key > parent.keys[i] {
		i++
	}
	parent.keys = slices.Insert(parent.keys, i, key)
	parent.children = slices.Insert(parent.children, i+1, newChild)
	if len(parent.keys) < t.order {
		return
	}

	// split the internal node, the middle key moves one level up
	mid := t.order / 2
	rightIdx := t.newInternal()
	parent = &t.nodes[parentIdx]
	right := &t.nodes[rightIdx]
	upKey := parent.keys[mid]

	right.keys = slices.Clone(parent.keys[mid+1:])
	right.children = slices.Clone(parent.children[mid+1:])
	parent.keys = slices.Clip(parent.keys[:mid])
	parent.children = slices.Clip(parent.children[:mid+1])

	t.insertIntoParent(path[:len(path)-1], parentIdx, upKey, rightIdx)
}

// Search returns the value for key
func (t *Tree[K, V]) Search(key K) (V, bool) {
	leaf := &t.nodes[t.findLeaf(key, nil)]
	if i, found := slices.BinarySearch(leaf.keys, key); found {
		return leaf.values[i], true
	}
	var zero V
	return zero, false
}

// Delete removes key from its leaf. Returns false if key wasn't present.
// Under-full nodes are not rebalanced.
func (t *Tree[K, V]) Delete(key K) bool {
	leafIdx := t.findLeaf(key, nil)
	leaf := &t.nodes[leafIdx]
	i, found := slices.BinarySearch(leaf.keys, key)
	if !found {
		return false
	}
	leaf.keys = slices.Delete(leaf.keys, i, i+1)
	leaf.values = slices.Delete(leaf.values, i, i+1)
	if leafIdx == t.root && len(leaf.keys) == 0 {
		t.reset()
	}
	return true
}

// Ascend calls fn for every entry in ascending key order until fn
// returns false
func (t *Tree[K, V]) Ascend(fn func(key K, value V) bool) {
	for n := t.firstLeaf; n != noNode; n = t.nodes[n].next {
		leaf := &t.nodes[n]
		for i, k := range leaf.keys {
			if !fn(k, leaf.values[i]) {
				return
			}
		}
	}
}

// RangeQuery returns entries with lo <= key <= hi in ascending key order
func (t *Tree[K, V]) RangeQuery(lo, hi K) []Entry[K, V] {
	var res []Entry[K, V]
	if lo > hi {
		return res
	}
	for n := t.findLeaf(lo, nil); n != noNode; n = t.nodes[n].next {
		leaf := &t.nodes[n]
		start, _ := slices.BinarySearch(leaf.keys, lo)
		for i := start; i < len(leaf.keys); i++ {
			k := leaf.keys[i]
			if k > hi {
				return res
			}
			res = append(res, Entry[K, V]{Key: k, Value: leaf.values[i]})
		}
	}
	return res
}

// All returns all entries in ascending key order
func (t *Tree[K, V]) All() []Entry[K, V] {
	var res []Entry[K, V]
	t.Ascend(func(k K, v V) bool {
		res = append(res, Entry[K, V]{Key: k, Value: v})
		return true
	})
	return res
}

// Size returns number of entries. It walks the leaves so it's O(n).
func (t *Tree[K, V]) Size() int {
	n := 0
	for l := t.firstLeaf; l != noNode; l = t.nodes[l].next {
		n += len(t.nodes[l].keys)
	}
	return n
}

// IsEmpty returns true if the tree has no entries
func (t *Tree[K, V]) IsEmpty() bool {
	return t.Size() == 0
}

// Height returns number of levels, 1 for a tree that is a single leaf
func (t *Tree[K, V]) Height() int {
	h := 1
	for n := t.root; !t.nodes[n].leaf; n = t.nodes[n].children[0] {
		h++
	}
	return h
}
