package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// restingOrder is a maker's unmatched quantity sitting at one price tick.
// Quantity is shares for a sell order and collateral for a buy order.
type restingOrder struct {
	id       common.Hash
	maker    common.Address
	quantity *big.Int
	placedAt time.Time
}

// handle is a stable reference to a live queue node. The generation counter
// invalidates handles to freed arena slots.
type handle struct {
	idx int32
	gen uint32
}

// Sentinel slots occupy the first two arena positions of every queue.
const (
	headSlot int32 = 0
	tailSlot int32 = 1
)

type fifoNode struct {
	prev, next int32
	gen        uint32
	live       bool
	order      restingOrder
}

// fifoQueue is an ordered list of resting orders at one price tick: a
// doubly-linked list over an array-backed arena with explicit head/tail
// sentinel slots and a free list. Append and removal by handle are O(1);
// iteration runs oldest to newest.
type fifoQueue struct {
	arena []fifoNode
	free  []int32
	ready bool
}

// init links the two sentinels to each other and marks the queue live.
// Queues are initialized lazily the first time a price tick is used;
// re-initializing a live queue is a no-op.
func (q *fifoQueue) init() {
	if q.ready {
		return
	}
	q.arena = make([]fifoNode, 2, 8)
	q.arena[headSlot] = fifoNode{prev: headSlot, next: tailSlot}
	q.arena[tailSlot] = fifoNode{prev: headSlot, next: tailSlot}
	q.ready = true
}

// append inserts the order before the tail sentinel and returns its handle.
func (q *fifoQueue) append(o restingOrder) handle {
	var idx int32
	if n := len(q.free); n > 0 {
		idx = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		q.arena = append(q.arena, fifoNode{})
		idx = int32(len(q.arena) - 1)
	}

	last := q.arena[tailSlot].prev
	node := &q.arena[idx]
	node.order = o
	node.live = true
	node.prev = last
	node.next = tailSlot
	q.arena[last].next = idx
	q.arena[tailSlot].prev = idx

	return handle{idx: idx, gen: node.gen}
}

// remove unlinks and clears a non-sentinel node. Sentinel and stale handles
// are rejected.
func (q *fifoQueue) remove(h handle) error {
	if h.idx == headSlot || h.idx == tailSlot {
		return domain.ErrOrderNotFound
	}
	if int(h.idx) >= len(q.arena) {
		return domain.ErrOrderNotFound
	}
	node := &q.arena[h.idx]
	if !node.live || node.gen != h.gen {
		return domain.ErrOrderNotFound
	}

	q.arena[node.prev].next = node.next
	q.arena[node.next].prev = node.prev
	node.live = false
	node.gen++
	node.order = restingOrder{}
	q.free = append(q.free, h.idx)
	return nil
}

// first returns the oldest live node, if any.
func (q *fifoQueue) first() (handle, bool) {
	idx := q.arena[headSlot].next
	if idx == tailSlot {
		return handle{}, false
	}
	return handle{idx: idx, gen: q.arena[idx].gen}, true
}

// next returns the node after h, if any.
func (q *fifoQueue) next(h handle) (handle, bool) {
	idx := q.arena[h.idx].next
	if idx == tailSlot {
		return handle{}, false
	}
	return handle{idx: idx, gen: q.arena[idx].gen}, true
}

// get returns the order stored at h. The second return is false for stale or
// sentinel handles.
func (q *fifoQueue) get(h handle) (*restingOrder, bool) {
	if h.idx == headSlot || h.idx == tailSlot || int(h.idx) >= len(q.arena) {
		return nil, false
	}
	node := &q.arena[h.idx]
	if !node.live || node.gen != h.gen {
		return nil, false
	}
	return &node.order, true
}

// isEmpty is true iff the head sentinel's successor is the tail sentinel.
func (q *fifoQueue) isEmpty() bool {
	return !q.ready || q.arena[headSlot].next == tailSlot
}
