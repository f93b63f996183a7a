// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"container/heap"
)

// txPrioItem houses a transaction along with the aggregated statistics of the
// package formed by the transaction and its not-yet-selected unconfirmed
// ancestors.  The stats start out as a copy of the pool values and are
// reduced as ancestors of the transaction are committed to the block under
// construction.
type txPrioItem struct {
	txDesc *TxDesc
	stats  TxAncestorStats
}

// newTxPrioItem creates a prioritized item for the provided transaction
// descriptor whose package statistics aggregate the given ancestor stats with
// the transaction's own fee, weight, and signature operation cost.
func newTxPrioItem(txDesc *TxDesc, ancestorStats *TxAncestorStats) *txPrioItem {
	return &txPrioItem{
		txDesc: txDesc,
		stats: TxAncestorStats{
			Fees:         ancestorStats.Fees + txDesc.Fee,
			Weight:       ancestorStats.Weight + txDesc.TxWeight,
			SigOps:       ancestorStats.SigOps + txDesc.TotalSigOps,
			NumAncestors: ancestorStats.NumAncestors,
		},
	}
}

// compareTxPrioItems compares two prioritized items by package fee rate with
// the transaction hash as the final tie breaker so that ordering is fully
// deterministic.  It returns a positive number when the first item sorts
// first, a negative number when the second item sorts first, and never
// returns zero for distinct transactions.
func compareTxPrioItems(a, b *txPrioItem) int {
	cmp := compareFeeRates(a.stats.Fees, a.stats.Weight, b.stats.Fees,
		b.stats.Weight)
	if cmp != 0 {
		return cmp
	}

	// Lower hash sorts first on equal fee rates.
	return bytes.Compare(b.txDesc.Tx.Hash()[:], a.txDesc.Tx.Hash()[:])
}

// txPriorityQueueLessFunc describes a function that can be used as a compare
// function for a transaction priority queue (txPriorityQueue).
type txPriorityQueueLessFunc func(*txPriorityQueue, int, int) bool

// txPriorityQueue implements a priority queue of txPrioItem elements that
// supports an arbitrary compare function as defined by
// txPriorityQueueLessFunc.
type txPriorityQueue struct {
	lessFunc txPriorityQueueLessFunc
	items    []*txPrioItem
}

// Len returns the number of items in the priority queue.  It is part of the
// heap.Interface implementation.
func (pq *txPriorityQueue) Len() int {
	return len(pq.items)
}

// Less returns whether the item in the priority queue with index i should sort
// before the item with index j by deferring to the assigned less function.  It
// is part of the heap.Interface implementation.
func (pq *txPriorityQueue) Less(i, j int) bool {
	return pq.lessFunc(pq, i, j)
}

// Swap swaps the items at the passed indices in the priority queue.  It is
// part of the heap.Interface implementation.
func (pq *txPriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push pushes the passed item onto the priority queue.  It is part of the
// heap.Interface implementation.
func (pq *txPriorityQueue) Push(x interface{}) {
	pq.items = append(pq.items, x.(*txPrioItem))
}

// Pop removes the highest priority item (according to Less) from the priority
// queue and returns it.  It is part of the heap.Interface implementation.
func (pq *txPriorityQueue) Pop() interface{} {
	n := len(pq.items)
	item := pq.items[n-1]
	pq.items[n-1] = nil
	pq.items = pq.items[0 : n-1]
	return item
}

// SetLessFunc sets the compare function for the priority queue to the provided
// function.  It also invokes heap.Init on the priority queue using the new
// function so it can immediately be used with heap.Push/Pop.
func (pq *txPriorityQueue) SetLessFunc(lessFunc txPriorityQueueLessFunc) {
	pq.lessFunc = lessFunc
	heap.Init(pq)
}

// txPQByPackageFeeRate sorts a txPriorityQueue by the fee rate of the
// transaction package, highest rate first, with the transaction hash breaking
// ties.
func txPQByPackageFeeRate(pq *txPriorityQueue, i, j int) bool {
	return compareTxPrioItems(pq.items[i], pq.items[j]) > 0
}

// newTxPriorityQueue returns a new transaction priority queue that reserves
// the passed amount of space for the elements.  The new priority queue uses
// the less than function lessFunc to sort the items in the min heap.  The
// priority queue can grow larger than the reserved space, but extra copies of
// the underlying array can be avoided by reserving a sane value.
func newTxPriorityQueue(reserve int, lessFunc func(*txPriorityQueue, int, int) bool) *txPriorityQueue {
	pq := &txPriorityQueue{
		items: make([]*txPrioItem, 0, reserve),
	}
	pq.SetLessFunc(lessFunc)
	return pq
}
