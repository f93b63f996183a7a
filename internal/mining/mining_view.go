// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
)

// TxAncestorStats is a descriptor that stores aggregated statistics for the
// unconfirmed ancestors of a transaction.
type TxAncestorStats struct {
	// Fees is the sum of all fees of unconfirmed ancestors.
	Fees int64

	// Weight is the total weight of all unconfirmed ancestors.
	Weight int64

	// SigOps is the total signature operation cost of all unconfirmed
	// ancestors.
	SigOps int64

	// NumAncestors is the total number of unconfirmed ancestors.
	NumAncestors int
}

// TxMiningView is a snapshot of the transaction source pool that tracks the
// dependency graph between transactions along with aggregated ancestor
// statistics for each of them.  It is not safe for concurrent access.
type TxMiningView struct {
	txIndex       map[chainhash.Hash]*TxDesc
	ancestorStats map[chainhash.Hash]*TxAncestorStats
	txGraph       *txDescGraph
}

// NewTxMiningView creates a new mining view instance.  The forEachRedeemer
// parameter defines the function to be used for finding transactions that
// spend a given transaction.
func NewTxMiningView(forEachRedeemer func(tx *dcrutil.Tx, f func(redeemerTx *TxDesc))) *TxMiningView {
	return &TxMiningView{
		txIndex:       make(map[chainhash.Hash]*TxDesc),
		ancestorStats: make(map[chainhash.Hash]*TxAncestorStats),
		txGraph:       newTxDescGraph(forEachRedeemer),
	}
}

// TxDescs returns a slice of all transactions tracked by the view.  The order
// of the returned slice is not defined.
func (mv *TxMiningView) TxDescs() []*TxDesc {
	txDescs := make([]*TxDesc, 0, len(mv.txIndex))
	for _, txDesc := range mv.txIndex {
		txDescs = append(txDescs, txDesc)
	}
	return txDescs
}

// Find returns the transaction descriptor tracked by the view for the
// provided hash, or nil when the view does not contain it.
func (mv *TxMiningView) Find(txHash *chainhash.Hash) *TxDesc {
	return mv.txIndex[*txHash]
}

// AncestorStats returns the aggregated statistics of the unconfirmed
// ancestors of the provided transaction.  The boolean return indicates
// whether the transaction is tracked by the view at all.  The returned
// statistics must be treated as immutable by the caller.
func (mv *TxMiningView) AncestorStats(txHash *chainhash.Hash) (*TxAncestorStats, bool) {
	stats, exists := mv.ancestorStats[*txHash]
	return stats, exists
}

// Ancestors returns all transactions in the view that the provided
// transaction hash depends on, in topological order.
func (mv *TxMiningView) Ancestors(txHash *chainhash.Hash) []*TxDesc {
	var ancestors []*TxDesc
	seen := make(map[chainhash.Hash]struct{})
	mv.txGraph.forEachAncestor(txHash, seen, func(txDesc *TxDesc) {
		ancestors = append(ancestors, txDesc)
	})
	return ancestors
}

// Descendants returns all transactions in the view that depend on the
// provided transaction hash, directly or transitively.
func (mv *TxMiningView) Descendants(txHash *chainhash.Hash) []*TxDesc {
	var descendants []*TxDesc
	seen := make(map[chainhash.Hash]struct{})
	mv.txGraph.forEachDescendant(txHash, seen, func(txDesc *TxDesc) {
		descendants = append(descendants, txDesc)
	})
	return descendants
}

// hasParents returns whether the provided transaction hash has any
// unconfirmed parents tracked by the view.
func (mv *TxMiningView) hasParents(txHash *chainhash.Hash) bool {
	return len(mv.txGraph.parentsOf[*txHash]) > 0
}

// calcAncestorStats walks all ancestors of the provided transaction hash and
// returns freshly aggregated statistics for them.
func (mv *TxMiningView) calcAncestorStats(txHash *chainhash.Hash) *TxAncestorStats {
	stats := &TxAncestorStats{}
	seen := make(map[chainhash.Hash]struct{})
	mv.txGraph.forEachAncestor(txHash, seen, func(txDesc *TxDesc) {
		stats.Fees += txDesc.Fee
		stats.Weight += txDesc.TxWeight
		stats.SigOps += txDesc.TotalSigOps
		stats.NumAncestors++
	})
	return stats
}

// AddTransaction adds the provided transaction descriptor to the view,
// relates it to known parents and redeemers, and updates the tracked
// ancestor statistics of any descendants already present.  The findTx
// parameter is used to locate parent transactions that are not yet tracked
// by the view.
func (mv *TxMiningView) AddTransaction(txDesc *TxDesc, findTx TxDescFind) {
	txHash := txDesc.Tx.Hash()
	if _, exists := mv.txIndex[*txHash]; exists {
		return
	}

	mv.txIndex[*txHash] = txDesc
	mv.txGraph.insert(txDesc, findTx)
	mv.ancestorStats[*txHash] = mv.calcAncestorStats(txHash)

	// A transaction inserted into the middle of the graph changes the
	// ancestor set of everything downstream of it, so recalculate the
	// statistics for all of its descendants.
	seen := make(map[chainhash.Hash]struct{})
	mv.txGraph.forEachDescendant(txHash, seen, func(descendant *TxDesc) {
		descHash := descendant.Tx.Hash()
		mv.ancestorStats[*descHash] = mv.calcAncestorStats(descHash)
	})
}

// RemoveTransaction removes the provided transaction hash from the view.
// When updateDescendantStats is set, the aggregated ancestor statistics of
// all remaining descendants are reduced by the removed transaction's own
// fee, weight, and signature operation cost.  It should be set when the
// transaction is leaving the pool because it was mined into a block and
// unset when the transaction and its descendants are being evicted together.
func (mv *TxMiningView) RemoveTransaction(txHash *chainhash.Hash, updateDescendantStats bool) {
	txDesc := mv.txIndex[*txHash]
	if txDesc == nil {
		return
	}

	if updateDescendantStats {
		seen := make(map[chainhash.Hash]struct{})
		mv.txGraph.forEachDescendant(txHash, seen, func(descendant *TxDesc) {
			stats, exists := mv.ancestorStats[*descendant.Tx.Hash()]
			if !exists {
				return
			}
			stats.Fees -= txDesc.Fee
			stats.Weight -= txDesc.TxWeight
			stats.SigOps -= txDesc.TotalSigOps
			stats.NumAncestors--
		})
	}

	mv.txGraph.remove(txHash)
	delete(mv.txIndex, *txHash)
	delete(mv.ancestorStats, *txHash)
}
