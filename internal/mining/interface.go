// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// TxSource represents a source of transactions to consider for inclusion in
// new blocks.
//
// The interface contract requires that all of these methods are safe for
// concurrent access with respect to the source.
type TxSource interface {
	// LastUpdated returns the last time a transaction was added to or
	// removed from the source pool.
	LastUpdated() time.Time

	// HaveTransaction returns whether or not the passed transaction hash
	// exists in the source pool.
	HaveTransaction(hash *chainhash.Hash) bool

	// MiningView returns a snapshot of the underlying TxSource.
	MiningView() *TxMiningView
}

// TimeSource provides the adjusted network time used when assigning block
// timestamps and driving the per-second stake search.
type TimeSource interface {
	// AdjustedTime returns the current time adjusted by the median time
	// offset calculated from the timestamps reported by connected peers.
	AdjustedTime() time.Time
}
