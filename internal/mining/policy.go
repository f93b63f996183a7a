// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/decred/dcrd/dcrutil/v4"
)

const (
	// UnminedHeight is the height used for the "block" height field of the
	// contextual transaction information provided in a transaction store
	// when it has not yet been mined into a block.
	UnminedHeight = 0x7fffffff

	// MaxBlockWeight is the maximum weight a block may have under consensus
	// rules.  Block template generation never exceeds it regardless of the
	// configured policy.
	MaxBlockWeight = 4000000

	// MinBlockWeight is the smallest weight cap a block template may be
	// generated with.  It leaves room for the coinbase and header overhead
	// so a template is never structurally empty.
	MinBlockWeight = 4000

	// MaxBlockSigOpsCost is the maximum aggregate signature operation cost
	// allowed in a block under consensus rules.
	MaxBlockSigOpsCost = 80000

	// coinbaseWeightReserve is the amount of block weight set aside for the
	// coinbase transaction before any source pool transactions are
	// considered for inclusion.
	coinbaseWeightReserve = 4000

	// coinbaseSigOpsReserve is the signature operation cost set aside for
	// the coinbase transaction before any source pool transactions are
	// considered for inclusion.
	coinbaseSigOpsReserve = 400

	// maxConsecutivePackageFailures is the number of consecutive package
	// inclusion failures tolerated once a template is nearly full before
	// transaction selection gives up.
	maxConsecutivePackageFailures = 1000
)

// Policy houses the policy (configuration parameters) which is used to
// control the generation of block templates.  See the documentation for
// NewBlockTemplate for more details on how each of these parameters are used.
type Policy struct {
	// BlockMaxWeight is the maximum block weight to be used when generating
	// a block template.  It is clamped to [MinBlockWeight, MaxBlockWeight]
	// by the template generator.
	BlockMaxWeight uint32

	// BlockMinFeeRate is the minimum package fee rate, in atoms per
	// kilo-virtual-byte, that a transaction package must pay for
	// transaction selection to continue.  Selection terminates once the
	// best remaining package falls below this rate.
	BlockMinFeeRate dcrutil.Amount

	// TestBlockValidity indicates whether newly generated work templates
	// should be run through the configured structural sanity check before
	// being returned.
	TestBlockValidity bool
}

// clampBlockMaxWeight returns the provided policy weight cap limited to the
// range the template generator is willing to build for.
func clampBlockMaxWeight(maxWeight uint32) int64 {
	switch {
	case maxWeight < MinBlockWeight:
		return MinBlockWeight
	case maxWeight > MaxBlockWeight:
		return MaxBlockWeight
	}
	return int64(maxWeight)
}

// feeForWeight returns the minimum fee, in atoms, that a transaction package
// of the given weight must pay to meet the provided fee rate.  The fee rate
// is expressed in atoms per kilo-virtual-byte and weight is four times the
// virtual size, hence the divisor.
func feeForWeight(feeRate dcrutil.Amount, weight int64) int64 {
	return int64(feeRate) * weight / 4000
}

// compareFeeRates compares two fee rates expressed as fee and weight pairs
// without floating point math.  It returns a positive number when the first
// rate is larger, a negative number when the second rate is larger, and zero
// when the rates are equal.
func compareFeeRates(aFees, aWeight, bFees, bWeight int64) int {
	// a.fees/a.weight <=> b.fees/b.weight with the divisions removed.
	left := aFees * bWeight
	right := bFees * aWeight
	switch {
	case left > right:
		return 1
	case left < right:
		return -1
	}
	return 0
}
