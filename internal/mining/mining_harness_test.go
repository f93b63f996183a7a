// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"encoding/binary"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
)

// fakeTimeSource provides a manually settable adjusted time.
type fakeTimeSource struct {
	now time.Time
}

func (ts *fakeTimeSource) AdjustedTime() time.Time {
	return ts.now
}

// fakeChain provides the chain callbacks the template generator needs with
// behavior the tests control directly.
type fakeChain struct {
	best          *BestState
	bits          uint32
	difficultyErr error
	nonFinal      map[chainhash.Hash]struct{}
}

func (c *fakeChain) bestSnapshot() *BestState {
	return c.best
}

func (c *fakeChain) calcNextRequiredDifficulty(prevHash *chainhash.Hash, timestamp time.Time) (uint32, error) {
	if c.difficultyErr != nil {
		return 0, c.difficultyErr
	}
	return c.bits, nil
}

func (c *fakeChain) isFinalizedTransaction(tx *dcrutil.Tx, blockHeight int64, blockTime time.Time) bool {
	_, exists := c.nonFinal[*tx.Hash()]
	return !exists
}

// fakeTxSource provides a minimal transaction pool that maintains a mining
// view over the transactions added to it.  It implements the TxSource
// interface.
type fakeTxSource struct {
	pool        map[chainhash.Hash]*TxDesc
	view        *TxMiningView
	lastUpdated time.Time
}

func newFakeTxSource() *fakeTxSource {
	s := &fakeTxSource{pool: make(map[chainhash.Hash]*TxDesc)}
	s.view = NewTxMiningView(s.forEachRedeemer)
	return s
}

// forEachRedeemer invokes f for every transaction in the pool that spends an
// output of the provided transaction.
func (s *fakeTxSource) forEachRedeemer(tx *dcrutil.Tx, f func(redeemerTx *TxDesc)) {
	txHash := *tx.Hash()
	for _, txDesc := range s.pool {
		for _, txIn := range txDesc.Tx.MsgTx().TxIn {
			if txIn.PreviousOutPoint.Hash == txHash {
				f(txDesc)
				break
			}
		}
	}
}

func (s *fakeTxSource) findTx(txHash *chainhash.Hash) *TxDesc {
	return s.pool[*txHash]
}

func (s *fakeTxSource) add(txDesc *TxDesc) {
	s.pool[*txDesc.Tx.Hash()] = txDesc
	s.view.AddTransaction(txDesc, s.findTx)
	s.lastUpdated = time.Now()
}

func (s *fakeTxSource) remove(txHash *chainhash.Hash) {
	delete(s.pool, *txHash)
	s.view.RemoveTransaction(txHash, true)
	s.lastUpdated = time.Now()
}

func (s *fakeTxSource) LastUpdated() time.Time {
	return s.lastUpdated
}

func (s *fakeTxSource) HaveTransaction(hash *chainhash.Hash) bool {
	_, exists := s.pool[*hash]
	return exists
}

func (s *fakeTxSource) MiningView() *TxMiningView {
	return s.view
}

// miningHarness provides a harness that consists of a template generator
// backed by a fake chain and a fake transaction source along with helpers to
// populate the source with transactions that have the exact dependency
// structure and metadata a test calls for.
type miningHarness struct {
	chainParams   *chaincfg.Params
	chain         *fakeChain
	txSource      *fakeTxSource
	timeSource    *fakeTimeSource
	generator     *BlkTmplGenerator
	outputCounter uint32
}

// newTxDesc creates a transaction that spends all of the provided parent
// transactions, or a unique confirmed output when no parents are given, adds
// it to the harness transaction source with the provided fee, weight, and
// signature operation cost, and returns its descriptor.
func (h *miningHarness) newTxDesc(parents []*TxDesc, fee, weight, sigOps int64) *TxDesc {
	h.outputCounter++

	tx := wire.NewMsgTx()
	if len(parents) == 0 {
		// Spend an output that is not in the source pool so the transaction
		// has no unconfirmed parents.  The counter keeps the outpoint and
		// therefore the transaction hash unique.
		var confirmedHash chainhash.Hash
		binary.LittleEndian.PutUint32(confirmedHash[0:4], h.outputCounter)
		confirmedHash[31] = 0xaa
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash: confirmedHash,
				Tree: wire.TxTreeRegular,
			},
			Sequence: wire.MaxTxInSequenceNum,
		})
	}
	for _, parent := range parents {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  *parent.Tx.Hash(),
				Index: h.outputCounter,
				Tree:  wire.TxTreeRegular,
			},
			Sequence: wire.MaxTxInSequenceNum,
		})
	}
	tx.AddTxOut(&wire.TxOut{
		Value:    100e8 + int64(h.outputCounter),
		PkScript: opTrueScript,
	})

	txDesc := &TxDesc{
		Tx:          dcrutil.NewTx(tx),
		Added:       time.Now(),
		Height:      h.chain.best.Height,
		Fee:         fee,
		TxWeight:    weight,
		TotalSigOps: sigOps,
	}
	h.txSource.add(txDesc)
	return txDesc
}

// newMiningHarness returns a new instance of a mining harness initialized
// with a fake chain whose best block is at height 100 and the provided
// policy.
func newMiningHarness(policy *Policy) *miningHarness {
	params := chaincfg.SimNetParams()
	chain := &fakeChain{
		best: &BestState{
			Hash:       chainhash.Hash{0x01},
			PrevHash:   chainhash.Hash{0x02},
			Height:     100,
			Bits:       0x207fffff,
			BlockTime:  time.Unix(1700000000, 0),
			MedianTime: time.Unix(1699999700, 0),
		},
		bits:     0x207fffff,
		nonFinal: make(map[chainhash.Hash]struct{}),
	}
	timeSource := &fakeTimeSource{now: time.Unix(1700000100, 0)}
	txSource := newFakeTxSource()

	generator := NewBlkTmplGenerator(&Config{
		Policy:                     policy,
		ChainParams:                params,
		TxSource:                   txSource,
		TimeSource:                 timeSource,
		SubsidyCache:               standalone.NewSubsidyCache(params),
		BestSnapshot:               chain.bestSnapshot,
		CalcNextRequiredDifficulty: chain.calcNextRequiredDifficulty,
		IsFinalizedTransaction:     chain.isFinalizedTransaction,
		CountSigOps: func(tx *dcrutil.Tx, isCoinBaseTx bool) int64 {
			return 0
		},
	})

	return &miningHarness{
		chainParams: params,
		chain:       chain,
		txSource:    txSource,
		timeSource:  timeSource,
		generator:   generator,
	}
}
