// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"bytes"
	"container/heap"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
)

const (
	// generatedBlockVersion is the version of the block being generated.
	// It is defined as a constant here rather than using the wire.BlockVersion
	// constant since a change in the block version will require changes to
	// the generated block.  Using the wire constant for generated block
	// version could allow creation of invalid blocks for the updated
	// version.
	generatedBlockVersion = 1

	// StakeBlockNonce is the fixed header nonce carried by all stake blocks.
	// Stake blocks do not iterate the nonce since the kernel search iterates
	// the timestamp instead, so the well-known marker value makes stake
	// blocks cheap to recognize from the header alone.
	StakeBlockNonce uint32 = 0xd0d0face

	// coinbaseFlags is embedded in the signature script of generated
	// coinbase transactions to identify the software that produced them.
	coinbaseFlags = "/nucashd/"
)

// opTrueScript is a simple public key script that contains the OP_TRUE
// opcode.  It is defined here to reduce garbage creation.
var opTrueScript = []byte{txscript.OP_TRUE}

// BestState houses information about the current best block that template
// generation needs to extend it.  The instance returned by the configured
// BestSnapshot function must be treated as immutable.
type BestState struct {
	// Hash is the hash of the best block.
	Hash chainhash.Hash

	// PrevHash is the hash of the parent of the best block.
	PrevHash chainhash.Hash

	// Height is the height of the best block.
	Height int64

	// Bits is the difficulty bits of the best block.
	Bits uint32

	// BlockTime is the timestamp carried by the header of the best block.
	BlockTime time.Time

	// MedianTime is the median block time of the best block and several of
	// its ancestors per the chain consensus rules.
	MedianTime time.Time
}

// Config is a descriptor containing the mining configuration.
type Config struct {
	// Policy houses the policy (configuration parameters) which is used to
	// control the generation of block templates.
	Policy *Policy

	// ChainParams identifies which chain parameters should be used while
	// generating block templates.
	ChainParams *chaincfg.Params

	// TxSource represents a source of transactions to consider for inclusion
	// in new blocks.
	TxSource TxSource

	// TimeSource defines the median time source which is used to retrieve
	// the current time adjusted by the median time offset.  This is used
	// when setting the timestamp in the header of new blocks.
	TimeSource TimeSource

	// SubsidyCache defines a subsidy cache to use when calculating the
	// block reward for work block templates.
	SubsidyCache *standalone.SubsidyCache

	// MiningTimeOffset defines the number of seconds to offset the mining
	// timestamp of a block by (positive values are in the past).
	MiningTimeOffset int

	// BestSnapshot defines the function to use to access information about
	// the current best block.  The returned instance should be treated as
	// immutable.
	BestSnapshot func() *BestState

	// CalcNextRequiredDifficulty defines the function to use to calculate
	// the required difficulty for the block after the given block based on
	// the difficulty retarget rules.
	CalcNextRequiredDifficulty func(prevHash *chainhash.Hash, timestamp time.Time) (uint32, error)

	// IsFinalizedTransaction defines the function to use to determine
	// whether or not a transaction is finalized.
	IsFinalizedTransaction func(tx *dcrutil.Tx, blockHeight int64, blockTime time.Time) bool

	// CountSigOps defines the function to use to count the number of
	// signature operations for all transaction input and output scripts in
	// the provided transaction.
	CountSigOps func(tx *dcrutil.Tx, isCoinBaseTx bool) int64

	// CheckBlockSanity defines an optional function to use to perform
	// context free structural checks on newly generated work templates when
	// the policy requests it.
	CheckBlockSanity func(block *dcrutil.Block) error
}

// TxDesc is a descriptor about a transaction in a transaction source along
// with additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *dcrutil.Tx

	// Added is the time when the entry was added to the source pool.
	Added time.Time

	// Height is the block height when the entry was added to the source
	// pool.
	Height int64

	// Fee is the total fee the transaction associated with the entry pays.
	Fee int64

	// TxWeight is the weight of the transaction.
	TxWeight int64

	// TotalSigOps is the total signature operation cost for this
	// transaction.
	TotalSigOps int64
}

// BlockTemplate houses a block that has yet to be solved along with
// additional details about the fees and the number of signature operations
// for each transaction in the block.
type BlockTemplate struct {
	// Block is a block that is ready to be solved by miners.  Thus, it is
	// completely valid with the exception of satisfying the proof-of-work
	// requirement for work templates and a missing coinstake signature for
	// stake templates.
	Block *wire.MsgBlock

	// Fees contains the amount of fees each transaction in the generated
	// template pays in base units.  Since the first transaction is the
	// coinbase, the first entry (offset 0) will contain the negative of the
	// sum of the fees of all other transactions.
	Fees []int64

	// SigOpCounts contains the number of signature operations each
	// transaction in the generated template performs.
	SigOpCounts []int64

	// Height is the height at which the block template connects to the main
	// chain.
	Height int64

	// ValidPayAddress indicates whether or not the template coinbase pays
	// to an address or is redeemable by anyone.  See the documentation on
	// NewBlockTemplate for details on which this can be useful to generate
	// templates without a coinbase payment address.
	ValidPayAddress bool
}

// standardCoinbaseScript returns a standard script suitable for use as the
// signature script of the coinbase transaction of a new block.  It encodes
// the block height so the coinbase hash is unique across blocks at the same
// position in different forks along with the flags that identify the
// generating software.
func standardCoinbaseScript(nextBlockHeight int64) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().AddInt64(nextBlockHeight).
		AddData([]byte(coinbaseFlags)).Script()
	if err != nil {
		return nil, miningRuleError(ErrCoinbaseScript, err.Error())
	}
	return script, nil
}

// standardCoinbaseOpReturn creates a standard OP_RETURN output to insert into
// coinbase.  This function autogenerates the extranonce.  The OP_RETURN
// pushes 12 bytes.
func standardCoinbaseOpReturn(height uint32) ([]byte, error) {
	extraNonce := rand.Uint64()

	enData := make([]byte, 12)
	binary.LittleEndian.PutUint32(enData[0:4], height)
	binary.LittleEndian.PutUint64(enData[4:12], extraNonce)
	extraNonceScript, err := stdscript.ProvablyPruneableScriptV0(enData)
	if err != nil {
		return nil, err
	}

	return extraNonceScript, nil
}

// createCoinbaseTx returns a coinbase transaction paying the provided total
// payout based on the passed block height to the provided address.  When the
// address is nil, the coinbase transaction will instead be redeemable by
// anyone.
//
// See the comment for NewBlockTemplate for more information about why the nil
// address handling is useful.
func createCoinbaseTx(coinbaseScript []byte, opReturnPkScript []byte, addr stdaddr.Address, totalPayout int64) *dcrutil.Tx {
	// Coinbase transactions have no inputs, so previous outpoint is zero
	// hash and max index.
	coinbaseInput := &wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex, wire.TxTreeRegular),
		Sequence:        wire.MaxTxInSequenceNum,
		BlockHeight:     wire.NullBlockHeight,
		BlockIndex:      wire.NullBlockIndex,
		SignatureScript: coinbaseScript,
	}

	// Create the script to pay to the provided payment address if one was
	// specified.  Otherwise create a script that allows the coinbase to be
	// redeemable by anyone.
	var payoutScriptVer uint16
	payoutScript := opTrueScript
	if addr != nil {
		payoutScriptVer, payoutScript = addr.PaymentScript()
	}

	// Create a coinbase with expected inputs and outputs.
	//
	// Inputs:
	//  - A single input with input value set to the total payout amount.
	//
	// Outputs:
	//  - Output that includes the block height and extra nonce used to
	//    ensure a unique hash
	//  - Output that pays the work subsidy plus fees to the miner
	tx := wire.NewMsgTx()
	tx.AddTxIn(coinbaseInput)
	tx.TxIn[0].ValueIn = totalPayout
	tx.AddTxOut(&wire.TxOut{
		Value:    0,
		PkScript: opReturnPkScript,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    totalPayout,
		Version:  payoutScriptVer,
		PkScript: payoutScript,
	})
	return dcrutil.NewTx(tx)
}

// createStakeCoinbaseTx returns the coinbase transaction used by stake block
// templates.  The block reward of a stake block is carried by the coinstake
// transaction in the stake tree, so this coinbase only exists to satisfy the
// structural requirement that the first transaction of the regular tree is a
// coinbase.  Its single output carries no value and no script.
func createStakeCoinbaseTx(coinbaseScript []byte) *dcrutil.Tx {
	tx := wire.NewMsgTx()
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex, wire.TxTreeRegular),
		Sequence:        wire.MaxTxInSequenceNum,
		BlockHeight:     wire.NullBlockHeight,
		BlockIndex:      wire.NullBlockIndex,
		SignatureScript: coinbaseScript,
	})
	tx.AddTxOut(&wire.TxOut{Value: 0})
	return dcrutil.NewTx(tx)
}

// createCoinstakePlaceholder returns the unsigned coinstake transaction used
// by stake block templates.  The staking wallet replaces the placeholder
// input with the winning kernel input and assigns the block reward when it
// signs the block.  The first output is intentionally empty since that is
// what marks a transaction as a coinstake, while the second output carries
// the payout script that will receive the staked value plus the reward.
func createCoinstakePlaceholder(payoutScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx()
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex, wire.TxTreeRegular),
		Sequence:    wire.MaxTxInSequenceNum,
		BlockHeight: wire.NullBlockHeight,
		BlockIndex:  wire.NullBlockIndex,
	})
	tx.AddTxOut(&wire.TxOut{Value: 0})
	tx.AddTxOut(&wire.TxOut{Value: 0, PkScript: payoutScript})
	return tx
}

// minimumMedianTime returns the minimum allowed timestamp for a block building
// on the end of the provided best chain.  In particular, it is one second
// after the median timestamp of the last several blocks per the chain
// consensus rules.
func minimumMedianTime(best *BestState) time.Time {
	return best.MedianTime.Add(time.Second)
}

// medianAdjustedTime returns the current time adjusted to ensure it is at
// least one second after the median timestamp of the last several blocks per
// the chain consensus rules.
func (g *BlkTmplGenerator) medianAdjustedTime() time.Time {
	// The timestamp for the block must not be before the median timestamp
	// of the last several blocks.  Thus, choose the maximum between the
	// current time and one second after the past median time.  The current
	// timestamp is truncated to a second boundary before comparison since a
	// block timestamp does not support a precision greater than one second.
	best := g.cfg.BestSnapshot()
	newTimestamp := g.cfg.TimeSource.AdjustedTime().Truncate(time.Second)
	minTimestamp := minimumMedianTime(best)
	if newTimestamp.Before(minTimestamp) {
		newTimestamp = minTimestamp
	}

	// Adjust by the amount requested from the command line argument.
	newTimestamp = newTimestamp.Add(
		time.Duration(-g.cfg.MiningTimeOffset) * time.Second)

	return newTimestamp
}

// modifiedTxSet tracks shadow copies of source pool transactions whose
// package statistics have been reduced to account for ancestors that were
// already committed to the block under construction.  Entries are kept in a
// priority queue ordered by package fee rate.  Updating an entry pushes a
// fresh copy onto the queue and relies on the byHash index to lazily discard
// stale copies still sitting in the heap.
type modifiedTxSet struct {
	pq     *txPriorityQueue
	byHash map[chainhash.Hash]*txPrioItem
}

// newModifiedTxSet returns an empty modified transaction set.
func newModifiedTxSet() *modifiedTxSet {
	return &modifiedTxSet{
		pq:     newTxPriorityQueue(0, txPQByPackageFeeRate),
		byHash: make(map[chainhash.Hash]*txPrioItem),
	}
}

// contains returns whether the set currently tracks an entry for the provided
// transaction hash.
func (s *modifiedTxSet) contains(txHash *chainhash.Hash) bool {
	_, exists := s.byHash[*txHash]
	return exists
}

// peek returns the tracked entry with the highest package fee rate without
// removing it, or nil when the set is empty.  Stale heap copies encountered
// along the way are discarded.
func (s *modifiedTxSet) peek() *txPrioItem {
	for s.pq.Len() > 0 {
		item := s.pq.items[0]
		current, exists := s.byHash[*item.txDesc.Tx.Hash()]
		if !exists || current != item {
			heap.Pop(s.pq)
			continue
		}
		return item
	}
	return nil
}

// remove drops the entry for the provided transaction hash from the set.  Any
// copies of it remaining in the heap become stale and are discarded by later
// calls to peek.
func (s *modifiedTxSet) remove(txHash *chainhash.Hash) {
	delete(s.byHash, *txHash)
}

// reduce creates or updates the entry for the provided transaction by
// subtracting the placed transaction's own fee, weight, signature operation
// cost, and ancestor count from its package statistics.  New entries start
// from the provided base pool statistics.
func (s *modifiedTxSet) reduce(txDesc *TxDesc, baseStats *TxAncestorStats, placed *TxDesc) {
	txHash := txDesc.Tx.Hash()
	item, exists := s.byHash[*txHash]
	if !exists {
		item = newTxPrioItem(txDesc, baseStats)
	} else {
		itemCopy := *item
		item = &itemCopy
	}

	item.stats.Fees -= placed.Fee
	item.stats.Weight -= placed.TxWeight
	item.stats.SigOps -= placed.TotalSigOps
	item.stats.NumAncestors--

	s.byHash[*txHash] = item
	heap.Push(s.pq, item)
}

// BlkTmplGenerator houses state that is used in between multiple calls to
// generate block templates along with the transaction selection state for the
// template currently being assembled.  The selection state is reset at the
// start of each template generation, which is why a single generator instance
// must not be used concurrently.  Callers that need templates from multiple
// goroutines must either serialize access externally or use separate
// instances.
type BlkTmplGenerator struct {
	cfg *Config

	// These fields house the transaction selection state for the template
	// currently being assembled.
	inBlock        map[chainhash.Hash]struct{}
	blockTxns      []*dcrutil.Tx
	txFees         []int64
	txSigOpCounts  []int64
	blockWeight    int64
	blockSigOps    int64
	totalFees      int64
	maxBlockWeight int64
}

// NewBlkTmplGenerator returns a new block template generator for the given
// policy using transactions from the provided transaction source.
func NewBlkTmplGenerator(cfg *Config) *BlkTmplGenerator {
	return &BlkTmplGenerator{cfg: cfg}
}

// resetSelection prepares the generator for a new round of transaction
// selection by clearing all per-template state and reserving room in the
// block budget for the coinbase transaction.
func (g *BlkTmplGenerator) resetSelection() {
	g.inBlock = make(map[chainhash.Hash]struct{})
	g.blockTxns = nil
	g.txFees = []int64{-1}
	g.txSigOpCounts = []int64{-1}
	g.blockWeight = coinbaseWeightReserve
	g.blockSigOps = coinbaseSigOpsReserve
	g.totalFees = 0
	g.maxBlockWeight = clampBlockMaxWeight(g.cfg.Policy.BlockMaxWeight)
}

// testPackageLimits returns whether a package with the provided aggregated
// statistics still fits within the remaining block budget.
func (g *BlkTmplGenerator) testPackageLimits(stats *TxAncestorStats) bool {
	if g.blockWeight+stats.Weight >= g.maxBlockWeight {
		return false
	}
	if g.blockSigOps+stats.SigOps >= MaxBlockSigOpsCost {
		return false
	}
	return true
}

// addTxToBlock commits the provided transaction to the block under
// construction and updates all selection state accordingly.
func (g *BlkTmplGenerator) addTxToBlock(txDesc *TxDesc) {
	g.blockTxns = append(g.blockTxns, txDesc.Tx)
	g.txFees = append(g.txFees, txDesc.Fee)
	g.txSigOpCounts = append(g.txSigOpCounts, txDesc.TotalSigOps)
	g.blockWeight += txDesc.TxWeight
	g.blockSigOps += txDesc.TotalSigOps
	g.totalFees += txDesc.Fee
	g.inBlock[*txDesc.Tx.Hash()] = struct{}{}

	log.Tracef("Added tx %s (weight %d, fee %d)", txDesc.Tx.Hash(),
		txDesc.TxWeight, txDesc.Fee)
}

// sortTxsForBlock orders the provided package members so that every
// transaction appears after all of its dependencies.  Transactions with fewer
// unconfirmed ancestors in the source pool necessarily come earlier in the
// dependency order, so the pool ancestor count with the hash as a tie breaker
// yields a valid and deterministic ordering.
func sortTxsForBlock(miningView *TxMiningView, pkg []*TxDesc) {
	sort.Slice(pkg, func(i, j int) bool {
		iStats, _ := miningView.AncestorStats(pkg[i].Tx.Hash())
		jStats, _ := miningView.AncestorStats(pkg[j].Tx.Hash())
		if iStats.NumAncestors != jStats.NumAncestors {
			return iStats.NumAncestors < jStats.NumAncestors
		}
		return bytes.Compare(pkg[i].Tx.Hash()[:], pkg[j].Tx.Hash()[:]) < 0
	})
}

// addPackageTxs selects transactions from the source pool into the block
// under construction by repeatedly choosing the transaction package with the
// highest aggregate fee rate that still fits within the block limits.  A
// package consists of a transaction together with all of its unconfirmed
// ancestors that have not already been committed to the block.
//
// Two bookkeeping structures drive the selection.  The primary index is the
// source pool snapshot sorted by package fee rate.  Since committing a
// package makes some of the aggregated statistics in that index stale, a set
// of modified entries shadows any transaction whose ancestors have been
// committed, carrying reduced statistics that reflect only the ancestors
// still outstanding.  Each iteration considers the better of the head of the
// sorted index and the best modified entry, with ties broken in favor of the
// modified entry since its statistics are more current.
//
// Transactions whose package can never become selectable again are tracked in
// a failed set and not revisited.  Selection stops once the best remaining
// package pays less than the configured minimum fee rate, or after too many
// consecutive failures once the block is nearly full.
func (g *BlkTmplGenerator) addPackageTxs(miningView *TxMiningView, nextBlockHeight int64, lockTimeCutoff time.Time) {
	sourceTxns := miningView.TxDescs()

	// Create the sorted index over the snapshot.  Each entry aggregates the
	// transaction with all of its unconfirmed ancestors.
	sortedItems := make([]*txPrioItem, 0, len(sourceTxns))
	for _, txDesc := range sourceTxns {
		// A coinbase must never come from the source pool.
		if standalone.IsCoinBaseTx(txDesc.Tx.MsgTx(), false) {
			log.Tracef("Skipping coinbase tx %s", txDesc.Tx.Hash())
			continue
		}

		stats, exists := miningView.AncestorStats(txDesc.Tx.Hash())
		if !exists {
			continue
		}
		sortedItems = append(sortedItems, newTxPrioItem(txDesc, stats))
	}
	sort.Slice(sortedItems, func(i, j int) bool {
		return compareTxPrioItems(sortedItems[i], sortedItems[j]) > 0
	})

	modified := newModifiedTxSet()
	failedTxns := make(map[chainhash.Hash]struct{})
	consecutiveFailures := 0

	idx := 0
	for idx < len(sortedItems) || modified.pq.Len() > 0 {
		if idx < len(sortedItems) {
			txHash := sortedItems[idx].txDesc.Tx.Hash()
			_, inBlock := g.inBlock[*txHash]
			_, failed := failedTxns[*txHash]
			if inBlock || failed || modified.contains(txHash) {
				// The index copy is either already in the block,
				// known unselectable, or superseded by a modified
				// entry with more current statistics.
				idx++
				continue
			}
		}

		// Choose between the head of the sorted index and the best modified
		// entry.
		var item *txPrioItem
		fromModified := false
		modifiedItem := modified.peek()
		switch {
		case idx >= len(sortedItems):
			if modifiedItem == nil {
				return
			}
			item = modifiedItem
			fromModified = true

		case modifiedItem != nil && compareFeeRates(modifiedItem.stats.Fees,
			modifiedItem.stats.Weight, sortedItems[idx].stats.Fees,
			sortedItems[idx].stats.Weight) >= 0:

			item = modifiedItem
			fromModified = true

		default:
			item = sortedItems[idx]
			idx++
		}
		txHash := item.txDesc.Tx.Hash()

		// Selection considers packages in fee rate order, so once the best
		// remaining package pays less than the configured floor, everything
		// after it does too.
		if item.stats.Fees < feeForWeight(g.cfg.Policy.BlockMinFeeRate,
			item.stats.Weight) {

			log.Tracef("Best remaining package %s pays below the minimum "+
				"fee rate, ending selection", txHash)
			return
		}

		// Test the package against the remaining block budget.
		if !g.testPackageLimits(&item.stats) {
			if fromModified {
				// A modified entry that does not fit is evicted for good.
				// Its statistics only shrink when more of its ancestors
				// are committed, but any such commit would have reduced
				// this entry first.
				heap.Pop(modified.pq)
				modified.remove(txHash)
				failedTxns[*txHash] = struct{}{}
			} else if item.stats.NumAncestors == 0 {
				// A package with no unconfirmed ancestors can never
				// shrink, so there is no point in ever retrying it.
				failedTxns[*txHash] = struct{}{}
			}

			consecutiveFailures++
			if consecutiveFailures > maxConsecutivePackageFailures &&
				g.blockWeight > g.maxBlockWeight-coinbaseWeightReserve {

				log.Debugf("Ending transaction selection after %d "+
					"consecutive failures with the block nearly full",
					consecutiveFailures)
				return
			}
			continue
		}

		// Gather the package members that are not yet in the block and
		// ensure every one of them is finalized at the height and lock time
		// cutoff the template is being built for.  Finality cannot change
		// for the duration of a single selection run, so failures are
		// permanent for this template.
		ancestors := miningView.Ancestors(txHash)
		pkg := make([]*TxDesc, 0, len(ancestors)+1)
		for _, ancestor := range ancestors {
			if _, exists := g.inBlock[*ancestor.Tx.Hash()]; exists {
				continue
			}
			pkg = append(pkg, ancestor)
		}
		pkg = append(pkg, item.txDesc)

		finalityOK := true
		for _, member := range pkg {
			if !g.cfg.IsFinalizedTransaction(member.Tx, nextBlockHeight,
				lockTimeCutoff) {

				log.Tracef("Skipping non-finalized tx %s in package %s",
					member.Tx.Hash(), txHash)
				finalityOK = false
				break
			}
		}
		if !finalityOK {
			if fromModified {
				heap.Pop(modified.pq)
				modified.remove(txHash)
			}
			failedTxns[*txHash] = struct{}{}
			continue
		}

		// Commit the package to the block in dependency order.
		sortTxsForBlock(miningView, pkg)
		for _, member := range pkg {
			g.addTxToBlock(member)
			modified.remove(member.Tx.Hash())
		}
		consecutiveFailures = 0

		// Reduce the tracked package statistics of every transaction that
		// depends on a member that was just committed so the remaining
		// candidates are evaluated against only their outstanding
		// ancestors.
		for _, placed := range pkg {
			for _, descendant := range miningView.Descendants(placed.Tx.Hash()) {
				descHash := descendant.Tx.Hash()
				if _, exists := g.inBlock[*descHash]; exists {
					continue
				}
				if _, failed := failedTxns[*descHash]; failed {
					continue
				}

				descStats, exists := miningView.AncestorStats(descHash)
				if !exists {
					continue
				}
				modified.reduce(descendant, descStats, placed)
			}
		}
	}
}

// newBlockTemplate is the internal implementation shared by NewBlockTemplate
// and NewStakeBlockTemplate.  See their documentation for details.
func (g *BlkTmplGenerator) newBlockTemplate(payToAddress stdaddr.Address, payoutScript []byte, blockTime time.Time, runSelection bool, isStake bool) (*BlockTemplate, error) {
	g.resetSelection()

	best := g.cfg.BestSnapshot()
	prevHash := best.Hash
	nextBlockHeight := best.Height + 1

	// Select transactions from the source pool.  Probe templates skip this
	// since their only purpose is to learn the reward parameters before an
	// expensive kernel search.
	if runSelection {
		miningView := g.cfg.TxSource.MiningView()
		g.addPackageTxs(miningView, nextBlockHeight, best.MedianTime)
	}

	// Choose the block timestamp.  Work templates derive it from the
	// adjusted network time while stake templates carry the timestamp the
	// kernel search found, which must be provided by the caller.
	var ts time.Time
	if isStake {
		if blockTime.IsZero() {
			return nil, miningRuleError(ErrInvalidTimestamp,
				"stake block templates require an explicit block timestamp")
		}
		ts = blockTime.Truncate(time.Second)
	} else {
		ts = g.medianAdjustedTime()
	}

	// Calculate the next expected difficulty.
	reqDifficulty, err := g.cfg.CalcNextRequiredDifficulty(&prevHash, ts)
	if err != nil {
		return nil, miningRuleError(ErrGettingDifficulty, err.Error())
	}

	// Create the coinbase.  Work templates pay the full reward from the
	// coinbase, while stake templates carry an empty one since their reward
	// is assigned by the staking wallet when it signs the coinstake.
	coinbaseScript, err := standardCoinbaseScript(nextBlockHeight)
	if err != nil {
		return nil, err
	}
	var coinbaseTx *dcrutil.Tx
	if isStake {
		coinbaseTx = createStakeCoinbaseTx(coinbaseScript)
	} else {
		opReturnPkScript, err := standardCoinbaseOpReturn(uint32(nextBlockHeight))
		if err != nil {
			return nil, err
		}
		subsidy := g.cfg.SubsidyCache.CalcBlockSubsidy(nextBlockHeight)
		coinbaseTx = createCoinbaseTx(coinbaseScript, opReturnPkScript,
			payToAddress, subsidy+g.totalFees)
	}
	g.txFees[0] = -g.totalFees
	g.txSigOpCounts[0] = g.cfg.CountSigOps(coinbaseTx, true)

	// Assemble the block.
	var msgBlock wire.MsgBlock
	if err := msgBlock.AddTransaction(coinbaseTx.MsgTx()); err != nil {
		return nil, miningRuleError(ErrTransactionAppend, err.Error())
	}
	for _, tx := range g.blockTxns {
		if err := msgBlock.AddTransaction(tx.MsgTx()); err != nil {
			return nil, miningRuleError(ErrTransactionAppend, err.Error())
		}
	}
	if isStake {
		coinstakeTx := createCoinstakePlaceholder(payoutScript)
		if err := msgBlock.AddSTransaction(coinstakeTx); err != nil {
			return nil, miningRuleError(ErrTransactionAppend, err.Error())
		}
	}

	var nonce uint32
	if isStake {
		nonce = StakeBlockNonce
	}
	msgBlock.Header = wire.BlockHeader{
		Version:    generatedBlockVersion,
		PrevBlock:  prevHash,
		MerkleRoot: standalone.CalcTxTreeMerkleRoot(msgBlock.Transactions),
		StakeRoot:  standalone.CalcTxTreeMerkleRoot(msgBlock.STransactions),
		Timestamp:  ts,
		Bits:       reqDifficulty,
		Height:     uint32(nextBlockHeight),
		Nonce:      nonce,
	}
	msgBlock.Header.Size = uint32(msgBlock.SerializeSize())

	// Perform the optional structural self check on work templates.  Stake
	// templates are intentionally skipped since they are not yet signed and
	// would fail any meaningful check.
	if !isStake && g.cfg.Policy.TestBlockValidity &&
		g.cfg.CheckBlockSanity != nil {

		block := dcrutil.NewBlock(&msgBlock)
		if err := g.cfg.CheckBlockSanity(block); err != nil {
			str := fmt.Sprintf("failed to check sanity of template: %v", err)
			return nil, miningRuleError(ErrCheckBlockSanity, str)
		}
	}

	template := &BlockTemplate{
		Block:           &msgBlock,
		Fees:            g.txFees,
		SigOpCounts:     g.txSigOpCounts,
		Height:          nextBlockHeight,
		ValidPayAddress: payToAddress != nil,
	}

	log.Debugf("Created new block template (%d transactions, %d stake "+
		"transactions, %d in fees, %d signature operations, %d weight, "+
		"target difficulty %08x)", len(msgBlock.Transactions),
		len(msgBlock.STransactions), g.totalFees, g.blockSigOps,
		g.blockWeight, reqDifficulty)

	return template, nil
}

// NewBlockTemplate returns a new block template that is ready to be solved
// using the transactions from the passed transaction source pool.
//
// The transactions selected into the block are ordered so that every
// transaction appears after its dependencies with an overall preference for
// the packages paying the highest fee per unit of weight.  The coinbase pays
// the block subsidy plus the sum of all selected transaction fees to the
// provided address.  When the passed address is nil, the coinbase output
// instead uses a script that is redeemable by anyone, which is useful for
// callers such as test harnesses that have no need for a spendable reward.
func (g *BlkTmplGenerator) NewBlockTemplate(payToAddress stdaddr.Address) (*BlockTemplate, error) {
	return g.newBlockTemplate(payToAddress, nil, time.Time{}, true, false)
}

// NewStakeBlockTemplate returns a new block template for a stake block at the
// provided block timestamp.  The returned block carries an empty coinbase in
// the regular transaction tree and an unsigned coinstake placeholder paying
// to the provided payout script in the stake tree.  The staking wallet is
// expected to replace the placeholder input with the winning kernel input,
// assign the reward, and sign the block before it is submitted.
//
// When runSelection is false, the returned template contains no source pool
// transactions.  Such probe templates are cheap to create and exist so the
// stake mining coordinator can learn the fee parameters of a potential block
// before performing a kernel search.  The first entry of the Fees slice
// carries the negative sum of all selected transaction fees in both modes.
func (g *BlkTmplGenerator) NewStakeBlockTemplate(payoutScript []byte, blockTime time.Time, runSelection bool) (*BlockTemplate, error) {
	return g.newBlockTemplate(nil, payoutScript, blockTime, runSelection, true)
}

// UpdateBlockTime updates the timestamp in the header of the passed block to
// the current time while taking into account the median time of the last
// several blocks to ensure the new time is after that time per the chain
// consensus rules.  Finally, it will update the target difficulty if needed
// based on the new time for the test networks since their target difficulty
// can change based upon time.
func (g *BlkTmplGenerator) UpdateBlockTime(header *wire.BlockHeader) error {
	// The new timestamp is potentially adjusted to ensure it comes after
	// the median time of the last several blocks per the chain consensus
	// rules.
	newTimestamp := g.medianAdjustedTime()
	header.Timestamp = newTimestamp

	// If running on a network that requires recalculating the difficulty,
	// do so now.
	if g.cfg.ChainParams.ReduceMinDifficulty {
		difficulty, err := g.cfg.CalcNextRequiredDifficulty(&header.PrevBlock,
			newTimestamp)
		if err != nil {
			return miningRuleError(ErrGettingDifficulty, err.Error())
		}
		header.Bits = difficulty
	}

	return nil
}
