// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package stakeminer implements the proof-of-stake mining coordinator.
//
// The coordinator runs a single long-lived loop that waits for the wallet to
// be unlocked, for the chain to leave the initial proof-of-work phase, and
// for the node to be synced with its peers.  It then performs one kernel
// search per second of adjusted network time over the wallet's stakeable
// coins, and when a coin satisfies the kernel target it assembles a full
// block template, has the wallet sign it, and submits the result to the
// chain.
package stakeminer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"

	"github.com/nucash/nucashd/internal/mining"
)

const (
	// minPeersToStake is the minimum number of connected peers required
	// before stake mining proceeds when connectionless mining is not
	// permitted.
	minPeersToStake = 3

	// walletPollInterval is the amount of time to wait between checks for
	// the wallet becoming unlocked.
	walletPollInterval = 5 * time.Second

	// syncPollInterval is the amount of time to wait between checks for the
	// node becoming synced with its peers.
	syncPollInterval = time.Second

	// noCoinsBackoff is the amount of time to wait before asking the wallet
	// for stakeable coins again after it reported none.
	noCoinsBackoff = 5 * time.Second

	// tickPollInterval is the amount of time to wait between checks for the
	// adjusted network time crossing into the next second.
	tickPollInterval = 10 * time.Millisecond

	// aheadRecheckInterval is the amount of time to wait between checks for
	// the network clock catching up to a signed block whose timestamp is
	// still too far in the future to submit.
	aheadRecheckInterval = 200 * time.Millisecond

	// defaultFutureDrift is the maximum distance between a stake block
	// timestamp and the adjusted network time accepted by default.
	defaultFutureDrift = 15 * time.Second
)

// StakeableCoin describes a single unspent transaction output the wallet is
// willing to stake.
type StakeableCoin struct {
	// OutPoint is the outpoint of the output.
	OutPoint wire.OutPoint

	// Value is the value of the output in base units.
	Value int64

	// PkScript is the public key script of the output.  It doubles as the
	// payout script for the coinstake when the coin wins a kernel search.
	PkScript []byte

	// BlockTime is the timestamp of the block that contains the output.
	// The kernel hash commits to it.
	BlockTime time.Time
}

// CoinProvider provides access to the wallet outputs that are eligible for
// staking.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type CoinProvider interface {
	// IsLocked returns whether or not the wallet is currently locked and
	// therefore unable to sign stake blocks.
	IsLocked() bool

	// SelectStakeableCoins returns the outputs the wallet is willing to
	// stake with against the current best chain tip.
	SelectStakeableCoins() ([]*StakeableCoin, error)

	// IsSpent returns whether or not the provided outpoint has already been
	// spent.
	IsSpent(outPoint wire.OutPoint) bool
}

// KernelChecker determines whether a coin satisfies the stake kernel target
// at a given block time.
type KernelChecker interface {
	// CheckKernel returns whether or not the provided coin satisfies the
	// kernel target for a block building on the provided tip at the
	// provided block time.
	CheckKernel(prevHash *chainhash.Hash, bits uint32, blockTime time.Time, coin *StakeableCoin) (bool, error)
}

// BlockSigner fills in and signs stake blocks.  It is implemented by the
// staking wallet.
type BlockSigner interface {
	// SignStakeBlock replaces the coinstake placeholder input of the
	// provided block with the winning kernel input, assigns the staked
	// value plus the reward and the provided fees to the coinstake outputs,
	// recomputes the affected commitments, and signs the block.
	SignStakeBlock(block *wire.MsgBlock, totalFees int64, coin *StakeableCoin) error
}

// Clock abstracts the timers used to pace the mining loop so tests can drive
// it deterministically.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time

	// After waits for the duration to elapse and then sends the current
	// time on the returned channel.
	After(d time.Duration) <-chan time.Time
}

// systemClock implements Clock using the time package.
type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// TemplateSource produces stake block templates for the miner.
type TemplateSource interface {
	// NewStakeBlockTemplate returns a new stake block template at the
	// provided block timestamp.  When runSelection is false the template
	// contains no source pool transactions.
	NewStakeBlockTemplate(payoutScript []byte, blockTime time.Time, runSelection bool) (*mining.BlockTemplate, error)
}

// Config is a descriptor containing the stake miner configuration.
type Config struct {
	// ChainParams identifies which chain parameters the stake miner is
	// associated with.
	ChainParams *chaincfg.Params

	// PermitConnectionlessMining allows stake mining without any peer
	// connections and without being synced.  This is typically only useful
	// for simulation networks.
	PermitConnectionlessMining bool

	// LastPoWHeight is the height of the final pure proof-of-work block.
	// The stake miner idles until the chain reaches it.
	LastPoWHeight int64

	// FutureDrift is the maximum allowed distance between a stake block
	// timestamp and the adjusted network time.  It defaults to
	// defaultFutureDrift when unset.
	FutureDrift time.Duration

	// TemplateSource defines the source of block templates to stake on.
	TemplateSource TemplateSource

	// TimeSource defines the median time source which is used to retrieve
	// the current time adjusted by the median time offset.  The kernel
	// search advances once per second of this time.
	TimeSource mining.TimeSource

	// Clock defines the timers used to pace the mining loop.  It defaults
	// to the system clock when unset.
	Clock Clock

	// CoinProvider defines the source of stakeable wallet outputs.
	CoinProvider CoinProvider

	// KernelChecker defines the kernel target check used during the search.
	KernelChecker KernelChecker

	// BlockSigner defines the wallet component that fills in and signs
	// stake blocks.
	BlockSigner BlockSigner

	// BestSnapshot defines the function to use to access information about
	// the current best block.  The returned instance should be treated as
	// immutable.
	BestSnapshot func() *mining.BestState

	// ProcessBlock defines the function to call with any stake blocks that
	// are found in order to process and relay them.
	ProcessBlock func(block *dcrutil.Block) error

	// ConnectedCount defines the function to use to obtain how many other
	// peers the server is connected to.  This is used by the automatic
	// persistent mining routine to determine whether or it should attempt
	// mining.  This is useful because there is no point in mining when not
	// connected to any peers since blocks can't be relayed.
	ConnectedCount func() int32

	// IsCurrent defines the function to use to obtain whether or not the
	// block chain is current.  This is used by the automatic persistent
	// mining routine to determine whether or it should attempt mining.
	// This is useful because there is no point in mining if the chain is
	// not current since any solved blocks would end up having a stale tip.
	IsCurrent func() bool
}

// coinSession houses the stakeable coins selected against a specific best
// chain tip.  The selection is reused for every kernel search against that
// tip and refreshed as soon as the tip changes.
type coinSession struct {
	tipHash chainhash.Hash
	coins   []*StakeableCoin
}

// StakeMiner coordinates proof-of-stake mining.  It runs as a single
// long-lived goroutine started via Run and communicates with the wallet and
// the chain exclusively through the capabilities injected in its Config.
type StakeMiner struct {
	sync.Mutex
	cfg          Config
	mining       bool
	hashesPerSec float64
	cpuLoad      float64

	// These fields are only accessed from the mining loop goroutine.
	session      *coinSession
	lastTickUnix int64
}

// New returns a new stake miner for the provided configuration.
func New(cfg *Config) *StakeMiner {
	miner := &StakeMiner{cfg: *cfg}
	if miner.cfg.Clock == nil {
		miner.cfg.Clock = systemClock{}
	}
	if miner.cfg.FutureDrift == 0 {
		miner.cfg.FutureDrift = defaultFutureDrift
	}
	return miner
}

// IsMining returns whether or not the miner is actively performing kernel
// searches as opposed to waiting on the wallet, the chain, or peers.
//
// This function is safe for concurrent access.
func (m *StakeMiner) IsMining() bool {
	m.Lock()
	defer m.Unlock()
	return m.mining
}

// HashesPerSecond returns the number of kernel checks per second the mining
// loop is performing.  It returns zero when the miner is not actively
// searching.
//
// This function is safe for concurrent access.
func (m *StakeMiner) HashesPerSecond() float64 {
	m.Lock()
	defer m.Unlock()
	return m.hashesPerSec
}

// CPULoad returns an estimate of the percentage of a single CPU spent on the
// kernel search.  It returns zero when the miner is not actively searching.
//
// This function is safe for concurrent access.
func (m *StakeMiner) CPULoad() float64 {
	m.Lock()
	defer m.Unlock()
	return m.cpuLoad
}

// setMining updates the mining flag.
func (m *StakeMiner) setMining(mining bool) {
	m.Lock()
	m.mining = mining
	m.Unlock()
}

// resetSearchState clears the mining flag and the search metrics.  It is
// called whenever the mining loop leaves the active search states.
func (m *StakeMiner) resetSearchState() {
	m.Lock()
	m.mining = false
	m.hashesPerSec = 0
	m.cpuLoad = 0
	m.Unlock()
}

// sleep pauses the mining loop for the provided duration.  It returns false
// when the context was canceled before the duration elapsed.
func (m *StakeMiner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.cfg.Clock.After(d):
		return true
	}
}

// waitForNextTick blocks until the adjusted network time crosses into a
// second that has not been searched yet and returns that time truncated to
// the second.  It returns false when the context was canceled while waiting.
func (m *StakeMiner) waitForNextTick(ctx context.Context) (time.Time, bool) {
	for {
		now := m.cfg.TimeSource.AdjustedTime().Truncate(time.Second)
		if now.Unix() > m.lastTickUnix {
			m.lastTickUnix = now.Unix()
			return now, true
		}
		if !m.sleep(ctx, tickPollInterval) {
			return time.Time{}, false
		}
	}
}

// updateSearchMetrics recalculates the hashes per second and cpu load
// estimates from the time a single search pass over the provided number of
// coins took.  A pass covers one second of adjusted time, so a pass that
// completes within its second reports the raw check count as the rate and
// the fraction of the second it consumed as the load.
func (m *StakeMiner) updateSearchMetrics(numCoins int, elapsed time.Duration) {
	deltaMs := elapsed.Milliseconds()

	var hashesPerSec, cpuLoad float64
	if deltaMs <= 1000 {
		hashesPerSec = float64(numCoins)
		cpuLoad = float64(deltaMs) / 10
	} else {
		hashesPerSec = 100 * float64(numCoins) / float64(deltaMs)
		cpuLoad = 100
	}

	m.Lock()
	m.hashesPerSec = hashesPerSec
	m.cpuLoad = cpuLoad
	m.Unlock()
}

// searchKernel performs a single kernel check for every coin in the current
// session at the provided block time and returns the first coin that
// satisfies the kernel target.
func (m *StakeMiner) searchKernel(prevHash *chainhash.Hash, bits uint32, blockTime time.Time) (*StakeableCoin, bool) {
	for _, coin := range m.session.coins {
		ok, err := m.cfg.KernelChecker.CheckKernel(prevHash, bits, blockTime,
			coin)
		if err != nil {
			log.Debugf("Kernel check failed for coin %v: %v", coin.OutPoint,
				err)
			continue
		}
		if ok {
			return coin, true
		}
	}
	return nil, false
}

// waitForValidTimestamp ensures the timestamp of the provided signed block is
// submittable.  Blocks whose timestamp is not strictly after the tip, or that
// lags more than the allowed drift behind the tip, are discarded.  Blocks
// whose timestamp is still ahead of the adjusted network time are held until
// the clock catches up, re-checking the tip along the way.  It returns false
// when the block should be discarded or the context was canceled.
func (m *StakeMiner) waitForValidTimestamp(ctx context.Context, block *wire.MsgBlock) bool {
	futureDrift := m.cfg.FutureDrift
	for {
		best := m.cfg.BestSnapshot()
		if best.Hash != block.Header.PrevBlock {
			log.Debugf("Discarding stake block built on stale tip %v",
				block.Header.PrevBlock)
			return false
		}

		blockTime := block.Header.Timestamp
		now := m.cfg.TimeSource.AdjustedTime()
		if !blockTime.After(best.BlockTime) ||
			blockTime.Add(futureDrift).Before(best.BlockTime) {

			log.Debugf("Discarding stake block with expired timestamp %v",
				blockTime)
			return false
		}

		if blockTime.After(now.Add(futureDrift)) {
			if !m.sleep(ctx, aheadRecheckInterval) {
				return false
			}
			continue
		}
		return true
	}
}

// SubmitStakeBlock submits the provided signed stake block to the chain after
// verifying that it still builds on the current best chain tip and that its
// kernel input is still unspent.  It returns whether or not the block was
// accepted.
//
// This function is safe for concurrent access.
func (m *StakeMiner) SubmitStakeBlock(block *dcrutil.Block) (bool, error) {
	msgBlock := block.MsgBlock()
	if len(msgBlock.STransactions) == 0 {
		str := fmt.Sprintf("block %s has no coinstake transaction",
			block.Hash())
		return false, stakeError(ErrNotStakeBlock, str)
	}

	// The block must still extend the current best chain.
	if m.cfg.BestSnapshot().Hash != msgBlock.Header.PrevBlock {
		str := fmt.Sprintf("stake block %s no longer builds on the best "+
			"chain tip", block.Hash())
		return false, stakeError(ErrStaleBlock, str)
	}

	// Another wallet process might have spent the kernel input since the
	// search found it.
	coinstakeTx := msgBlock.STransactions[0]
	for _, txIn := range coinstakeTx.TxIn {
		if m.cfg.CoinProvider.IsSpent(txIn.PreviousOutPoint) {
			str := fmt.Sprintf("kernel input %v of stake block %s is "+
				"already spent", txIn.PreviousOutPoint, block.Hash())
			return false, stakeError(ErrKernelSpent, str)
		}
	}

	if err := m.cfg.ProcessBlock(block); err != nil {
		log.Errorf("Stake block %s rejected: %v", block.Hash(), err)
		return false, err
	}

	log.Infof("Block submitted via stake miner accepted (hash %s, height "+
		"%d)", block.Hash(), msgBlock.Header.Height)
	return true, nil
}

// Run starts the stake mining loop and blocks until the provided context is
// canceled.  A fatal error creating block templates terminates the loop early
// and is returned, since it indicates the node can no longer build valid
// blocks at all.
//
// The loop only ever leaves the waiting states when the wallet is unlocked,
// the chain has reached the proof-of-stake phase, and the node is synced with
// enough peers, unless connectionless mining is permitted.  While actively
// mining it performs exactly one kernel check per stakeable coin per second
// of adjusted network time.
func (m *StakeMiner) Run(ctx context.Context) error {
	log.Trace("Starting stake miner")
	defer func() {
		m.resetSearchState()
		log.Trace("Stake miner done")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// The wallet must be able to sign coinstakes.
		if m.cfg.CoinProvider.IsLocked() {
			m.resetSearchState()
			if !m.sleep(ctx, walletPollInterval) {
				return nil
			}
			continue
		}

		// Idle through the initial proof-of-work phase.  One block interval
		// per check is plenty since staking cannot start any sooner.
		best := m.cfg.BestSnapshot()
		if best.Height < m.cfg.LastPoWHeight {
			m.resetSearchState()
			if !m.sleep(ctx, m.cfg.ChainParams.TargetTimePerBlock) {
				return nil
			}
			continue
		}

		// Wait until the node is synced with enough peers so that found
		// blocks build on a current tip and can actually be relayed.
		if !m.cfg.PermitConnectionlessMining &&
			(m.cfg.ConnectedCount() < minPeersToStake || !m.cfg.IsCurrent()) {

			m.resetSearchState()
			if !m.sleep(ctx, syncPollInterval) {
				return nil
			}
			continue
		}

		// Ask the wallet for stakeable coins once per tip and reuse the
		// selection for every search against that tip.
		if m.session == nil || m.session.tipHash != best.Hash {
			coins, err := m.cfg.CoinProvider.SelectStakeableCoins()
			if err != nil {
				log.Errorf("Unable to select stakeable coins: %v", err)
				m.resetSearchState()
				if !m.sleep(ctx, noCoinsBackoff) {
					return nil
				}
				continue
			}
			m.session = &coinSession{tipHash: best.Hash, coins: coins}
			log.Debugf("Selected %d stakeable coins for tip %v", len(coins),
				best.Hash)
		}
		if len(m.session.coins) == 0 {
			m.resetSearchState()
			if !m.sleep(ctx, noCoinsBackoff) {
				return nil
			}
			continue
		}

		m.setMining(true)

		// Create a probe template to learn the header parameters the kernel
		// search needs.  Failing to create a template is fatal since it
		// means the node cannot build valid blocks at all.
		probe, err := m.cfg.TemplateSource.NewStakeBlockTemplate(nil,
			m.cfg.TimeSource.AdjustedTime(), false)
		if err != nil {
			log.Errorf("Failed to create stake block template: %v", err)
			return err
		}

		// Perform one search pass over the coins for the next unsearched
		// second of adjusted network time.
		tick, ok := m.waitForNextTick(ctx)
		if !ok {
			return nil
		}

		searchStart := m.cfg.Clock.Now()
		prevHash := probe.Block.Header.PrevBlock
		coin, found := m.searchKernel(&prevHash, probe.Block.Header.Bits,
			tick)
		m.updateSearchMetrics(len(m.session.coins),
			m.cfg.Clock.Now().Sub(searchStart))
		if !found {
			continue
		}
		log.Debugf("Stake kernel found at %v using coin %v", tick.Unix(),
			coin.OutPoint)

		// The tip may have moved during the search, in which case the
		// kernel no longer applies.
		if m.cfg.BestSnapshot().Hash != prevHash {
			log.Debugf("Discarding stake kernel built on stale tip %v",
				prevHash)
			continue
		}

		// Build the full template at the winning timestamp and have the
		// wallet fill in and sign the coinstake.
		template, err := m.cfg.TemplateSource.NewStakeBlockTemplate(
			coin.PkScript, tick, true)
		if err != nil {
			log.Errorf("Failed to create stake block template: %v", err)
			return err
		}
		block := template.Block
		totalFees := -template.Fees[0]
		if err := m.cfg.BlockSigner.SignStakeBlock(block, totalFees,
			coin); err != nil {

			log.Errorf("Failed to sign stake block: %v", err)
			continue
		}

		if !m.waitForValidTimestamp(ctx, block) {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		if _, err := m.SubmitStakeBlock(dcrutil.NewBlock(block)); err != nil {
			log.Debugf("Stake block submission failed: %v", err)
		}
	}
}
