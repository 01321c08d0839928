// Package volume implements the wallet-rotation and trade-scheduling engine:
// a pool of disposable wallets trades a single token through a V2-style
// router to generate volume, funded from and swept back to one main wallet.
package volume

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"evm-volbot/internal/wallet"
)

var (
	ErrAlreadyRunning = errors.New("bot already running")
	ErrStopped        = errors.New("bot already stopped")
)

// Status is the scheduler's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Config assembles one bot instance. Chain connectivity, the funding wallet
// and the target token are required; Params and Tuning zero-values are filled
// with defaults.
type Config struct {
	ChainKey string
	Client   ChainClient

	MainWalletKey *ecdsa.PrivateKey
	TokenAddress  common.Address

	WalletFile  string
	WalletCount int

	Params Params
	Tuning Tuning

	// Rng defaults to a time-seeded PCG source. Now defaults to time.Now.
	Rng Rand
	Now func() time.Time
}

// Bot is the perpetual trading loop for one chain. One Bot owns its wallet
// file exclusively; running two instances against the same file is unsafe
// and unsupported.
type Bot struct {
	chainKey string
	client   ChainClient
	params   Params
	tuning   Tuning
	token    common.Address

	mainKey  *ecdsa.PrivateKey
	mainAddr common.Address

	walletFile  string
	walletCount int
	pool        []wallet.Record
	active      map[common.Address]struct{}
	activeCount atomic.Int64

	exec   *executor
	funder *funder

	rng Rand
	now func() time.Time

	state  atomic.Int32
	stopCh chan struct{}
	done   chan struct{}
	events chan Event
}

// New validates cfg and builds an idle bot. It performs no chain calls;
// initialization against the chain happens in Start.
func New(cfg Config) (*Bot, error) {
	if cfg.ChainKey == "" {
		return nil, fmt.Errorf("chain key required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if cfg.MainWalletKey == nil {
		return nil, fmt.Errorf("main wallet key required")
	}
	if (cfg.TokenAddress == common.Address{}) {
		return nil, fmt.Errorf("token address required")
	}
	if cfg.WalletFile == "" {
		return nil, fmt.Errorf("wallet file required")
	}

	params := cfg.Params.withDefaults()
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	tuning := cfg.Tuning.withDefaults()

	rng := cfg.Rng
	if rng == nil {
		rng = NewRand()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	b := &Bot{
		chainKey:   cfg.ChainKey,
		client:     cfg.Client,
		params:     params,
		tuning:     tuning,
		token:      cfg.TokenAddress,
		mainKey:    cfg.MainWalletKey,
		mainAddr:   crypto.PubkeyToAddress(cfg.MainWalletKey.PublicKey),
		walletFile: cfg.WalletFile,
		rng:        rng,
		now:        now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		events:     make(chan Event, 256),
	}

	confirmTimeout := func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, tuning.ConfirmTimeout)
	}
	b.funder = &funder{
		client:         b.client,
		mainKey:        b.mainKey,
		main:           b.mainAddr,
		fundAmount:     params.FundAmountWei,
		fundThreshold:  params.FundThresholdWei,
		sweepReserve:   tuning.SweepReserveWei,
		confirmTimeout: confirmTimeout,
		emit:           b.emit,
	}
	b.exec = &executor{
		client:         b.client,
		params:         params,
		token:          b.token,
		rng:            rng,
		funder:         b.funder,
		confirmTimeout: confirmTimeout,
		emit:           b.emit,
	}

	walletCount := cfg.WalletCount
	if walletCount <= 0 {
		walletCount = 10
	}
	b.walletCount = walletCount
	return b, nil
}

// Start initializes against the chain and launches the trading loop. It fails
// without side effects when the main wallet is under the balance floor or the
// wallet file is unusable. Starting a running or stopped bot is an error.
func (b *Bot) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateIdle, stateRunning) {
		if b.state.Load() == stateStopped {
			return ErrStopped
		}
		return ErrAlreadyRunning
	}

	if err := b.initialize(ctx); err != nil {
		b.state.Store(stateStopped)
		close(b.events)
		close(b.done)
		return err
	}

	log.Printf("[info] %s: bot started, pool=%d active=%d main=%s",
		b.chainKey, len(b.pool), len(b.active), b.mainAddr.Hex())
	b.emit(Event{Type: EventStarted})
	go b.run(ctx)
	return nil
}

func (b *Bot) initialize(ctx context.Context) error {
	mainBal, err := b.client.NativeBalance(ctx, b.mainAddr)
	if err != nil {
		return fmt.Errorf("main wallet balance: %w", err)
	}
	if mainBal.Cmp(b.tuning.MinMainBalanceWei) < 0 {
		return fmt.Errorf("main wallet %s balance %s wei below required floor %s wei",
			b.mainAddr.Hex(), mainBal, b.tuning.MinMainBalanceWei)
	}

	pool, err := wallet.Load(b.walletFile, b.walletCount)
	if err != nil {
		return fmt.Errorf("wallet pool: %w", err)
	}
	b.pool = pool
	b.active = selectActive(b.rng, b.pool, b.params.ActiveFraction)
	b.activeCount.Store(int64(len(b.active)))
	return nil
}

// Stop requests a cooperative shutdown. An in-flight trade completes; the
// loop exits at its next stop check. Safe to call more than once.
func (b *Bot) Stop() {
	if b.state.CompareAndSwap(stateRunning, stateStopped) {
		close(b.stopCh)
	}
}

// Done closes once the loop has fully exited.
func (b *Bot) Done() <-chan struct{} { return b.done }

func (b *Bot) Status() Status {
	switch b.state.Load() {
	case stateRunning:
		return StatusRunning
	case stateStopped:
		return StatusStopped
	default:
		return StatusIdle
	}
}

func (b *Bot) Running() bool { return b.state.Load() == stateRunning }

func (b *Bot) stopRequested(ctx context.Context) bool {
	select {
	case <-b.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (b *Bot) run(ctx context.Context) {
	defer close(b.done)
	defer close(b.events)

	for {
		if b.stopRequested(ctx) {
			break
		}
		delay := b.cycle(ctx)
		if !b.sleep(ctx, delay) {
			break
		}
	}

	b.state.Store(stateStopped)
	log.Printf("[info] %s: bot stopped", b.chainKey)
	b.emit(Event{Type: EventStopped})
}

// cycle runs one scheduling pass and returns how long to sleep before the
// next one. Failures inside a cycle are never fatal; they stretch the sleep
// to the retry delay and the loop carries on.
func (b *Bot) cycle(ctx context.Context) time.Duration {
	if b.rng.Float64() < b.tuning.RecomputeProbability {
		b.active = selectActive(b.rng, b.pool, b.params.ActiveFraction)
		b.activeCount.Store(int64(len(b.active)))
		log.Printf("[cycle] %s: active set resampled, %d of %d wallets", b.chainKey, len(b.active), len(b.pool))
	}

	gasPrice, err := b.client.GasPrice(ctx)
	if err != nil {
		log.Printf("[cycle] %s: gas price: %v", b.chainKey, err)
		b.emit(Event{Type: EventCycleError, Err: err.Error()})
		return b.tuning.RetryDelay
	}
	if b.params.MaxGasPriceWei != nil && gasPrice.Cmp(b.params.MaxGasPriceWei) > 0 {
		log.Printf("[cycle] %s: gas %s wei above cap %s wei, skipping cycle", b.chainKey, gasPrice, b.params.MaxGasPriceWei)
		b.emit(Event{Type: EventGasSkipped, GasPriceWei: gasPrice.String()})
		return b.tuning.GasBackoff
	}

	for i := range b.pool {
		if b.stopRequested(ctx) {
			break
		}
		w := &b.pool[i]
		if _, ok := b.active[w.Address]; !ok {
			continue
		}
		if !b.eligible(*w) {
			continue
		}

		b.exec.executeTrade(ctx, *w)
		// Attempted is enough: a failing wallet waits out a full interval
		// before it can burn another slot.
		w.LastTradeTime = b.now().Unix()

		if !b.sleep(ctx, randomDelay(b.rng, b.tuning.JitterMin, b.tuning.JitterMax)) {
			break
		}
	}

	if err := wallet.Save(b.walletFile, b.pool); err != nil {
		// Not fatal: the next successful save restores durability.
		log.Printf("[cycle] %s: persist wallet pool: %v", b.chainKey, err)
		b.emit(Event{Type: EventCycleError, Err: err.Error()})
		return b.tuning.RetryDelay
	}
	return b.tuning.CheckInterval
}

// eligible redraws the wallet's wait threshold and checks elapsed time
// against it.
func (b *Bot) eligible(w wallet.Record) bool {
	delay := randomDelay(b.rng, b.params.MinInterval, b.params.MaxInterval)
	elapsed := b.now().Sub(time.Unix(w.LastTradeTime, 0))
	return elapsed >= delay
}

// sleep waits for d, returning false when a stop arrived instead.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !b.stopRequested(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-b.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// MainBalance reports the funding wallet's current native balance.
func (b *Bot) MainBalance(ctx context.Context) (*big.Int, error) {
	return b.client.NativeBalance(ctx, b.mainAddr)
}

// PoolSize reports how many wallets the bot manages.
func (b *Bot) PoolSize() int { return len(b.pool) }

// ActiveSize reports the current active-set size.
func (b *Bot) ActiveSize() int { return int(b.activeCount.Load()) }

// ChainKey names the chain this bot trades on.
func (b *Bot) ChainKey() string { return b.chainKey }
