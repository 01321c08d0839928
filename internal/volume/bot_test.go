package volume

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"evm-volbot/internal/wallet"
)

func testTuning() Tuning {
	return Tuning{
		CheckInterval:        time.Millisecond,
		RetryDelay:           2 * time.Millisecond,
		GasBackoff:           3 * time.Millisecond,
		JitterMin:            time.Microsecond,
		JitterMax:            2 * time.Microsecond,
		RecomputeProbability: 0.1,
		MinMainBalanceWei:    big.NewInt(1_000_000),
		SweepReserveWei:      big.NewInt(500_000),
		ConfirmTimeout:       time.Second,
	}
}

func newTestBot(t *testing.T, client *fakeClient, rng Rand, walletCount int) *Bot {
	t.Helper()
	mainKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("main key: %v", err)
	}
	client.setNative(crypto.PubkeyToAddress(mainKey.PublicKey), big.NewInt(1_000_000_000))

	params := testParams()
	params.ActiveFraction = 1.0

	b, err := New(Config{
		ChainKey:      "testchain",
		Client:        client,
		MainWalletKey: mainKey,
		TokenAddress:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		WalletFile:    filepath.Join(t.TempDir(), "wallets.json"),
		WalletCount:   walletCount,
		Params:        params,
		Tuning:        testTuning(),
		Rng:           rng,
	})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b
}

func TestInitializeRequiresMainBalanceFloor(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(1), 3)

	// 1.0 "ether" in test units against a 0.001 floor: fine.
	client.setNative(b.mainAddr, big.NewInt(1_000_000_000))
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize above floor: %v", err)
	}

	// Below the floor: fatal before the loop ever runs.
	client.setNative(b.mainAddr, big.NewInt(500))
	b2 := newTestBot(t, client, seededRand(1), 3)
	client.setNative(b2.mainAddr, big.NewInt(500))
	err := b2.initialize(context.Background())
	if err == nil || !strings.Contains(err.Error(), "below required floor") {
		t.Fatalf("initialize under floor: got %v want balance-floor error", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(2), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := b.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start: got %v want ErrAlreadyRunning", err)
	}

	b.Stop()
	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("bot did not stop")
	}
	if err := b.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("start after stop: got %v want ErrStopped", err)
	}
}

func TestCycleGasGateSkipsAllTrades(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(3), 4)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	b.params.MaxGasPriceWei = big.NewInt(50)
	client.gasPrice = big.NewInt(60)

	delay := b.cycle(context.Background())
	if delay != b.tuning.GasBackoff {
		t.Fatalf("delay: got %s want gas backoff %s", delay, b.tuning.GasBackoff)
	}
	if calls := client.callsSnapshot(); len(calls) != 0 {
		t.Fatalf("gas-gated cycle still touched the chain: %v", calls)
	}
	for _, w := range b.pool {
		if w.LastTradeTime != 0 {
			t.Fatalf("gas-gated cycle advanced a trade timestamp")
		}
	}
}

func TestCycleProceedsUnderGasCap(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(4), 3)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	b.params.MaxGasPriceWei = big.NewInt(50)
	client.gasPrice = big.NewInt(40)

	delay := b.cycle(context.Background())
	if delay != b.tuning.CheckInterval {
		t.Fatalf("delay: got %s want check interval %s", delay, b.tuning.CheckInterval)
	}
	for i, w := range b.pool {
		if w.LastTradeTime == 0 {
			t.Fatalf("wallet %d: trade attempt did not advance timestamp", i)
		}
	}
}

func TestCycleAdvancesTimestampOnFailedSwap(t *testing.T) {
	client := newFakeClient()
	client.swapErr = errors.New("router rejected")
	b := newTestBot(t, client, seededRand(5), 2)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := range b.pool {
		client.setNative(b.pool[i].Address, big.NewInt(100_000_000))
	}

	b.cycle(context.Background())

	for i, w := range b.pool {
		if w.LastTradeTime == 0 {
			t.Fatalf("wallet %d: failed trade must still advance timestamp", i)
		}
	}
}

func TestCyclePersistsPool(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(6), 2)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	b.cycle(context.Background())

	persisted, err := wallet.Load(b.walletFile, 2)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for i := range persisted {
		if persisted[i].LastTradeTime != b.pool[i].LastTradeTime {
			t.Fatalf("wallet %d: persisted timestamp %d != in-memory %d",
				i, persisted[i].LastTradeTime, b.pool[i].LastTradeTime)
		}
	}
}

func TestStopMidCycleFinishesInFlightTradeOnly(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(7), 5)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := range b.pool {
		client.setNative(b.pool[i].Address, big.NewInt(100_000_000))
	}
	client.onSwap = b.Stop // stop lands while the first trade is in flight

	b.state.Store(stateRunning)
	b.cycle(context.Background())

	swaps := 0
	for _, call := range client.callsSnapshot() {
		if strings.HasPrefix(call, "buy ") || strings.HasPrefix(call, "sell ") {
			swaps++
		}
	}
	if swaps != 1 {
		t.Fatalf("swaps after mid-cycle stop: got %d want 1", swaps)
	}
}

func TestEligibilityDeterministicUnderFixedClockAndDraw(t *testing.T) {
	client := newFakeClient()
	now := time.Unix(1_700_000_000, 0)

	b := newTestBot(t, client, seededRand(8), 2)
	b.now = func() time.Time { return now }
	// MinInterval 1m, MaxInterval 5m: a 0.5 draw means a 3m threshold.
	w := wallet.Record{LastTradeTime: now.Add(-4 * time.Minute).Unix()}

	b.rng = &scriptRand{floats: []float64{0.5}}
	if !b.eligible(w) {
		t.Fatalf("4m elapsed vs 3m threshold: want eligible")
	}
	b.rng = &scriptRand{floats: []float64{1.0}}
	if b.eligible(w) {
		t.Fatalf("4m elapsed vs 5m threshold: want not eligible")
	}
	// Same draw, same clock, same answer.
	b.rng = &scriptRand{floats: []float64{0.5}}
	first := b.eligible(w)
	b.rng = &scriptRand{floats: []float64{0.5}}
	second := b.eligible(w)
	if first != second {
		t.Fatalf("eligibility not deterministic: %v then %v", first, second)
	}
}

func TestCycleErrorReturnsRetryDelay(t *testing.T) {
	client := newFakeClient()
	b := newTestBot(t, client, seededRand(9), 2)
	if err := b.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	client.gasPriceErr = errors.New("rpc down")
	if delay := b.cycle(context.Background()); delay != b.tuning.RetryDelay {
		t.Fatalf("delay: got %s want retry delay %s", delay, b.tuning.RetryDelay)
	}
}
