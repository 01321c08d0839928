package volume

import (
	"fmt"
	"math/big"
	"time"
)

// Params are the per-chain trading parameters. They are fixed at construction
// time; there is no hot reload.
type Params struct {
	// Trade sizing, native wei. Each trade draws uniformly from
	// [MinAmountWei, MaxAmountWei] and perturbs the draw by ±VariancePct%.
	MinAmountWei *big.Int
	MaxAmountWei *big.Int
	VariancePct  int64

	// Per-wallet spacing. Eligibility redraws a fresh threshold from this
	// range on every scan, so trade timing is jittered, not periodic.
	MinInterval time.Duration
	MaxInterval time.Duration

	// GasMultiplierPct scales the node's suggested gas price for swaps
	// (integer percent, 110 = +10%).
	GasMultiplierPct int64

	// MaxGasPriceWei gates the whole cycle: above it, no trades are
	// attempted. Nil disables the gate.
	MaxGasPriceWei *big.Int

	// Funding policy: top up FundAmountWei from the main wallet whenever a
	// wallet's balance drops under FundThresholdWei.
	FundAmountWei    *big.Int
	FundThresholdWei *big.Int

	// SafetyFloorWei is gas headroom a wallet must keep on top of the drawn
	// trade amount; below it the trade is skipped.
	SafetyFloorWei *big.Int

	// ActiveFraction of the pool is eligible to trade at any time.
	ActiveFraction float64

	// AllowUnprotectedSwap keeps the legacy behavior of swapping with zero
	// minimum output when the router quote fails. When false the trade is
	// skipped instead.
	AllowUnprotectedSwap bool
}

func (p Params) withDefaults() Params {
	if p.MinAmountWei == nil {
		p.MinAmountWei = ether(0.002)
	}
	if p.MaxAmountWei == nil {
		p.MaxAmountWei = ether(0.01)
	}
	if p.VariancePct <= 0 {
		p.VariancePct = 10
	}
	if p.MinInterval <= 0 {
		p.MinInterval = 3 * time.Minute
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 15 * time.Minute
	}
	if p.GasMultiplierPct <= 0 {
		p.GasMultiplierPct = 110
	}
	if p.FundAmountWei == nil {
		p.FundAmountWei = ether(0.05)
	}
	if p.FundThresholdWei == nil {
		p.FundThresholdWei = ether(0.01)
	}
	if p.SafetyFloorWei == nil {
		p.SafetyFloorWei = ether(0.001)
	}
	if p.ActiveFraction <= 0 || p.ActiveFraction > 1 {
		p.ActiveFraction = 0.4
	}
	return p
}

func (p Params) validate() error {
	if p.MinAmountWei.Sign() <= 0 {
		return fmt.Errorf("min amount must be positive")
	}
	if p.MaxAmountWei.Cmp(p.MinAmountWei) < 0 {
		return fmt.Errorf("max amount %s below min amount %s", p.MaxAmountWei, p.MinAmountWei)
	}
	if p.MaxInterval < p.MinInterval {
		return fmt.Errorf("max interval %s below min interval %s", p.MaxInterval, p.MinInterval)
	}
	return nil
}

// Tuning are the scheduler knobs. Zero values get defaults; most deployments
// never set these.
type Tuning struct {
	CheckInterval time.Duration // sleep between cycles
	RetryDelay    time.Duration // sleep after a failed cycle
	GasBackoff    time.Duration // sleep when gas is above the gate

	JitterMin time.Duration // inter-wallet pause, lower bound
	JitterMax time.Duration // inter-wallet pause, upper bound

	// RecomputeProbability is the per-cycle chance of resampling the active
	// set, so membership churn is geometric in cycles rather than periodic.
	RecomputeProbability float64

	MinMainBalanceWei *big.Int      // startup floor for the main wallet
	SweepReserveWei   *big.Int      // dust below which a wallet is not swept
	ConfirmTimeout    time.Duration // cap on any single confirmation wait
}

func (t Tuning) withDefaults() Tuning {
	if t.CheckInterval <= 0 {
		t.CheckInterval = 10 * time.Second
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = time.Minute
	}
	if t.GasBackoff <= 0 {
		t.GasBackoff = 30 * time.Second
	}
	if t.JitterMin <= 0 {
		t.JitterMin = time.Second
	}
	if t.JitterMax <= t.JitterMin {
		t.JitterMax = t.JitterMin + 4*time.Second
	}
	if t.RecomputeProbability <= 0 || t.RecomputeProbability > 1 {
		t.RecomputeProbability = 0.1
	}
	if t.MinMainBalanceWei == nil {
		t.MinMainBalanceWei = ether(0.001)
	}
	if t.SweepReserveWei == nil {
		t.SweepReserveWei = ether(0.0005)
	}
	if t.ConfirmTimeout <= 0 {
		t.ConfirmTimeout = 3 * time.Minute
	}
	return t
}

// ether converts a float amount to wei. Only used for defaults; configured
// amounts come in as decimal strings parsed without float rounding.
func ether(x float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(x), big.NewFloat(1e18)).Int(nil)
	return wei
}
