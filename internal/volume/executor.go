package volume

import (
	"context"
	"crypto/ecdsa"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"evm-volbot/internal/chain"
	"evm-volbot/internal/wallet"
)

type side string

const (
	sideBuy  side = "buy"
	sideSell side = "sell"
)

// Slippage protection: accept at least 95% of the router's quoted output.
const minOutQuoteBps = 9_500

// Sell trades move a uniform 30–70% slice of the wallet's token balance.
const (
	sellFractionMinPct  = 30
	sellFractionSpanPct = 41
)

const amountDrawResolution = 1_000_000

// executor runs one trade for one wallet. Chain failures are logged per
// wallet and never escalate: a misbehaving wallet costs its own slot in the
// cycle, nothing more.
type executor struct {
	client ChainClient
	params Params
	token  common.Address
	rng    Rand

	funder *funder

	confirmTimeout func(context.Context) (context.Context, context.CancelFunc)
	emit           func(Event)
}

// drawAmount samples a trade size: uniform in [min, max], perturbed by a
// symmetric ±VariancePct% so sizes don't cluster on a fingerprintable grid,
// then clamped back into [min, max×(1+VariancePct%)].
func drawAmount(rng Rand, p Params) *big.Int {
	span := new(big.Int).Sub(p.MaxAmountWei, p.MinAmountWei)
	frac := int64(rng.Float64() * amountDrawResolution)
	amount := new(big.Int).Mul(span, big.NewInt(frac))
	amount.Div(amount, big.NewInt(amountDrawResolution))
	amount.Add(amount, p.MinAmountWei)

	// Variance in hundredths of a percent keeps this in integer arithmetic.
	varCenti := p.VariancePct * 100
	drawn := int64(rng.IntN(int(2*varCenti+1))) - varCenti
	adj := new(big.Int).Mul(amount, big.NewInt(drawn))
	adj.Div(adj, big.NewInt(10_000))
	amount.Add(amount, adj)

	if amount.Cmp(p.MinAmountWei) < 0 {
		amount.Set(p.MinAmountWei)
	}
	ceiling := new(big.Int).Mul(p.MaxAmountWei, big.NewInt(100+p.VariancePct))
	ceiling.Div(ceiling, big.NewInt(100))
	if amount.Cmp(ceiling) > 0 {
		amount.Set(ceiling)
	}
	return amount
}

// sellAmount picks the token slice to sell from the current balance.
func sellAmount(rng Rand, tokenBalance *big.Int) *big.Int {
	pct := int64(sellFractionMinPct + rng.IntN(sellFractionSpanPct))
	amount := new(big.Int).Mul(tokenBalance, big.NewInt(pct))
	return amount.Div(amount, big.NewInt(100))
}

// chooseSide is a fair coin flip when both directions are possible; a wallet
// holding no tokens can only buy.
func chooseSide(rng Rand, tokenBalance *big.Int) side {
	if tokenBalance == nil || tokenBalance.Sign() <= 0 {
		return sideBuy
	}
	if rng.IntN(2) == 0 {
		return sideBuy
	}
	return sideSell
}

func minOutFromQuote(quoted *big.Int) *big.Int {
	minOut := new(big.Int).Mul(quoted, big.NewInt(minOutQuoteBps))
	return minOut.Div(minOut, big.NewInt(10_000))
}

// quoteMinOut returns the slippage-protected minimum output for amountIn
// along path, or zero when the quote fails and unprotected swaps are allowed.
// The zero fallback accepts unlimited slippage; it is deliberate, configured
// behavior, not an accident (see Params.AllowUnprotectedSwap).
func (e *executor) quoteMinOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, bool) {
	amounts, err := e.client.AmountsOut(ctx, amountIn, path)
	if err == nil && len(amounts) > 0 && amounts[len(amounts)-1].Sign() > 0 {
		return minOutFromQuote(amounts[len(amounts)-1]), true
	}
	if err != nil {
		log.Printf("[trade] quote failed for %s along %d-hop path: %v", amountIn, len(path), err)
	}
	if e.params.AllowUnprotectedSwap {
		return new(big.Int), true
	}
	return nil, false
}

// executeTrade runs the full per-wallet sequence: fund, size, pick direction,
// swap, and on a sell sweep the surplus home. The caller advances the
// wallet's LastTradeTime whether or not any of this succeeded.
func (e *executor) executeTrade(ctx context.Context, w wallet.Record) {
	key, err := w.Key()
	if err != nil {
		log.Printf("[trade] %s: bad secret: %v", w.Address.Hex(), err)
		return
	}

	e.funder.ensureFunded(ctx, w.Address)

	nativeBal, err := e.client.NativeBalance(ctx, w.Address)
	if err != nil {
		log.Printf("[trade] %s: native balance: %v", w.Address.Hex(), err)
		return
	}
	tokenBal, err := e.client.TokenBalance(ctx, e.token, w.Address)
	if err != nil {
		log.Printf("[trade] %s: token balance: %v", w.Address.Hex(), err)
		return
	}

	amount := drawAmount(e.rng, e.params)

	// Silent skip on a thin wallet: this still counts as a trade attempt.
	need := new(big.Int).Add(amount, e.params.SafetyFloorWei)
	if nativeBal.Cmp(need) < 0 {
		log.Printf("[trade] %s: skip, balance %s below %s", w.Address.Hex(), nativeBal, need)
		e.emit(Event{Type: EventTradeSkip, Wallet: w.Address.Hex(), Reason: "insufficient balance"})
		return
	}

	gasPrice, err := e.client.GasPrice(ctx)
	if err != nil {
		log.Printf("[trade] %s: gas price: %v", w.Address.Hex(), err)
		return
	}
	gasPrice = chain.ScaleGasPrice(gasPrice, e.params.GasMultiplierPct)

	switch chooseSide(e.rng, tokenBal) {
	case sideBuy:
		e.buy(ctx, key, w.Address, amount, gasPrice)
	case sideSell:
		e.sell(ctx, key, w.Address, tokenBal, gasPrice)
	}
}

func (e *executor) buy(ctx context.Context, key *ecdsa.PrivateKey, addr common.Address, amountIn, gasPrice *big.Int) {
	path := []common.Address{e.client.WrappedNative(), e.token}
	minOut, ok := e.quoteMinOut(ctx, amountIn, path)
	if !ok {
		log.Printf("[trade] %s: buy skipped, no quote and unprotected swaps disabled", addr.Hex())
		e.emit(Event{Type: EventTradeSkip, Wallet: addr.Hex(), Side: string(sideBuy), Reason: "no quote"})
		return
	}

	txHash, err := e.client.SwapNativeForTokens(ctx, key, amountIn, minOut, e.token, gasPrice)
	if err != nil {
		log.Printf("[trade] %s: buy swap: %v", addr.Hex(), err)
		e.emit(Event{Type: EventTrade, Wallet: addr.Hex(), Side: string(sideBuy), AmountWei: amountIn.String(), Err: err.Error()})
		return
	}
	if !e.confirm(ctx, addr, txHash) {
		return
	}

	log.Printf("[trade] %s: bought for %s wei, min out %s (tx=%s)", addr.Hex(), amountIn, minOut, txHash.Hex())
	e.emit(Event{Type: EventTrade, Wallet: addr.Hex(), Side: string(sideBuy),
		AmountWei: amountIn.String(), MinOutWei: minOut.String(), TxHash: txHash.Hex()})
}

func (e *executor) sell(ctx context.Context, key *ecdsa.PrivateKey, addr common.Address, tokenBal, gasPrice *big.Int) {
	amountIn := sellAmount(e.rng, tokenBal)
	if amountIn.Sign() <= 0 {
		return
	}

	approveHash, err := e.client.ApproveRouter(ctx, key, e.token, amountIn, gasPrice)
	if err != nil {
		log.Printf("[trade] %s: approve: %v", addr.Hex(), err)
		return
	}
	if !e.confirm(ctx, addr, approveHash) {
		return
	}

	path := []common.Address{e.token, e.client.WrappedNative()}
	minOut, ok := e.quoteMinOut(ctx, amountIn, path)
	if !ok {
		log.Printf("[trade] %s: sell skipped, no quote and unprotected swaps disabled", addr.Hex())
		e.emit(Event{Type: EventTradeSkip, Wallet: addr.Hex(), Side: string(sideSell), Reason: "no quote"})
		return
	}

	txHash, err := e.client.SwapTokensForNative(ctx, key, e.token, amountIn, minOut, gasPrice)
	if err != nil {
		log.Printf("[trade] %s: sell swap: %v", addr.Hex(), err)
		e.emit(Event{Type: EventTrade, Wallet: addr.Hex(), Side: string(sideSell), AmountWei: amountIn.String(), Err: err.Error()})
		return
	}
	if !e.confirm(ctx, addr, txHash) {
		return
	}

	log.Printf("[trade] %s: sold %s tokens, min out %s wei (tx=%s)", addr.Hex(), amountIn, minOut, txHash.Hex())
	e.emit(Event{Type: EventTrade, Wallet: addr.Hex(), Side: string(sideSell),
		AmountWei: amountIn.String(), MinOutWei: minOut.String(), TxHash: txHash.Hex()})

	// Recycle what the sell freed up.
	e.funder.sweepToMain(ctx, key, addr)
}

func (e *executor) confirm(ctx context.Context, addr common.Address, txHash common.Hash) bool {
	wctx, cancel := e.confirmTimeout(ctx)
	defer cancel()
	if _, err := e.client.WaitConfirmed(wctx, txHash); err != nil {
		log.Printf("[trade] %s: confirm %s: %v", addr.Hex(), txHash.Hex(), err)
		return false
	}
	return true
}

// randomDelay draws a fresh eligibility threshold from [min, max]. Every scan
// redraws, so a wallet's wait is resampled rather than fixed at trade time.
func randomDelay(rng Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Float64()*float64(max-min))
}
