package volume

import (
	"context"
	"crypto/ecdsa"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const sweepGasLimit = 21_000

// funder moves native currency between the main wallet and the temp wallets.
// Both directions log and swallow failures: an unfunded wallet just fails its
// balance check downstream, and an unswept wallet is retried after its next
// sell.
type funder struct {
	client  ChainClient
	mainKey *ecdsa.PrivateKey
	main    common.Address

	fundAmount    *big.Int
	fundThreshold *big.Int
	sweepReserve  *big.Int

	confirmTimeout func(context.Context) (context.Context, context.CancelFunc)
	emit           func(Event)
}

// ensureFunded tops wallet addr up with fundAmount from the main wallet when
// its balance is under fundThreshold, waiting for the transfer to confirm so
// the balance read that follows sees the new funds.
func (f *funder) ensureFunded(ctx context.Context, addr common.Address) {
	bal, err := f.client.NativeBalance(ctx, addr)
	if err != nil {
		log.Printf("[fund] %s: balance check: %v", addr.Hex(), err)
		return
	}
	if bal.Cmp(f.fundThreshold) >= 0 {
		return
	}

	// Market-price gas: funding is not latency sensitive.
	gasPrice, err := f.client.GasPrice(ctx)
	if err != nil {
		log.Printf("[fund] %s: gas price: %v", addr.Hex(), err)
		return
	}
	txHash, err := f.client.TransferNative(ctx, f.mainKey, addr, f.fundAmount, gasPrice)
	if err != nil {
		log.Printf("[fund] %s: transfer: %v", addr.Hex(), err)
		return
	}

	wctx, cancel := f.confirmTimeout(ctx)
	defer cancel()
	if _, err := f.client.WaitConfirmed(wctx, txHash); err != nil {
		log.Printf("[fund] %s: confirm %s: %v", addr.Hex(), txHash.Hex(), err)
		return
	}

	log.Printf("[fund] %s topped up %s wei (tx=%s)", addr.Hex(), f.fundAmount, txHash.Hex())
	f.emit(Event{Type: EventFunded, Wallet: addr.Hex(), AmountWei: f.fundAmount.String(), TxHash: txHash.Hex()})
}

// sweepToMain returns a wallet's surplus native balance to the main wallet,
// leaving exactly the gas the transfer itself burns. Balances at or under the
// reserve are left alone as dust.
func (f *funder) sweepToMain(ctx context.Context, key *ecdsa.PrivateKey, addr common.Address) {
	bal, err := f.client.NativeBalance(ctx, addr)
	if err != nil {
		log.Printf("[sweep] %s: balance check: %v", addr.Hex(), err)
		return
	}
	if bal.Cmp(f.sweepReserve) <= 0 {
		return
	}

	gasPrice, err := f.client.GasPrice(ctx)
	if err != nil {
		log.Printf("[sweep] %s: gas price: %v", addr.Hex(), err)
		return
	}
	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(sweepGasLimit))
	remainder := new(big.Int).Sub(bal, gasCost)
	if remainder.Sign() <= 0 {
		return
	}

	txHash, err := f.client.TransferNative(ctx, key, f.main, remainder, gasPrice)
	if err != nil {
		log.Printf("[sweep] %s: transfer: %v", addr.Hex(), err)
		return
	}

	wctx, cancel := f.confirmTimeout(ctx)
	defer cancel()
	if _, err := f.client.WaitConfirmed(wctx, txHash); err != nil {
		log.Printf("[sweep] %s: confirm %s: %v", addr.Hex(), txHash.Hex(), err)
		return
	}

	log.Printf("[sweep] %s returned %s wei to main (tx=%s)", addr.Hex(), remainder, txHash.Hex())
	f.emit(Event{Type: EventSwept, Wallet: addr.Hex(), AmountWei: remainder.String(), TxHash: txHash.Hex()})
}
