// sweep drains every temp wallet's native balance back to the main wallet.
// Run it after retiring a pool. Wallets whose balance does not cover the
// transfer gas are left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"evm-volbot/internal/chain"
	"evm-volbot/internal/config"
	"evm-volbot/internal/wallet"
)

const transferGas = 21000

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		chainKey string
		dryRun   bool
	)
	flag.StringVar(&chainKey, "chain", "", "Chain key from VOLBOT_CHAINS (default: the only configured chain)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report what would be swept without sending")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	cc, err := pickChain(cfg, chainKey)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := chain.Dial(ctx, cc.RPCURL,
		common.HexToAddress(cc.RouterAddress), common.HexToAddress(cc.WrappedNative))
	if err != nil {
		log.Fatalf("[fatal] dial: %v", err)
	}
	defer client.Close()

	mainKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cc.MainWalletKey), "0x"))
	if err != nil {
		log.Fatalf("[fatal] invalid main wallet key: %v", err)
	}
	mainAddr := crypto.PubkeyToAddress(mainKey.PublicKey)

	pool, err := wallet.Load(cc.WalletFile, cc.WalletCount)
	if err != nil {
		log.Fatalf("[fatal] wallet file: %v", err)
	}

	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		log.Fatalf("[fatal] gas price: %v", err)
	}
	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(transferGas))
	log.Printf("[info] sweeping %d wallets on %s to %s (gas price %s wei)",
		len(pool), cc.Key, mainAddr.Hex(), gasPrice)

	swept := new(big.Int)
	var sent, skipped, failed int
	for _, w := range pool {
		bal, err := client.NativeBalance(ctx, w.Address)
		if err != nil {
			log.Printf("[warn] %s: balance: %v", w.Address.Hex(), err)
			failed++
			continue
		}
		amount := new(big.Int).Sub(bal, gasCost)
		if amount.Sign() <= 0 {
			skipped++
			continue
		}
		if dryRun {
			log.Printf("[info] %s: would sweep %s wei", w.Address.Hex(), amount)
			swept.Add(swept, amount)
			sent++
			continue
		}

		key, err := w.Key()
		if err != nil {
			log.Printf("[warn] %s: bad secret: %v", w.Address.Hex(), err)
			failed++
			continue
		}
		txHash, err := client.TransferNative(ctx, key, mainAddr, amount, gasPrice)
		if err != nil {
			log.Printf("[warn] %s: transfer: %v", w.Address.Hex(), err)
			failed++
			continue
		}
		confirmCtx, cancelConfirm := context.WithTimeout(ctx, 3*time.Minute)
		_, err = client.WaitConfirmed(confirmCtx, txHash)
		cancelConfirm()
		if err != nil {
			log.Printf("[warn] %s: confirm %s: %v", w.Address.Hex(), txHash.Hex(), err)
			failed++
			continue
		}
		log.Printf("[info] %s: swept %s wei (%s)", w.Address.Hex(), amount, txHash.Hex())
		swept.Add(swept, amount)
		sent++
	}

	log.Printf("[info] done: sent=%d skipped=%d failed=%d total=%s wei", sent, skipped, failed, swept)
}

func pickChain(cfg *config.Config, key string) (config.ChainConfig, error) {
	if key != "" {
		cc, ok := cfg.Chains[key]
		if !ok {
			return config.ChainConfig{}, fmt.Errorf("unknown chain %q", key)
		}
		return cc, nil
	}
	if len(cfg.Chains) == 1 {
		for _, cc := range cfg.Chains {
			return cc, nil
		}
	}
	return config.ChainConfig{}, fmt.Errorf("multiple chains configured; pass --chain")
}
