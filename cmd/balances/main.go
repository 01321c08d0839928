// balances is a one-shot reporter: it prints the main wallet's and every
// temp wallet's native and token balance for one configured chain.
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

func main() {
	log.SetFlags(0)

	var chainKey string
	flag.StringVar(&chainKey, "chain", "", "Chain key from VOLBOT_CHAINS (default: the only configured chain)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	cc, err := pickChain(cfg, chainKey)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := chain.Dial(ctx, cc.RPCURL,
		common.HexToAddress(cc.RouterAddress), common.HexToAddress(cc.WrappedNative))
	if err != nil {
		log.Fatalf("[fatal] dial: %v", err)
	}
	defer client.Close()
	token := common.HexToAddress(cc.TokenAddress)

	mainKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cc.MainWalletKey), "0x"))
	if err != nil {
		log.Fatalf("[fatal] invalid main wallet key: %v", err)
	}
	mainAddr := crypto.PubkeyToAddress(mainKey.PublicKey)

	pool, err := wallet.Load(cc.WalletFile, cc.WalletCount)
	if err != nil {
		log.Fatalf("[fatal] wallet file: %v", err)
	}

	fmt.Printf("chain: %s  token: %s\n", cc.Key, token.Hex())
	printRow(ctx, client, token, "main", mainAddr)

	totalNative := new(big.Int)
	totalToken := new(big.Int)
	for i, w := range pool {
		nat, tok := printRow(ctx, client, token, fmt.Sprintf("w%02d", i), w.Address)
		if nat != nil {
			totalNative.Add(totalNative, nat)
		}
		if tok != nil {
			totalToken.Add(totalToken, tok)
		}
	}
	fmt.Printf("pool total: native=%s token=%s (%d wallets)\n",
		formatEther(totalNative), totalToken, len(pool))
}

func printRow(ctx context.Context, client *chain.Client, token common.Address, label string, addr common.Address) (*big.Int, *big.Int) {
	nat, err := client.NativeBalance(ctx, addr)
	if err != nil {
		log.Printf("[warn] %s %s: native balance: %v", label, addr.Hex(), err)
		return nil, nil
	}
	tok, err := client.TokenBalance(ctx, token, addr)
	if err != nil {
		log.Printf("[warn] %s %s: token balance: %v", label, addr.Hex(), err)
		tok = nil
	}
	fmt.Printf("%-5s %s  native=%s  token=%s\n", label, addr.Hex(), formatEther(nat), tok)
	return nat, tok
}

// formatEther renders wei as a decimal ether string without float rounding.
func formatEther(wei *big.Int) string {
	if wei == nil {
		return "?"
	}
	q, r := new(big.Int).QuoRem(wei, big.NewInt(1e18), new(big.Int))
	frac := strings.TrimRight(fmt.Sprintf("%018d", r), "0")
	if frac == "" {
		return q.String()
	}
	return q.String() + "." + frac
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
