// volbot runs the volume bot and its HTTP control API.
//
// Configuration comes from the environment (see internal/config). With
// VOLBOT_AUTOSTART set the bot starts trading immediately; otherwise it
// waits for POST /api/start.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"evm-volbot/internal/chain"
	"evm-volbot/internal/config"
	"evm-volbot/internal/control"
	"evm-volbot/internal/jsonl"
	"evm-volbot/internal/volume"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	log.Printf("[cfg] listen=%s chains=%s autostart=%q",
		cfg.ListenAddr, strings.Join(chainKeys(cfg), ","), cfg.AutoStartChain)

	manager := control.NewManager(cfg, buildBot)

	if cfg.TradeLogPath != "" {
		tradeLog, err := jsonl.Open(cfg.TradeLogPath)
		if err != nil {
			log.Fatalf("[fatal] open trade log: %v", err)
		}
		defer tradeLog.Close()
		manager.Subscribe(func(ev volume.Event) {
			if err := tradeLog.Write(ev); err != nil {
				log.Printf("[warn] trade log write failed: %v", err)
			}
		})
		log.Printf("[cfg] trade log: %s", cfg.TradeLogPath)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: control.NewServer(manager),
	}
	go func() {
		log.Printf("[info] control API listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[fatal] http server: %v", err)
		}
	}()

	if cfg.AutoStartChain != "" {
		if err := manager.Start(context.Background(), cfg.AutoStartChain, control.Overrides{}); err != nil {
			log.Fatalf("[fatal] autostart %s: %v", cfg.AutoStartChain, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[info] %s received, stopping", sig)

	if err := manager.Stop(); err == nil {
		manager.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[warn] http shutdown: %v", err)
	}
	log.Printf("[info] bye")
}

func buildBot(ctx context.Context, cc config.ChainConfig) (*volume.Bot, error) {
	router, err := parseAddress(cc.RouterAddress, "router")
	if err != nil {
		return nil, err
	}
	wnative, err := parseAddress(cc.WrappedNative, "wrapped native")
	if err != nil {
		return nil, err
	}
	token, err := parseAddress(cc.TokenAddress, "token")
	if err != nil {
		return nil, err
	}
	mainKey, err := parseKey(cc.MainWalletKey)
	if err != nil {
		return nil, err
	}

	client, err := chain.Dial(ctx, cc.RPCURL, router, wnative)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cc.Key, err)
	}

	return volume.New(volume.Config{
		ChainKey:      cc.Key,
		Client:        client,
		MainWalletKey: mainKey,
		TokenAddress:  token,
		WalletFile:    cc.WalletFile,
		WalletCount:   cc.WalletCount,
		Params:        cc.Params,
		Tuning:        cc.Tuning,
	})
}

func parseAddress(raw, what string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", what, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseKey(raw string) (*ecdsa.PrivateKey, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid main wallet key: %w", err)
	}
	return k, nil
}

func chainKeys(cfg *config.Config) []string {
	keys := make([]string, 0, len(cfg.Chains))
	for k := range cfg.Chains {
		keys = append(keys, k)
	}
	return keys
}
