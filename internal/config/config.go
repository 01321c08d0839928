// Package config loads volbot settings from the environment (and an
// optional .env file in the working directory).
//
// The process-level keys are VOLBOT_LISTEN, VOLBOT_CHAINS, VOLBOT_AUTOSTART
// and VOLBOT_TRADELOG. VOLBOT_CHAINS is a comma-separated list of chain
// keys; each key becomes an upper-cased prefix for that chain's settings,
// e.g. VOLBOT_CHAINS=bsc,polygon then BSC_RPC_URL, BSC_ROUTER, ...
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"evm-volbot/internal/volume"
)

// ChainConfig is everything needed to run the bot against one chain.
type ChainConfig struct {
	Key           string
	RPCURL        string
	RouterAddress string
	WrappedNative string
	TokenAddress  string
	MainWalletKey string
	WalletFile    string
	WalletCount   int

	Params volume.Params
	Tuning volume.Tuning
}

// Config is the process-level configuration.
type Config struct {
	ListenAddr     string
	AutoStartChain string
	TradeLogPath   string
	Chains         map[string]ChainConfig
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr:     envOr("VOLBOT_LISTEN", ":8787"),
		AutoStartChain: env("VOLBOT_AUTOSTART"),
		TradeLogPath:   env("VOLBOT_TRADELOG"),
		Chains:         map[string]ChainConfig{},
	}

	keys := splitList(env("VOLBOT_CHAINS"))
	if len(keys) == 0 {
		return nil, fmt.Errorf("VOLBOT_CHAINS is empty; set at least one chain key")
	}
	for _, key := range keys {
		cc, err := loadChain(key)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", key, err)
		}
		cfg.Chains[key] = cc
	}

	if cfg.AutoStartChain != "" {
		if _, ok := cfg.Chains[cfg.AutoStartChain]; !ok {
			return nil, fmt.Errorf("VOLBOT_AUTOSTART=%s is not in VOLBOT_CHAINS", cfg.AutoStartChain)
		}
	}
	return cfg, nil
}

func loadChain(key string) (ChainConfig, error) {
	p := strings.ToUpper(key) + "_"
	cc := ChainConfig{
		Key:           key,
		RPCURL:        env(p + "RPC_URL"),
		RouterAddress: env(p + "ROUTER"),
		WrappedNative: env(p + "WNATIVE"),
		TokenAddress:  env(p + "TOKEN"),
		MainWalletKey: env(p + "MAIN_KEY"),
		WalletFile:    envOr(p+"WALLET_FILE", "wallets-"+key+".json"),
	}
	for name, v := range map[string]string{
		"RPC_URL":  cc.RPCURL,
		"ROUTER":   cc.RouterAddress,
		"WNATIVE":  cc.WrappedNative,
		"TOKEN":    cc.TokenAddress,
		"MAIN_KEY": cc.MainWalletKey,
	} {
		if v == "" {
			return ChainConfig{}, fmt.Errorf("%s%s is required", p, name)
		}
	}

	var err error
	if cc.WalletCount, err = intOr(p+"WALLET_COUNT", 10); err != nil {
		return ChainConfig{}, err
	}

	pa := &cc.Params
	if pa.MinAmountWei, err = etherEnv(p+"MIN_AMOUNT", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.MaxAmountWei, err = etherEnv(p+"MAX_AMOUNT", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.FundAmountWei, err = etherEnv(p+"FUND_AMOUNT", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.FundThresholdWei, err = etherEnv(p+"FUND_THRESHOLD", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.SafetyFloorWei, err = etherEnv(p+"SAFETY_FLOOR", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.MaxGasPriceWei, err = gweiEnv(p+"MAX_GAS_GWEI", nil); err != nil {
		return ChainConfig{}, err
	}
	if pa.MinInterval, err = durationOr(p+"MIN_INTERVAL", 0); err != nil {
		return ChainConfig{}, err
	}
	if pa.MaxInterval, err = durationOr(p+"MAX_INTERVAL", 0); err != nil {
		return ChainConfig{}, err
	}
	if pa.GasMultiplierPct, err = int64Or(p+"GAS_MULTIPLIER_PCT", 0); err != nil {
		return ChainConfig{}, err
	}
	if pa.VariancePct, err = int64Or(p+"VARIANCE_PCT", 0); err != nil {
		return ChainConfig{}, err
	}
	if pa.ActiveFraction, err = floatOr(p+"ACTIVE_FRACTION", 0); err != nil {
		return ChainConfig{}, err
	}
	if pa.AllowUnprotectedSwap, err = boolOr(p+"ALLOW_UNPROTECTED_SWAP", true); err != nil {
		return ChainConfig{}, err
	}

	tu := &cc.Tuning
	if tu.CheckInterval, err = durationOr(p+"CHECK_INTERVAL", 0); err != nil {
		return ChainConfig{}, err
	}
	if tu.ConfirmTimeout, err = durationOr(p+"CONFIRM_TIMEOUT", 0); err != nil {
		return ChainConfig{}, err
	}
	if tu.MinMainBalanceWei, err = etherEnv(p+"MIN_MAIN_BALANCE", nil); err != nil {
		return ChainConfig{}, err
	}
	if tu.SweepReserveWei, err = etherEnv(p+"SWEEP_RESERVE", nil); err != nil {
		return ChainConfig{}, err
	}
	return cc, nil
}

func env(name string) string { return strings.TrimSpace(os.Getenv(name)) }

func envOr(name, def string) string {
	if v := env(name); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intOr(name string, def int) (int, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return n, nil
}

func int64Or(name string, def int64) (int64, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return n, nil
}

func floatOr(name string, def float64) (float64, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return f, nil
}

func boolOr(name string, def bool) (bool, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return b, nil
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return d, nil
}

func etherEnv(name string, def *big.Int) (*big.Int, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	w, err := etherToWei(v)
	if err != nil {
		return nil, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return w, nil
}

func gweiEnv(name string, def *big.Int) (*big.Int, error) {
	v := env(name)
	if v == "" {
		return def, nil
	}
	w, err := decimalShift(v, 9)
	if err != nil {
		return nil, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return w, nil
}

// etherToWei converts a decimal ether string ("0.015") to wei exactly,
// without going through float64.
func etherToWei(s string) (*big.Int, error) {
	return decimalShift(s, 18)
}

func decimalShift(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("more than %d decimal places", decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal number")
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount")
	}
	return n, nil
}
