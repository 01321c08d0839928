// Package control exposes the bot over HTTP: start/stop/status plus a
// websocket event feed. One bot runs per process at a time.
package control

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"evm-volbot/internal/config"
	"evm-volbot/internal/volume"
)

// BotFactory builds a bot for one chain. Dialing the RPC endpoint and
// wiring the chain client happens behind this, so tests can inject
// fakes.
type BotFactory func(ctx context.Context, cc config.ChainConfig) (*volume.Bot, error)

// Overrides are the per-start parameter tweaks accepted by the API.
// Nil fields keep the configured value.
type Overrides struct {
	WalletCount      *int     `json:"wallet_count,omitempty"`
	ActiveFraction   *float64 `json:"active_fraction,omitempty"`
	MinIntervalSec   *int64   `json:"min_interval_sec,omitempty"`
	MaxIntervalSec   *int64   `json:"max_interval_sec,omitempty"`
	GasMultiplierPct *int64   `json:"gas_multiplier_pct,omitempty"`
}

func (o Overrides) apply(cc config.ChainConfig) config.ChainConfig {
	if o.WalletCount != nil {
		cc.WalletCount = *o.WalletCount
	}
	if o.ActiveFraction != nil {
		cc.Params.ActiveFraction = *o.ActiveFraction
	}
	if o.MinIntervalSec != nil {
		cc.Params.MinInterval = time.Duration(*o.MinIntervalSec) * time.Second
	}
	if o.MaxIntervalSec != nil {
		cc.Params.MaxInterval = time.Duration(*o.MaxIntervalSec) * time.Second
	}
	if o.GasMultiplierPct != nil {
		cc.Params.GasMultiplierPct = *o.GasMultiplierPct
	}
	return cc
}

// StatusInfo is the GET /api/status payload.
type StatusInfo struct {
	Status     string `json:"status"`
	Chain      string `json:"chain,omitempty"`
	PoolSize   int    `json:"pool_size,omitempty"`
	ActiveSize int    `json:"active_size,omitempty"`
}

// Manager owns the single running bot.
type Manager struct {
	cfg     *config.Config
	factory BotFactory

	mu       sync.Mutex
	bot      *volume.Bot
	chainKey string

	sinkMu sync.Mutex
	sinks  []func(volume.Event)
}

func NewManager(cfg *config.Config, factory BotFactory) *Manager {
	return &Manager{cfg: cfg, factory: factory}
}

// Subscribe registers fn to receive every event from every bot started
// through this manager. Must be called before Start.
func (m *Manager) Subscribe(fn func(volume.Event)) {
	m.sinkMu.Lock()
	m.sinks = append(m.sinks, fn)
	m.sinkMu.Unlock()
}

// Start builds and starts a bot for chainKey. A bot that is still
// running makes this fail with volume.ErrAlreadyRunning; a stopped one
// is replaced.
func (m *Manager) Start(ctx context.Context, chainKey string, ov Overrides) error {
	cc, ok := m.cfg.Chains[chainKey]
	if !ok {
		return fmt.Errorf("unknown chain %q", chainKey)
	}
	cc = ov.apply(cc)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bot != nil && m.bot.Running() {
		return volume.ErrAlreadyRunning
	}

	bot, err := m.factory(ctx, cc)
	if err != nil {
		return fmt.Errorf("build bot for %s: %w", chainKey, err)
	}
	if err := bot.Start(ctx); err != nil {
		return err
	}
	m.bot = bot
	m.chainKey = chainKey
	go m.pump(bot)
	log.Printf("[info] control: started bot on chain %s", chainKey)
	return nil
}

func (m *Manager) pump(bot *volume.Bot) {
	for ev := range bot.Events() {
		m.sinkMu.Lock()
		sinks := m.sinks
		m.sinkMu.Unlock()
		for _, fn := range sinks {
			fn(ev)
		}
	}
}

// Stop asks the running bot to finish its in-flight trade and exit.
// It does not wait.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bot == nil || !m.bot.Running() {
		return fmt.Errorf("no running bot")
	}
	m.bot.Stop()
	log.Printf("[info] control: stop requested for chain %s", m.chainKey)
	return nil
}

// Wait blocks until the current bot (if any) has fully stopped.
func (m *Manager) Wait() {
	m.mu.Lock()
	bot := m.bot
	m.mu.Unlock()
	if bot != nil {
		<-bot.Done()
	}
}

func (m *Manager) Status() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bot == nil {
		return StatusInfo{Status: "idle"}
	}
	return StatusInfo{
		Status:     string(m.bot.Status()),
		Chain:      m.chainKey,
		PoolSize:   m.bot.PoolSize(),
		ActiveSize: m.bot.ActiveSize(),
	}
}
