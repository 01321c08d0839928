package volume

import "time"

// Event types emitted by the engine.
const (
	EventStarted    = "started"
	EventStopped    = "stopped"
	EventGasSkipped = "gas_skipped"
	EventTrade      = "trade"
	EventTradeSkip  = "trade_skipped"
	EventFunded     = "funded"
	EventSwept      = "swept"
	EventCycleError = "cycle_error"
)

// Event is one engine occurrence, shaped for the JSONL trade history and the
// control server's websocket feed.
type Event struct {
	TsMs  int64  `json:"ts_ms"`
	Type  string `json:"event"`
	Chain string `json:"chain,omitempty"`

	Wallet    string `json:"wallet,omitempty"`
	Side      string `json:"side,omitempty"`
	AmountWei string `json:"amount_wei,omitempty"`
	MinOutWei string `json:"min_out_wei,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`

	GasPriceWei string `json:"gas_price_wei,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Err         string `json:"err,omitempty"`
}

func (b *Bot) emit(ev Event) {
	ev.TsMs = time.Now().UnixMilli()
	ev.Chain = b.chainKey
	select {
	case b.events <- ev:
	default:
		// Slow or absent consumers never stall the trading loop.
	}
}

// Events returns the engine's event feed. The channel is buffered and lossy;
// it closes after the loop has fully stopped.
func (b *Bot) Events() <-chan Event {
	return b.events
}
