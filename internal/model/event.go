package model

// Stream event type constants.
const (
	EventPriceUpdate    = "price_update"
	EventTradeEntry     = "trade_entry"
	EventTradeExit      = "trade_exit"
	EventStreamFinished = "stream-finished"
	EventStreamError    = "stream-error"
)

// TradeEvent is the optional transition sub-record carried by a stream event.
type TradeEvent struct {
	Type       string   `json:"type"`
	Direction  string   `json:"direction"`
	EntryTime  string   `json:"entry_time,omitempty"`
	EntryPrice *float64 `json:"entry_price,omitempty"`
	ExitTime   string   `json:"exit_time,omitempty"`
	ExitPrice  *float64 `json:"exit_price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	PnL        *float64 `json:"pnl,omitempty"`
}

// StreamEvent is one time-indexed observation written by a computation in
// streaming mode.
type StreamEvent struct {
	Type       string      `json:"type"`
	Timestamp  string      `json:"timestamp"`
	Open       float64     `json:"open"`
	High       float64     `json:"high"`
	Low        float64     `json:"low"`
	Close      float64     `json:"close"`
	Volume     float64     `json:"volume"`
	Equity     float64     `json:"equity"`
	TradeEvent *TradeEvent `json:"trade_event,omitempty"`
}

// Terminal is the last message a stream run publishes.
type Terminal struct {
	Type     string `json:"type"`
	RunID    string `json:"run_id,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StreamFinished builds the terminal event for a run whose process exited.
func StreamFinished(runID string, exitCode int) Terminal {
	return Terminal{Type: EventStreamFinished, RunID: runID, ExitCode: &exitCode}
}

// StreamError builds the terminal event for a run that failed.
func StreamError(runID string, reason string) Terminal {
	return Terminal{Type: EventStreamError, RunID: runID, Message: reason}
}
