package model

import (
	"encoding/json"
	"fmt"
)

// Trade is one closed position in a batch result.
type Trade struct {
	EntryTime string  `json:"entry_time"`
	ExitTime  string  `json:"exit_time"`
	PnL       float64 `json:"pnl"`
	Type      string  `json:"type"`
}

// BatchResult is the document a computation writes in batch mode.
type BatchResult struct {
	FinalEquity float64   `json:"final_equity"`
	TotalTrades int       `json:"total_trades"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	WinRate     float64   `json:"win_rate"`
	AvgPnL      float64   `json:"avg_pnl"`
	Trades      []Trade   `json:"trades"`
	EquityCurve []float64 `json:"equity_curve"`
}

// Summary is the headline projection of a persisted result used for listings.
type Summary struct {
	BacktestID  string  `json:"backtestId"`
	FinalEquity float64 `json:"final_equity"`
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	AvgPnL      float64 `json:"avg_pnl"`
}

// Summarize projects a stored document onto its headline metrics. Fields
// absent from the document are left at zero; a document that is not a JSON
// object is an error.
func Summarize(id string, doc []byte) (Summary, error) {
	var r struct {
		FinalEquity float64 `json:"final_equity"`
		TotalTrades int     `json:"total_trades"`
		Wins        int     `json:"wins"`
		Losses      int     `json:"losses"`
		WinRate     float64 `json:"win_rate"`
		AvgPnL      float64 `json:"avg_pnl"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return Summary{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	return Summary{
		BacktestID:  id,
		FinalEquity: r.FinalEquity,
		TotalTrades: r.TotalTrades,
		Wins:        r.Wins,
		Losses:      r.Losses,
		WinRate:     r.WinRate,
		AvgPnL:      r.AvgPnL,
	}, nil
}
