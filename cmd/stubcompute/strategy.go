package main

import (
	"math"

	"github.com/seantiz/backtest/internal/model"
)

const (
	initialCapital = 1000.0
	riskPct        = 0.005
	atrLength      = 14
	smaLength      = 20
)

// Settings are the tunable strategy parameters.
type Settings struct {
	ATRMultSL    float64
	ATRMultTrail float64
	RRTarget     float64
}

type position struct {
	long      bool
	entry     float64
	stop      float64
	target    float64
	qty       float64
	extreme   float64
	entryTime string
}

// simulator trades a moving-average crossover with an ATR stop, a fixed
// reward:risk target and an ATR trailing stop.
type simulator struct {
	s      Settings
	equity float64
	pos    *position
	trades []model.Trade

	closes    []float64
	ranges    []float64
	prevClose float64
	prevSMA   float64
	havePrev  bool
	prevReady bool
}

func newSimulator(s Settings) *simulator {
	return &simulator{s: s, equity: initialCapital}
}

// step advances the simulation by one bar and reports the position change it
// caused, if any.
func (sim *simulator) step(b Bar) *model.TradeEvent {
	tr := b.High - b.Low
	if sim.havePrev {
		tr = max(tr, math.Abs(b.High-sim.prevClose), math.Abs(b.Low-sim.prevClose))
	}
	sim.ranges = window(sim.ranges, tr, atrLength)
	sim.closes = window(sim.closes, b.Close, smaLength)

	ready := len(sim.ranges) == atrLength && len(sim.closes) == smaLength
	var atr, sma float64
	if ready {
		atr, sma = mean(sim.ranges), mean(sim.closes)
	}

	var ev *model.TradeEvent
	switch {
	case sim.pos != nil:
		ev = sim.manage(b, atr)
	case ready && sim.prevReady:
		crossUp := sim.prevClose <= sim.prevSMA && b.Close > sma
		crossDown := sim.prevClose >= sim.prevSMA && b.Close < sma
		if crossUp || crossDown {
			ev = sim.open(b, atr, crossUp)
		}
	}

	sim.prevClose, sim.prevSMA = b.Close, sma
	sim.havePrev, sim.prevReady = true, ready
	return ev
}

func (sim *simulator) open(b Bar, atr float64, long bool) *model.TradeEvent {
	slDist := atr * sim.s.ATRMultSL
	if slDist <= 0 {
		return nil
	}
	qty := math.Floor(sim.equity * riskPct / slDist)
	if qty <= 0 {
		return nil
	}

	p := &position{long: long, entry: b.Close, qty: qty, extreme: b.High, entryTime: b.Time.Format(timeLayout)}
	if long {
		p.stop = b.Close - slDist
		p.target = b.Close + slDist*sim.s.RRTarget
	} else {
		p.extreme = b.Low
		p.stop = b.Close + slDist
		p.target = b.Close - slDist*sim.s.RRTarget
	}
	sim.pos = p

	return &model.TradeEvent{
		Type:       model.EventTradeEntry,
		Direction:  direction(long),
		EntryTime:  p.entryTime,
		EntryPrice: ptr(p.entry),
		StopLoss:   ptr(p.stop),
		TakeProfit: ptr(p.target),
	}
}

// manage trails the stop and closes the position when the bar reaches the
// stop or the target. The stop is checked first.
func (sim *simulator) manage(b Bar, atr float64) *model.TradeEvent {
	p := sim.pos
	var exit float64
	if p.long {
		p.extreme = max(p.extreme, b.High)
		if atr > 0 {
			p.stop = max(p.stop, p.extreme-atr*sim.s.ATRMultTrail)
		}
		switch {
		case b.Low <= p.stop:
			exit = p.stop
		case b.High >= p.target:
			exit = p.target
		default:
			return nil
		}
	} else {
		p.extreme = min(p.extreme, b.Low)
		if atr > 0 {
			p.stop = min(p.stop, p.extreme+atr*sim.s.ATRMultTrail)
		}
		switch {
		case b.High >= p.stop:
			exit = p.stop
		case b.Low <= p.target:
			exit = p.target
		default:
			return nil
		}
	}

	pnl := (exit - p.entry) * p.qty
	if !p.long {
		pnl = -pnl
	}
	sim.equity += pnl
	exitTime := b.Time.Format(timeLayout)
	sim.trades = append(sim.trades, model.Trade{
		EntryTime: p.entryTime,
		ExitTime:  exitTime,
		PnL:       pnl,
		Type:      direction(p.long),
	})
	sim.pos = nil

	return &model.TradeEvent{
		Type:       model.EventTradeExit,
		Direction:  direction(p.long),
		EntryTime:  p.entryTime,
		EntryPrice: ptr(p.entry),
		ExitTime:   exitTime,
		ExitPrice:  ptr(exit),
		PnL:        ptr(pnl),
	}
}

// backtest runs the whole dataset and summarizes it.
func backtest(bars []Bar, s Settings) model.BatchResult {
	sim := newSimulator(s)
	curve := []float64{initialCapital}
	for _, b := range bars {
		sim.step(b)
		curve = append(curve, sim.equity)
	}

	res := model.BatchResult{
		FinalEquity: sim.equity,
		TotalTrades: len(sim.trades),
		Trades:      sim.trades,
		EquityCurve: curve,
	}
	if res.Trades == nil {
		res.Trades = []model.Trade{}
	}
	var total float64
	for _, t := range sim.trades {
		if t.PnL > 0 {
			res.Wins++
		} else {
			res.Losses++
		}
		total += t.PnL
	}
	if n := len(sim.trades); n > 0 {
		res.WinRate = float64(res.Wins) / float64(n) * 100
		res.AvgPnL = total / float64(n)
	}
	return res
}

func window(xs []float64, x float64, n int) []float64 {
	xs = append(xs, x)
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	return xs
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func direction(long bool) string {
	if long {
		return "long"
	}
	return "short"
}

func ptr(f float64) *float64 { return &f }
