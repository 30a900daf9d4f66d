package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/internal/indicators"
	"github.com/finsight-dev/finsight/internal/marketdata"
)

const (
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	srWindow        = 20

	// macdEpsilon keeps float noise on a converged series from reading as
	// a crossover.
	macdEpsilon = 1e-9
)

type technicalParams struct {
	Indicators      []string `json:"indicators"`
	LookbackPeriods []int    `json:"lookback_periods"`
}

// TechnicalAnalyst derives momentum and trend signals from the collector's
// price history: RSI, moving average crosses, MACD, and Bollinger bands.
type TechnicalAnalyst struct {
	baseAgent
	params  technicalParams
	enabled map[string]bool
}

func init() {
	Register(TypeTechnicalAnalyst, NewTechnicalAnalyst)
}

// NewTechnicalAnalyst builds the technical analysis agent.
func NewTechnicalAnalyst(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &TechnicalAnalyst{baseAgent: newBaseAgent(desc)}, nil
}

func (t *TechnicalAnalyst) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p technicalParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeTechnicalAnalyst, err)
	}
	if len(p.Indicators) == 0 {
		p.Indicators = []string{"rsi", "sma", "macd", "bollinger"}
	}
	if len(p.LookbackPeriods) < 2 {
		p.LookbackPeriods = []int{20, 50, 200}
	}
	sort.Ints(p.LookbackPeriods)
	t.params = p
	t.enabled = make(map[string]bool, len(p.Indicators))
	for _, name := range p.Indicators {
		t.enabled[name] = true
	}
	return t.baseAgent.Initialize(ctx, desc)
}

func (t *TechnicalAnalyst) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	bars, err := historyFrom(upstream)
	if err != nil {
		return nil, err
	}
	closes := marketdata.Closes(bars)
	if len(closes) < 2 {
		return nil, fmt.Errorf("history for %s too short: %d bars", subject, len(closes))
	}
	last := closes[len(closes)-1]

	res := agent.NewResult(t.name(), subject)
	ind := map[string]float64{"last_close": last}

	if t.enabled["rsi"] {
		if rsi, err := indicators.RSI(closes, rsiPeriod); err == nil {
			ind["rsi"] = rsi
			switch {
			case rsi < 30:
				res.AddSignal(agent.SignalBuy, 0.7, 0.6, fmt.Sprintf("RSI %.1f signals oversold conditions", rsi))
			case rsi > 70:
				res.AddSignal(agent.SignalSell, 0.7, -0.6, fmt.Sprintf("RSI %.1f signals overbought conditions", rsi))
			}
		}
	}

	if t.enabled["sma"] {
		smaVals := make(map[int]float64, len(t.params.LookbackPeriods))
		for _, period := range t.params.LookbackPeriods {
			if v, err := indicators.SMA(closes, period); err == nil {
				ind[fmt.Sprintf("sma_%d", period)] = v
				smaVals[period] = v
			}
		}
		fastPeriod, slowPeriod := t.params.LookbackPeriods[0], t.params.LookbackPeriods[1]
		fast, fastOK := smaVals[fastPeriod]
		slow, slowOK := smaVals[slowPeriod]
		if fastOK && slowOK {
			if fast > slow {
				res.AddSignal(agent.SignalBuy, 0.6, 0.5,
					fmt.Sprintf("%d-day SMA above %d-day SMA", fastPeriod, slowPeriod))
			} else if fast < slow {
				res.AddSignal(agent.SignalSell, 0.6, -0.5,
					fmt.Sprintf("%d-day SMA below %d-day SMA", fastPeriod, slowPeriod))
			}
		}
	}

	if t.enabled["macd"] {
		if m, err := indicators.MACD(closes, macdFast, macdSlow, macdSignal); err == nil {
			ind["macd"] = m.MACD
			ind["macd_signal"] = m.Signal
			ind["macd_histogram"] = m.Histogram
			if m.MACD-m.Signal > macdEpsilon {
				res.AddSignal(agent.SignalBuy, 0.5, 0.4, "MACD above its signal line")
			} else if m.Signal-m.MACD > macdEpsilon {
				res.AddSignal(agent.SignalSell, 0.5, -0.4, "MACD below its signal line")
			}
		}
	}

	if t.enabled["bollinger"] {
		if b, err := indicators.Bollinger(closes, bollingerPeriod, bollingerWidth); err == nil {
			ind["bollinger_upper"] = b.Upper
			ind["bollinger_middle"] = b.Middle
			ind["bollinger_lower"] = b.Lower
			if last < b.Lower {
				res.AddSignal(agent.SignalBuy, 0.6, 0.5, "price below the lower Bollinger band")
			} else if last > b.Upper {
				res.AddSignal(agent.SignalSell, 0.6, -0.5, "price above the upper Bollinger band")
			}
		}
	}

	if len(ind) == 1 {
		return nil, fmt.Errorf("history for %s too short for any indicator: %d bars", subject, len(closes))
	}

	buys, sells := 0, 0
	for _, s := range res.Signals {
		switch {
		case s.Strength > 0:
			buys++
		case s.Strength < 0:
			sells++
		}
	}
	trend := "neutral"
	if buys > sells {
		trend = "bullish"
	} else if sells > buys {
		trend = "bearish"
	}

	support, resistance := supportResistance(bars)

	res.Payload["indicators"] = ind
	res.Payload["trend"] = trend
	res.Payload["support"] = support
	res.Payload["resistance"] = resistance
	res.Confidence = meanConfidence(res.Signals, 0.5)
	return res, nil
}

// supportResistance takes the lowest low and highest high over the recent
// window as naive support and resistance levels.
func supportResistance(bars []marketdata.Bar) (support, resistance float64) {
	window := bars
	if len(window) > srWindow {
		window = window[len(window)-srWindow:]
	}
	if len(window) == 0 {
		return 0, 0
	}
	support, resistance = window[0].Low, window[0].High
	for _, b := range window[1:] {
		if b.Low < support {
			support = b.Low
		}
		if b.High > resistance {
			resistance = b.High
		}
	}
	return support, resistance
}
