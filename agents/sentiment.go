package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/finsight-dev/finsight/agent"
)

// Source blend weights for the aggregate sentiment score.
const (
	newsWeight    = 0.3
	socialWeight  = 0.2
	analystWeight = 0.4
	insiderWeight = 0.1
)

// sourceReliability weighs each source's contribution to the result
// confidence. Analyst revisions are the most trustworthy feed, social
// chatter the least.
var sourceReliability = map[string]float64{
	"analyst":   1.0,
	"insider":   0.9,
	"consensus": 0.9,
	"news":      0.8,
	"overall":   0.7,
	"social":    0.6,
}

type sentimentParams struct {
	LookbackHours int `json:"lookback_hours"`
}

// SentimentAnalyzer scores news, social, analyst, and insider sentiment.
// The feeds are simulated: each symbol gets a stable score per source so
// repeated runs agree.
type SentimentAnalyzer struct {
	baseAgent
	params sentimentParams
}

func init() {
	Register(TypeSentimentAnalyzer, NewSentimentAnalyzer)
}

// NewSentimentAnalyzer builds the sentiment analysis agent.
func NewSentimentAnalyzer(desc agent.Descriptor, env Env) (agent.Agent, error) {
	return &SentimentAnalyzer{baseAgent: newBaseAgent(desc)}, nil
}

func (s *SentimentAnalyzer) Initialize(ctx context.Context, desc agent.Descriptor) error {
	var p sentimentParams
	if err := desc.UnmarshalParams(&p); err != nil {
		return fmt.Errorf("%s params: %w", TypeSentimentAnalyzer, err)
	}
	if p.LookbackHours <= 0 {
		p.LookbackHours = 24
	}
	s.params = p
	return s.baseAgent.Initialize(ctx, desc)
}

func (s *SentimentAnalyzer) Process(ctx context.Context, subject string, upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
	news, social, analyst, insider := sentimentSources(subject)
	overall := news*newsWeight + social*socialWeight + analyst*analystWeight + insider*insiderWeight

	res := agent.NewResult(s.name(), subject)
	var confs, weights []float64
	add := func(kind agent.SignalKind, conf, strength float64, rationale, source string) {
		res.AddSignal(kind, conf, strength, rationale)
		confs = append(confs, conf)
		weights = append(weights, sourceReliability[source])
	}

	switch {
	case overall >= 0.6:
		add(agent.SignalBuy, 0.7, overall, fmt.Sprintf("aggregate sentiment %.2f is strongly positive", overall), "overall")
	case overall <= -0.6:
		add(agent.SignalSell, 0.7, overall, fmt.Sprintf("aggregate sentiment %.2f is strongly negative", overall), "overall")
	case math.Abs(overall) < 0.2:
		add(agent.SignalHold, 0.5, 0, fmt.Sprintf("aggregate sentiment %.2f is indecisive", overall), "overall")
	}

	if news >= 0.5 {
		add(agent.SignalBuy, 0.6, 0.8*news, fmt.Sprintf("news coverage leans positive (%.2f)", news), "news")
	}
	if analyst >= 0.4 {
		conf := 0.7
		if analyst >= 0.6 {
			conf = 0.8
		}
		add(agent.SignalBuy, conf, analyst, fmt.Sprintf("analyst revisions trend positive (%.2f)", analyst), "analyst")
	}
	if social >= 0.7 {
		add(agent.SignalBuy, 0.5, 0.6*social, fmt.Sprintf("social chatter is enthusiastic (%.2f)", social), "social")
	}
	if insider >= 0.5 {
		add(agent.SignalBuy, 0.8, insider, fmt.Sprintf("insider activity is accumulative (%.2f)", insider), "insider")
	}
	if news > 0.3 && analyst > 0.3 && social > 0.3 {
		add(agent.SignalBuy, 0.8, 0.7, "news, analyst, and social sentiment all align positive", "consensus")
	} else if news < -0.3 && analyst < -0.3 && social < -0.3 {
		add(agent.SignalSell, 0.8, -0.7, "news, analyst, and social sentiment all align negative", "consensus")
	}

	res.Payload["sentiment"] = map[string]float64{
		"news":    news,
		"social":  social,
		"analyst": analyst,
		"insider": insider,
		"overall": round2(overall),
	}
	res.Payload["window_hours"] = s.params.LookbackHours

	if len(confs) == 0 {
		res.Confidence = 0.5
		return res, nil
	}
	var num, den float64
	for i, c := range confs {
		num += c * weights[i]
		den += weights[i]
	}
	res.Confidence = num / den
	return res, nil
}

// sentimentSources derives one stable score in [-1, 1] per source from the
// symbol alone. The offset keeps the stream independent from the price
// walk seeded off the same symbol.
func sentimentSources(symbol string) (news, social, analyst, insider float64) {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) + 7))
	news = round2(rng.Float64()*2 - 1)
	social = round2(rng.Float64()*2 - 1)
	analyst = round2(rng.Float64()*2 - 1)
	insider = round2(rng.Float64()*2 - 1)
	return news, social, analyst, insider
}
