package news

import (
	"fmt"
	"strings"
	"time"
)

// ScoredHeadline is a headline with its keyword sentiment attached.
type ScoredHeadline struct {
	Headline
	Sentiment string
	Score     float64
}

// Digest aggregates scored headlines for one symbol.
type Digest struct {
	Symbol           string
	OverallSentiment string // POSITIVE, NEGATIVE, NEUTRAL or MIXED
	OverallScore     float64
	HeadlineCount    int
	Headlines        []ScoredHeadline
	Summary          string
	Recommendation   string
	Confidence       float64
	Timestamp        int64
}

// positiveTerms and negativeTerms drive the keyword scorer. Matching is
// case-insensitive against title and summary text.
var positiveTerms = []string{
	"rally", "rallies", "surge", "soars", "soar", "breakout", "all-time high",
	"record high", "adoption", "approval", "approves", "etf inflow", "inflows",
	"bullish", "partnership", "upgrade", "accumulation", "buying pressure",
	"institutional", "halving", "integration", "launches", "milestone",
}

var negativeTerms = []string{
	"hack", "hacked", "exploit", "crash", "crashes", "plunge", "plunges",
	"selloff", "sell-off", "ban", "bans", "lawsuit", "sues", "charges",
	"outflow", "outflows", "bearish", "liquidation", "liquidations",
	"downgrade", "fine", "fraud", "bankruptcy", "insolvency", "delist",
	"rug pull", "scam", "sec crackdown", "tumbles",
}

// Analyzer scores headlines with a keyword lexicon and aggregates them
// into a digest. No network calls; the trading roles own all model usage.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// ScoreHeadline classifies a single headline from its term hits. The score
// is (positive-negative)/(positive+negative), zero when nothing matches.
func (a *Analyzer) ScoreHeadline(h Headline) ScoredHeadline {
	text := strings.ToLower(h.Title + " " + h.Summary)

	pos, neg := 0, 0
	for _, term := range positiveTerms {
		pos += strings.Count(text, term)
	}
	for _, term := range negativeTerms {
		neg += strings.Count(text, term)
	}

	scored := ScoredHeadline{Headline: h, Sentiment: "NEUTRAL"}
	if pos+neg > 0 {
		scored.Score = float64(pos-neg) / float64(pos+neg)
	}
	switch {
	case pos > neg:
		scored.Sentiment = "POSITIVE"
	case neg > pos:
		scored.Sentiment = "NEGATIVE"
	}
	return scored
}

// BuildDigest scores each headline and aggregates into overall sentiment
func (a *Analyzer) BuildDigest(symbol string, headlines []Headline) Digest {
	if len(headlines) == 0 {
		return Digest{
			Symbol:           symbol,
			OverallSentiment: "NEUTRAL",
			Summary:          "No headlines found",
			Recommendation:   "Insufficient data for a read on news flow",
			Timestamp:        time.Now().Unix(),
		}
	}

	scored := make([]ScoredHeadline, 0, len(headlines))
	totalScore := 0.0
	counts := map[string]int{
		"POSITIVE": 0,
		"NEGATIVE": 0,
		"NEUTRAL":  0,
	}

	for _, h := range headlines {
		sh := a.ScoreHeadline(h)
		scored = append(scored, sh)
		totalScore += sh.Score
		counts[sh.Sentiment]++
	}

	avgScore := totalScore / float64(len(scored))

	// Determine overall sentiment
	overall := "NEUTRAL"
	if counts["POSITIVE"] > counts["NEGATIVE"]*2 {
		overall = "POSITIVE"
	} else if counts["NEGATIVE"] > counts["POSITIVE"]*2 {
		overall = "NEGATIVE"
	} else if counts["POSITIVE"] > 0 && counts["NEGATIVE"] > 0 {
		overall = "MIXED"
	}

	summary := fmt.Sprintf("Scored %d headlines: %d positive, %d negative, %d neutral.",
		len(scored), counts["POSITIVE"], counts["NEGATIVE"], counts["NEUTRAL"])

	return Digest{
		Symbol:           symbol,
		OverallSentiment: overall,
		OverallScore:     avgScore,
		HeadlineCount:    len(scored),
		Headlines:        scored,
		Summary:          summary,
		Recommendation:   a.recommendation(overall, avgScore),
		Confidence:       a.confidence(len(scored), counts),
		Timestamp:        time.Now().Unix(),
	}
}

// recommendation maps the aggregate score onto a coarse read of news flow
func (a *Analyzer) recommendation(sentiment string, score float64) string {
	if score >= 0.5 {
		return "Strong bullish news flow"
	} else if score >= 0.2 {
		return "Bullish tilt in recent coverage"
	} else if score <= -0.5 {
		return "Strong bearish news flow"
	} else if score <= -0.2 {
		return "Bearish tilt in recent coverage"
	} else if sentiment == "MIXED" {
		return "Mixed coverage, wait for clearer signals"
	}
	return "No strong signal from news flow"
}

// confidence grows with headline count and sentiment consistency
func (a *Analyzer) confidence(count int, counts map[string]int) float64 {
	confidence := 0.0
	if count >= 10 {
		confidence = 0.9
	} else if count >= 5 {
		confidence = 0.7
	} else if count >= 3 {
		confidence = 0.5
	} else {
		confidence = 0.3
	}

	total := float64(counts["POSITIVE"] + counts["NEGATIVE"] + counts["NEUTRAL"])
	if total > 0 {
		maxCount := float64(max(counts["POSITIVE"], counts["NEGATIVE"], counts["NEUTRAL"]))
		confidence *= maxCount / total
	}

	return confidence
}

// Render formats the digest for a prompt or panel line.
func (d Digest) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "News digest for %s: %s (score %+.2f, confidence %.0f%%)\n",
		d.Symbol, d.OverallSentiment, d.OverallScore, d.Confidence*100)
	b.WriteString(d.Summary)
	b.WriteString("\n")
	b.WriteString(d.Recommendation)

	limit := len(d.Headlines)
	if limit > 5 {
		limit = 5
	}
	if limit > 0 {
		b.WriteString("\nTop headlines:")
		for _, h := range d.Headlines[:limit] {
			fmt.Fprintf(&b, "\n- [%s] %s (%s)", h.Source, h.Title, strings.ToLower(h.Sentiment))
		}
	}
	return b.String()
}

func max(a, b, c int) int {
	if a > b && a > c {
		return a
	}
	if b > c {
		return b
	}
	return c
}
