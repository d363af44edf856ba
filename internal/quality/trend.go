package quality

import (
	"fmt"
	"math"
)

// TrendDirection classifies the recent movement of a keyword's score.
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendDeclining        TrendDirection = "declining"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// PerformanceTier grades average CTR against the score's expected CTR.
type PerformanceTier string

const (
	PerformanceExcellent        PerformanceTier = "excellent"
	PerformanceGood             PerformanceTier = "good"
	PerformanceAverage          PerformanceTier = "average"
	PerformanceBelowAverage     PerformanceTier = "below_average"
	PerformanceInsufficientData PerformanceTier = "insufficient_data"
)

// trendWindow is the number of recent scores inspected for direction.
const trendWindow = 5

// Trend is a display-oriented summary of a keyword's score history. Scores
// are rounded to one decimal place.
type Trend struct {
	KeywordID      string          `json:"keyword_id"`
	CurrentQS      float64         `json:"current_qs"`
	InitialQS      float64         `json:"initial_qs"`
	Change         float64         `json:"change"`
	History        []float64       `json:"history"`
	DataPoints     int             `json:"data_points"`
	Direction      TrendDirection  `json:"trend"`
	Performance    PerformanceTier `json:"performance"`
	Recommendation string          `json:"recommendation"`
}

// QSTrend summarises how keywordID's score has moved. Untracked keywords
// return ErrKeywordNotFound.
func (e *Engine) QSTrend(keywordID string) (Trend, error) {
	h, ok := e.keywords[keywordID]
	if !ok {
		return Trend{}, fmt.Errorf("trend for %q: %w", keywordID, ErrKeywordNotFound)
	}

	history := h.QSHistory()
	initial, _ := h.qs.First()

	t := Trend{
		KeywordID:  keywordID,
		CurrentQS:  round1(h.CurrentQS),
		InitialQS:  round1(initial),
		Change:     round1(h.CurrentQS - initial),
		History:    make([]float64, len(history)),
		DataPoints: h.DataPoints(),
		Direction:  direction(h.qs.Tail(trendWindow)),
	}
	for i, qs := range history {
		t.History[i] = round1(qs)
	}

	if h.DataPoints() < e.cfg.MinDataPoints {
		t.Performance = PerformanceInsufficientData
		t.Recommendation = fmt.Sprintf("Need %d more data points for analysis.", e.cfg.MinDataPoints-h.DataPoints())
		return t, nil
	}

	ratio := CTRPerformance(mean(h.CTRHistory()), h.CurrentQS)
	switch {
	case ratio > 1.2:
		t.Performance = PerformanceExcellent
		t.Recommendation = "Keep doing what you're doing! Your CTR is excellent."
	case ratio > 1.0:
		t.Performance = PerformanceGood
		t.Recommendation = "Good performance. Quality Score should continue improving."
	case ratio > 0.9:
		t.Performance = PerformanceAverage
		t.Recommendation = "Meeting expectations. Room for improvement."
	default:
		t.Performance = PerformanceBelowAverage
		t.Recommendation = "CTR is below expectations. Consider improving ad copy or keyword targeting."
	}
	return t, nil
}

// direction inspects a window of scores. A flat window counts as improving
// because it satisfies the non-decreasing check first.
func direction(window []float64) TrendDirection {
	if len(window) < trendWindow {
		return TrendInsufficientData
	}
	nonDecreasing, nonIncreasing := true, true
	for i := 0; i < len(window)-1; i++ {
		if window[i] > window[i+1] {
			nonDecreasing = false
		}
		if window[i] < window[i+1] {
			nonIncreasing = false
		}
	}
	switch {
	case nonDecreasing:
		return TrendImproving
	case nonIncreasing:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Thresholds for the improvement advice table.
const (
	lowCTR               = 0.02
	lowRelevance         = 0.6
	lowQS                = 5.0
	recentWindow         = 20
	inconsistentVariance = 0.02
)

// ImprovementRecommendations returns rule-based advice for keywordID, in the
// order CTR, relevance, score level, consistency. A keyword with nothing to
// fix gets a short confirmation instead.
func (e *Engine) ImprovementRecommendations(keywordID string) ([]string, error) {
	h, ok := e.keywords[keywordID]
	if !ok {
		return nil, fmt.Errorf("recommendations for %q: %w", keywordID, ErrKeywordNotFound)
	}

	var recs []string

	if h.DataPoints() >= e.cfg.MinDataPoints && mean(h.CTRHistory()) < lowCTR {
		recs = append(recs,
			"CTR is low. Try:",
			"  • Include keyword in headline",
			"  • Add compelling call-to-action",
			"  • Use ad extensions",
			"  • Test emotional triggers",
		)
	}

	if h.relevance.Len() >= e.cfg.MinDataPoints && mean(h.RelevanceHistory()) < lowRelevance {
		recs = append(recs,
			"Ad relevance is low. Try:",
			"  • Match ad copy to keyword intent",
			"  • Create tighter ad groups",
			"  • Use dynamic keyword insertion",
		)
	}

	if h.CurrentQS < lowQS {
		recs = append(recs,
			"Quality Score needs work:",
			"  • Consider pausing underperforming keywords",
			"  • Improve landing page experience",
			"  • Ensure mobile-friendliness",
		)
	}

	if h.DataPoints() >= recentWindow && Variance(h.ctr.Tail(recentWindow)) > inconsistentVariance {
		recs = append(recs,
			"Performance is inconsistent:",
			"  • Review ad scheduling",
			"  • Check device performance",
			"  • Analyze by time of day",
		)
	}

	if len(recs) == 0 {
		recs = append(recs,
			"Quality Score is performing well!",
			"Continue current strategy and monitor regularly.",
		)
	}
	return recs, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
