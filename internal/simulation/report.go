package simulation

import (
	"fmt"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/rsa"
)

// Report is the outcome of a simulation run.
type Report struct {
	RunID    string      `json:"run_id"`
	Campaign string      `json:"campaign"`
	Industry string      `json:"industry"`
	Seed     uint32      `json:"seed"`
	Days     int         `json:"days"`
	Daily    []DayResult `json:"daily"`
	Totals   Totals      `json:"totals"`

	Keywords []KeywordReport `json:"keywords"`
	Ads      []AdReport      `json:"ads"`

	ImpressionShare       impressionshare.Metrics    `json:"impression_share"`
	ImpressionShareAdvice []string                   `json:"impression_share_recommendations"`
	Benchmark             impressionshare.Comparison `json:"benchmark"`
	SinkErrors            int                        `json:"sink_errors"`
}

// DayResult aggregates one simulated day.
type DayResult struct {
	Day             int                     `json:"day"`
	Impressions     int64                   `json:"impressions"`
	Clicks          int64                   `json:"clicks"`
	Conversions     int64                   `json:"conversions"`
	Cost            float64                 `json:"cost"`
	AvgPosition     float64                 `json:"avg_position"`
	BudgetLimited   bool                    `json:"budget_limited"`
	ImpressionShare impressionshare.Metrics `json:"impression_share"`
	Keywords        []KeywordDay            `json:"keywords"`
}

// KeywordDay is one keyword's share of a day. QualityScore is the score
// after the end-of-day update.
type KeywordDay struct {
	KeywordID    string  `json:"keyword_id"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Conversions  int64   `json:"conversions"`
	Cost         float64 `json:"cost"`
	CTR          float64 `json:"ctr"`
	QualityScore float64 `json:"quality_score"`
}

// Totals sums a run.
type Totals struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Cost        float64 `json:"cost"`
	CTR         float64 `json:"ctr"`
	CVR         float64 `json:"cvr"`
	AvgCPC      float64 `json:"avg_cpc"`
}

// KeywordReport carries a keyword's final score trend and advice.
type KeywordReport struct {
	KeywordID       string        `json:"keyword_id"`
	Text            string        `json:"text"`
	Trend           quality.Trend `json:"trend"`
	Recommendations []string      `json:"recommendations"`
}

// AdReport carries an ad's final insights.
type AdReport struct {
	AdID     string       `json:"ad_id"`
	Insights rsa.Insights `json:"insights"`
}

func (s *Simulator) summarise(r *Report) error {
	var positionSum float64
	for _, dr := range r.Daily {
		r.Totals.Impressions += dr.Impressions
		r.Totals.Clicks += dr.Clicks
		r.Totals.Conversions += dr.Conversions
		r.Totals.Cost += dr.Cost
		positionSum += dr.AvgPosition * float64(dr.Impressions)
	}
	r.Totals.CTR = ratio(r.Totals.Clicks, r.Totals.Impressions)
	r.Totals.CVR = ratio(r.Totals.Conversions, r.Totals.Clicks)
	if r.Totals.Clicks > 0 {
		r.Totals.AvgCPC = r.Totals.Cost / float64(r.Totals.Clicks)
	}

	var qsSum float64
	for _, kw := range s.scenario.Keywords {
		trend, err := s.quality.QSTrend(kw.ID)
		if err != nil {
			return fmt.Errorf("summarise %q: %w", kw.ID, err)
		}
		recs, err := s.quality.ImprovementRecommendations(kw.ID)
		if err != nil {
			return fmt.Errorf("summarise %q: %w", kw.ID, err)
		}
		qs, _ := s.quality.CurrentQS(kw.ID)
		qsSum += qs
		r.Keywords = append(r.Keywords, KeywordReport{KeywordID: kw.ID, Text: kw.Text, Trend: trend, Recommendations: recs})
	}

	for _, ad := range s.ads {
		s.rsa.Refresh(ad)
		r.Ads = append(r.Ads, AdReport{AdID: ad.ID, Insights: s.rsa.PerformanceInsights(ad)})
	}

	in := impressionshare.Input{
		Impressions:     int(r.Totals.Impressions),
		Budget:          s.scenario.Campaign.DailyBudget * float64(r.Days),
		Spend:           r.Totals.Cost,
		AvgPosition:     1,
		AvgQualityScore: qsSum / float64(len(s.scenario.Keywords)),
		CompetitorCount: s.scenario.Campaign.CompetitorCount,
	}
	if r.Totals.Impressions > 0 {
		in.AvgPosition = positionSum / float64(r.Totals.Impressions)
	}
	m, err := s.share.Calculate(in)
	if err != nil {
		return fmt.Errorf("run impression share: %w", err)
	}
	r.ImpressionShare = m
	r.ImpressionShareAdvice = impressionshare.Recommendations(m)
	r.Benchmark = impressionshare.CompareToBenchmarks(m, r.Industry)
	return nil
}
