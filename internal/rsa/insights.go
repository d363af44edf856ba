package rsa

import (
	"fmt"
	"sort"
)

const (
	recommendedHeadlines    = 15
	recommendedDescriptions = 4
	lowPerformerImpressions = 100
	lowPerformerScore       = 1.0
)

// AssetInsight is the per-asset row of a performance report.
type AssetInsight struct {
	ID               string  `json:"id"`
	Text             string  `json:"text"`
	CTR              float64 `json:"ctr"`
	CVR              float64 `json:"cvr"`
	PerformanceScore float64 `json:"performance_score"`
	Impressions      int     `json:"impressions"`
}

// Insights summarises how an ad and its assets are performing.
type Insights struct {
	LearningStatus         LearningStatus `json:"learning_status"`
	AdStrength             Strength       `json:"ad_strength"`
	StrengthScore          int            `json:"ad_strength_score"`
	HeadlinePerformance    []AssetInsight `json:"headline_performance"`
	DescriptionPerformance []AssetInsight `json:"description_performance"`
	TotalImpressions       int            `json:"total_impressions"`
	Recommendations        []string       `json:"recommendations"`
}

// PerformanceInsights reports enabled assets that have served, best first.
// Ties keep pool order.
func (e *Engine) PerformanceInsights(ad *Ad) Insights {
	score := AdStrengthScore(ad)
	return Insights{
		LearningStatus:         e.LearningStatus(ad),
		AdStrength:             strengthRating(score.Total),
		StrengthScore:          score.Total,
		HeadlinePerformance:    assetInsights(ad.EnabledHeadlines()),
		DescriptionPerformance: assetInsights(ad.EnabledDescriptions()),
		TotalImpressions:       ad.TotalImpressions(),
		Recommendations:        Recommendations(ad),
	}
}

func assetInsights(assets []*Asset) []AssetInsight {
	out := make([]AssetInsight, 0, len(assets))
	for _, a := range assets {
		if a.Impressions == 0 {
			continue
		}
		out = append(out, AssetInsight{
			ID:               a.ID,
			Text:             a.Text,
			CTR:              a.CTR(),
			CVR:              a.CVR(),
			PerformanceScore: a.PerformanceScore,
			Impressions:      a.Impressions,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PerformanceScore > out[j].PerformanceScore
	})
	return out
}

// Recommendations lists asset-count gaps and underperforming assets.
func Recommendations(ad *Ad) []string {
	headlines := ad.EnabledHeadlines()
	descriptions := ad.EnabledDescriptions()
	recs := []string{}

	if n := len(headlines); n < recommendedHeadlines {
		recs = append(recs, fmt.Sprintf("Add %d more headlines to reach the recommended %d headlines", recommendedHeadlines-n, recommendedHeadlines))
	}
	if n := len(descriptions); n < recommendedDescriptions {
		recs = append(recs, fmt.Sprintf("Add %d more descriptions to reach the recommended %d descriptions", recommendedDescriptions-n, recommendedDescriptions))
	}
	if n := countLowPerformers(headlines); n > 0 {
		recs = append(recs, fmt.Sprintf("Consider pausing or improving %d low-performing headlines", n))
	}
	if n := countLowPerformers(descriptions); n > 0 {
		recs = append(recs, fmt.Sprintf("Consider pausing or improving %d low-performing descriptions", n))
	}
	return recs
}

func countLowPerformers(assets []*Asset) int {
	n := 0
	for _, a := range assets {
		if a.Impressions > lowPerformerImpressions && a.PerformanceScore < lowPerformerScore {
			n++
		}
	}
	return n
}
