// Package rsa simulates responsive search ad serving: it rates ad strength,
// assembles headline/description combinations per impression and learns from
// per-asset feedback.
package rsa

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

var (
	// ErrNoEligibleAssets is returned when an ad has no enabled headline or
	// no enabled description. It is an expected serving state.
	ErrNoEligibleAssets = errors.New("no enabled headlines or descriptions")
	ErrInvalidCounts    = errors.New("performance counts must not be negative")
)

// Config holds learning thresholds and the exploration weights used by
// optimized rotation.
type Config struct {
	// Cumulative headline impressions at which an ad leaves the learning
	// and limited phases.
	LearningThreshold     int
	OptimizationThreshold int

	// UniformJitter spreads weights around 1.0 when no asset has a score.
	UniformJitter float64
	// ScoreJitter is the exploration noise added to scored assets.
	ScoreJitter float64
	// FreshWeight and FreshJitter weight assets without a score.
	FreshWeight float64
	FreshJitter float64
}

// DefaultConfig returns the calibration used by the simulator.
func DefaultConfig() Config {
	return Config{
		LearningThreshold:     1000,
		OptimizationThreshold: 5000,
		UniformJitter:         0.2,
		ScoreJitter:           0.1,
		FreshWeight:           0.1,
		FreshJitter:           0.05,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LearningThreshold <= 0 {
		c.LearningThreshold = d.LearningThreshold
	}
	if c.OptimizationThreshold <= c.LearningThreshold {
		c.OptimizationThreshold = max(d.OptimizationThreshold, c.LearningThreshold)
	}
	if c.UniformJitter < 0 || c.UniformJitter >= 1 {
		c.UniformJitter = d.UniformJitter
	}
	if c.ScoreJitter < 0 {
		c.ScoreJitter = d.ScoreJitter
	}
	if c.FreshWeight <= 0 {
		c.FreshWeight = d.FreshWeight
	}
	if c.FreshJitter < 0 {
		c.FreshJitter = d.FreshJitter
	}
	return c
}

// Engine serves and scores responsive search ads. It holds no ad state; the
// ads passed in are mutated in place by UpdatePerformance. An Engine and the
// ads it mutates must have a single writer.
type Engine struct {
	cfg     Config
	rng     RandomSource
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewEngine creates an engine. A nil rng is replaced with a time-seeded
// source; nil logger and metrics fall back to no-op implementations.
func NewEngine(cfg Config, rng RandomSource, logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		rng:     rng,
		logger:  logger,
		metrics: metrics,
	}
}

// StrengthBreakdown itemises the ad strength score.
type StrengthBreakdown struct {
	HeadlineCount    int `json:"headline_count"`
	DescriptionCount int `json:"description_count"`
	HeadlineLength   int `json:"headline_length"`
	DescriptionLen   int `json:"description_length"`
	Diversity        int `json:"diversity"`
	Total            int `json:"total"`
}

// AdStrengthScore computes the point breakdown over enabled assets only.
func AdStrengthScore(ad *Ad) StrengthBreakdown {
	headlines := ad.EnabledHeadlines()
	descriptions := ad.EnabledDescriptions()

	var b StrengthBreakdown
	switch n := len(headlines); {
	case n >= 15:
		b.HeadlineCount = 25
	case n >= 10:
		b.HeadlineCount = 20
	case n >= 5:
		b.HeadlineCount = 15
	case n >= 3:
		b.HeadlineCount = 10
	}

	switch n := len(descriptions); {
	case n >= 4:
		b.DescriptionCount = 15
	case n >= 3:
		b.DescriptionCount = 12
	case n >= 2:
		b.DescriptionCount = 8
	}

	if len(headlines) > 0 {
		b.HeadlineLength = lengthPoints(averageLength(headlines), 20, 30, 15, 35)
	}
	if len(descriptions) > 0 {
		b.DescriptionLen = lengthPoints(averageLength(descriptions), 70, 90, 60, 95)
	}

	words := make(map[string]struct{})
	for _, h := range headlines {
		for _, w := range strings.Fields(strings.ToLower(h.Text)) {
			words[w] = struct{}{}
		}
	}
	switch {
	case len(words) > 50:
		b.Diversity = 10
	case len(words) > 30:
		b.Diversity = 5
	}

	b.Total = b.HeadlineCount + b.DescriptionCount + b.HeadlineLength + b.DescriptionLen + b.Diversity
	return b
}

// lengthPoints awards 10 inside the narrow band and 5 inside the wide one.
func lengthPoints(avg, narrowLo, narrowHi, wideLo, wideHi float64) int {
	switch {
	case avg >= narrowLo && avg <= narrowHi:
		return 10
	case avg >= wideLo && avg <= wideHi:
		return 5
	}
	return 0
}

func averageLength(assets []*Asset) float64 {
	total := 0
	for _, a := range assets {
		total += utf8.RuneCountInString(a.Text)
	}
	return float64(total) / float64(len(assets))
}

// CalculateAdStrength rates the ad. It does not modify the ad.
func (e *Engine) CalculateAdStrength(ad *Ad) Strength {
	return strengthRating(AdStrengthScore(ad).Total)
}

func strengthRating(score int) Strength {
	switch {
	case score >= 80:
		return StrengthExcellent
	case score >= 60:
		return StrengthGood
	case score >= 40:
		return StrengthAverage
	default:
		return StrengthPoor
	}
}

// Combination is one served headline/description pair.
type Combination struct {
	HeadlineID    string `json:"headline_id"`
	Headline      string `json:"headline"`
	DescriptionID string `json:"description_id"`
	Description   string `json:"description"`
}

// GenerateCombination picks one enabled headline and one enabled description.
// RotationRotateEvenly chooses uniformly; any other rotation uses weighted
// explore/exploit selection. An ad with an empty enabled pool returns
// ErrNoEligibleAssets.
func (e *Engine) GenerateCombination(ad *Ad, rotation Rotation) (Combination, error) {
	headlines := ad.EnabledHeadlines()
	descriptions := ad.EnabledDescriptions()
	if len(headlines) == 0 || len(descriptions) == 0 {
		e.metrics.IncrementRSAServes(string(rotation), "no_assets")
		return Combination{}, fmt.Errorf("ad %s: %w", ad.ID, ErrNoEligibleAssets)
	}

	var h, d *Asset
	if rotation == RotationRotateEvenly {
		h = headlines[intn(e.rng, len(headlines))]
		d = descriptions[intn(e.rng, len(descriptions))]
	} else {
		rotation = RotationOptimize
		h = e.selectOptimized(headlines)
		d = e.selectOptimized(descriptions)
	}

	e.metrics.IncrementRSAServes(string(rotation), "served")
	if observability.ServeSampler.Sample() {
		e.logger.Debug("served rsa combination",
			zap.String("ad_id", ad.ID),
			zap.String("rotation", string(rotation)),
			zap.String("headline_id", h.ID),
			zap.String("description_id", d.ID))
	}
	return Combination{
		HeadlineID:    h.ID,
		Headline:      h.Text,
		DescriptionID: d.ID,
		Description:   d.Text,
	}, nil
}

// selectOptimized draws one asset with probability proportional to its
// weight. Scored assets weigh their score plus jitter; unscored assets get a
// small exploration weight so they keep being sampled. When nothing is scored
// every asset weighs roughly 1.
func (e *Engine) selectOptimized(assets []*Asset) *Asset {
	totalScore := 0.0
	for _, a := range assets {
		if a.PerformanceScore > 0 {
			totalScore += a.PerformanceScore
		}
	}

	weights := make([]float64, len(assets))
	for i, a := range assets {
		var w float64
		switch {
		case totalScore == 0:
			w = 1.0 + uniform(e.rng, -e.cfg.UniformJitter, e.cfg.UniformJitter)
		case a.PerformanceScore > 0:
			w = a.PerformanceScore + uniform(e.rng, 0, e.cfg.ScoreJitter)
		default:
			w = e.cfg.FreshWeight + uniform(e.rng, 0, e.cfg.FreshJitter)
		}
		weights[i] = max(w, 0)
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		return assets[intn(e.rng, len(assets))]
	}

	r := uniform(e.rng, 0, totalWeight)
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return assets[i]
		}
	}
	return assets[len(assets)-1]
}

// UpdatePerformance credits a served combination with impressions, clicks and
// conversions and recomputes both assets' performance scores. Both IDs must
// belong to ad; otherwise nothing is changed and ErrAssetNotFound is returned.
func (e *Engine) UpdatePerformance(ad *Ad, headlineID, descriptionID string, clicks, impressions, conversions int) error {
	if clicks < 0 || impressions < 0 || conversions < 0 {
		return fmt.Errorf("update ad %s: %w", ad.ID, ErrInvalidCounts)
	}
	h, ok := ad.Asset(headlineID)
	if !ok || h.Type != Headline {
		e.metrics.IncrementRSAFeedback(string(Headline), "not_found")
		return fmt.Errorf("headline %s on ad %s: %w", headlineID, ad.ID, ErrAssetNotFound)
	}
	d, ok := ad.Asset(descriptionID)
	if !ok || d.Type != Description {
		e.metrics.IncrementRSAFeedback(string(Description), "not_found")
		return fmt.Errorf("description %s on ad %s: %w", descriptionID, ad.ID, ErrAssetNotFound)
	}

	h.record(impressions, clicks, conversions)
	d.record(impressions, clicks, conversions)
	ad.LearningStatus = e.LearningStatus(ad)

	e.metrics.IncrementRSAFeedback(string(Headline), "ok")
	e.metrics.IncrementRSAFeedback(string(Description), "ok")
	return nil
}

// UpdatePerformanceByText resolves assets by their text and delegates to
// UpdatePerformance. When several assets share a text the first one wins.
func (e *Engine) UpdatePerformanceByText(ad *Ad, headlineText, descriptionText string, clicks, impressions, conversions int) error {
	h, ok := ad.FindByText(Headline, headlineText)
	if !ok {
		e.metrics.IncrementRSAFeedback(string(Headline), "not_found")
		return fmt.Errorf("headline %q on ad %s: %w", headlineText, ad.ID, ErrAssetNotFound)
	}
	d, ok := ad.FindByText(Description, descriptionText)
	if !ok {
		e.metrics.IncrementRSAFeedback(string(Description), "not_found")
		return fmt.Errorf("description %q on ad %s: %w", descriptionText, ad.ID, ErrAssetNotFound)
	}
	return e.UpdatePerformance(ad, h.ID, d.ID, clicks, impressions, conversions)
}

// LearningStatus derives the serving phase from cumulative headline
// impressions. Impressions only grow, so the phase never regresses.
func (e *Engine) LearningStatus(ad *Ad) LearningStatus {
	total := ad.TotalImpressions()
	switch {
	case total < e.cfg.LearningThreshold:
		return Learning
	case total < e.cfg.OptimizationThreshold:
		return Limited
	default:
		return Optimized
	}
}

// Refresh recomputes the ad's cached learning status and strength.
func (e *Engine) Refresh(ad *Ad) {
	ad.LearningStatus = e.LearningStatus(ad)
	ad.AdStrength = e.CalculateAdStrength(ad)
}
