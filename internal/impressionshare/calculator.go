// Package impressionshare estimates the share of eligible auctions a campaign
// won, and how much it lost to budget and to ad rank, from the campaign's own
// aggregate statistics. The size of the market is never observed directly; it
// is extrapolated from impressions with a configurable multiplier.
package impressionshare

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

var ErrInvalidInput = errors.New("invalid impression share input")

// Config holds the calibration constants of the estimate. None of them has a
// derivation; they are tuned to produce plausible dashboards.
type Config struct {
	// MarketSizeMultiplier is how much larger the eligible market is than
	// the impressions actually won.
	MarketSizeMultiplier float64
	// CompetitorFactor grows the market per competitor.
	CompetitorFactor float64

	// Spend at or above BudgetExhaustedRatio of budget counts as exhausted.
	BudgetExhaustedRatio float64
	// Loss factors applied when the budget ran out.
	BudgetLossBase      float64
	BudgetOverspendRate float64
	// UnderspendLossRate scales the loss attributed to unused budget.
	UnderspendLossRate float64

	// AdSlots normalises average position.
	AdSlots float64
	// RankLossScale scales the combined position and QS penalty.
	RankLossScale float64

	// Per-position discounts for top and absolute-top share. Zero disables
	// the discount; only negative values fall back to the defaults.
	TopDiscount    float64
	AbsTopDiscount float64
	// ExactMatchFactor lifts search share for exact-match queries.
	ExactMatchFactor float64
}

// DefaultConfig returns the calibration used by the simulator.
func DefaultConfig() Config {
	return Config{
		MarketSizeMultiplier: 5.0,
		CompetitorFactor:     0.1,
		BudgetExhaustedRatio: 0.95,
		BudgetLossBase:       0.30,
		BudgetOverspendRate:  0.20,
		UnderspendLossRate:   0.1,
		AdSlots:              4,
		RankLossScale:        0.3,
		TopDiscount:          0.2,
		AbsTopDiscount:       0.4,
		ExactMatchFactor:     1.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MarketSizeMultiplier <= 0 {
		c.MarketSizeMultiplier = d.MarketSizeMultiplier
	}
	if c.CompetitorFactor < 0 {
		c.CompetitorFactor = d.CompetitorFactor
	}
	if c.BudgetExhaustedRatio <= 0 {
		c.BudgetExhaustedRatio = d.BudgetExhaustedRatio
	}
	if c.BudgetLossBase <= 0 {
		c.BudgetLossBase = d.BudgetLossBase
	}
	if c.BudgetOverspendRate < 0 {
		c.BudgetOverspendRate = d.BudgetOverspendRate
	}
	if c.UnderspendLossRate < 0 {
		c.UnderspendLossRate = d.UnderspendLossRate
	}
	if c.AdSlots <= 0 {
		c.AdSlots = d.AdSlots
	}
	if c.RankLossScale < 0 {
		c.RankLossScale = d.RankLossScale
	}
	if c.TopDiscount < 0 {
		c.TopDiscount = d.TopDiscount
	}
	if c.AbsTopDiscount < 0 {
		c.AbsTopDiscount = d.AbsTopDiscount
	}
	if c.ExactMatchFactor <= 0 {
		c.ExactMatchFactor = d.ExactMatchFactor
	}
	return c
}

// Input is the aggregate campaign data for one reporting period.
type Input struct {
	Impressions     int     `json:"your_impressions"`
	Budget          float64 `json:"your_budget"`
	Spend           float64 `json:"total_spend"`
	AvgPosition     float64 `json:"avg_position"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	CompetitorCount int     `json:"competitor_count"`
}

// Metrics is an impression share breakdown. Shares are percentages on a
// 0-100 scale rounded to two decimals.
type Metrics struct {
	SearchImpressionShare    float64 `json:"search_impression_share"`
	SearchExactMatchIS       float64 `json:"search_exact_match_is"`
	SearchTopImpressionShare float64 `json:"search_top_impression_share"`
	SearchAbsoluteTopIS      float64 `json:"search_absolute_top_is"`
	SearchLostISRank         float64 `json:"search_lost_is_rank"`
	SearchLostISBudget       float64 `json:"search_lost_is_budget"`
	TotalEligibleImpressions int     `json:"total_eligible_impressions"`
}

// Calculator derives impression share metrics. It is stateless apart from
// its configuration and safe for concurrent use.
type Calculator struct {
	cfg     Config
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewCalculator creates a calculator. Nil logger and metrics fall back to
// no-op implementations.
func NewCalculator(cfg Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Calculator{cfg: cfg.withDefaults(), logger: logger, metrics: metrics}
}

// Config returns the effective configuration.
func (c *Calculator) Config() Config { return c.cfg }

func (in Input) validate() error {
	switch {
	case in.Impressions < 0:
		return fmt.Errorf("impressions %d: %w", in.Impressions, ErrInvalidInput)
	case in.CompetitorCount < 0:
		return fmt.Errorf("competitor count %d: %w", in.CompetitorCount, ErrInvalidInput)
	case !(in.Budget > 0) || math.IsInf(in.Budget, 0):
		return fmt.Errorf("budget %v: %w", in.Budget, ErrInvalidInput)
	case in.Spend < 0 || math.IsNaN(in.Spend) || math.IsInf(in.Spend, 0):
		return fmt.Errorf("spend %v: %w", in.Spend, ErrInvalidInput)
	case !finite(in.AvgPosition) || !finite(in.AvgQualityScore):
		return fmt.Errorf("position %v or quality score %v not finite: %w", in.AvgPosition, in.AvgQualityScore, ErrInvalidInput)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Calculate estimates impression share for one period. Only malformed input
// (negative counts, non-positive budget, NaN or infinite values) is an error.
func (c *Calculator) Calculate(in Input) (Metrics, error) {
	if err := in.validate(); err != nil {
		return Metrics{}, err
	}
	cfg := c.cfg

	competitorFactor := 1.0 + float64(in.CompetitorCount)*cfg.CompetitorFactor
	totalEligible := int(float64(in.Impressions) * cfg.MarketSizeMultiplier * competitorFactor)

	searchIS := 0.0
	if totalEligible > 0 {
		searchIS = float64(in.Impressions) / float64(totalEligible)
	}

	utilisation := in.Spend / in.Budget
	var lostBudget float64
	if in.Spend >= in.Budget*cfg.BudgetExhaustedRatio {
		lostBudget = searchIS * (cfg.BudgetLossBase + (utilisation-cfg.BudgetExhaustedRatio)*cfg.BudgetOverspendRate)
	} else {
		lostBudget = searchIS * (1.0 - utilisation) * cfg.UnderspendLossRate
	}

	positionFactor := in.AvgPosition / cfg.AdSlots
	qsFactor := (10 - in.AvgQualityScore) / 9.0
	lostRank := searchIS * (positionFactor*0.5 + qsFactor*0.5) * cfg.RankLossScale

	topIS := searchIS * (1.0 - (in.AvgPosition-1)*cfg.TopDiscount)
	topIS = math.Max(0, math.Min(searchIS, topIS))

	absTopIS := searchIS * (1.0 - (in.AvgPosition-1)*cfg.AbsTopDiscount)
	absTopIS = math.Max(0, math.Min(searchIS, absTopIS))
	exactIS := math.Min(1.0, searchIS*cfg.ExactMatchFactor)

	m := Metrics{
		SearchImpressionShare:    percent(searchIS),
		SearchExactMatchIS:       percent(exactIS),
		SearchTopImpressionShare: percent(topIS),
		SearchAbsoluteTopIS:      percent(absTopIS),
		SearchLostISRank:         percent(lostRank),
		SearchLostISBudget:       percent(lostBudget),
		TotalEligibleImpressions: totalEligible,
	}

	c.metrics.RecordImpressionShare(m.SearchImpressionShare)
	c.logger.Debug("calculated impression share",
		zap.Int("impressions", in.Impressions),
		zap.Int("total_eligible", totalEligible),
		zap.Float64("search_is", m.SearchImpressionShare),
		zap.Float64("lost_is_budget", m.SearchLostISBudget),
		zap.Float64("lost_is_rank", m.SearchLostISRank))
	return m, nil
}

func percent(share float64) float64 {
	return math.Round(share*100*100) / 100
}
