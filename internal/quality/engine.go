// Package quality models how a keyword's Quality Score drifts over time.
//
// Quality Score moves slowly: the engine only adjusts a keyword after it has
// collected a minimum number of CTR observations, and each recalculation
// nudges the score by a fraction of the evolution rate. Three signals feed a
// recalculation:
//   - CTR performance: average observed CTR relative to the CTR expected for
//     the keyword's current score (see ExpectedCTR).
//   - Ad relevance: the average relevance reported by the auction.
//   - Consistency: a small bonus for a long, low-variance CTR record.
//
// The resulting score is always clamped to [MinQS, MaxQS].
package quality

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

const (
	MinQS = 1.0
	MaxQS = 10.0

	// defaultRelevance is assumed when a keyword has CTR data but no
	// relevance observations.
	defaultRelevance = 0.7
	// consistencySamples is the CTR record length needed before the
	// consistency bonus is considered.
	consistencySamples = 50
	// consistencyVariance is the variance below which CTR counts as stable.
	consistencyVariance = 0.01
)

var (
	ErrKeywordExists       = errors.New("keyword already tracked")
	ErrKeywordNotFound     = errors.New("keyword not tracked")
	ErrInvalidQualityScore = errors.New("quality score out of range")
)

// Config holds the tunable parameters of the evolution model.
type Config struct {
	// EvolutionRate scales every adjustment (0.0-1.0).
	EvolutionRate float64
	// MinDataPoints is the number of CTR observations required before a
	// keyword's score may change.
	MinDataPoints int
	// Window sizes of the bounded histories.
	QSHistorySize        int
	CTRHistorySize       int
	RelevanceHistorySize int
}

// DefaultConfig returns the calibration used by the simulator.
func DefaultConfig() Config {
	return Config{
		EvolutionRate:        0.1,
		MinDataPoints:        10,
		QSHistorySize:        30,
		CTRHistorySize:       100,
		RelevanceHistorySize: 50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EvolutionRate <= 0 {
		c.EvolutionRate = d.EvolutionRate
	}
	if c.MinDataPoints <= 0 {
		c.MinDataPoints = d.MinDataPoints
	}
	if c.QSHistorySize <= 0 {
		c.QSHistorySize = d.QSHistorySize
	}
	if c.CTRHistorySize <= 0 {
		c.CTRHistorySize = d.CTRHistorySize
	}
	if c.RelevanceHistorySize <= 0 {
		c.RelevanceHistorySize = d.RelevanceHistorySize
	}
	return c
}

// Engine tracks quality score histories for a set of keywords.
//
// Engine is not safe for concurrent use. Callers either serialize access or
// shard engines so each keyword set has a single writer.
type Engine struct {
	cfg      Config
	keywords map[string]*History
	order    []string
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
}

// NewEngine creates an engine. A nil logger or metrics registry is replaced
// with a no-op implementation.
func NewEngine(cfg Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		keywords: make(map[string]*History),
		logger:   logger,
		metrics:  metrics,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// InitializeKeyword starts tracking keywordID at initialQS. Initialising an
// already tracked keyword returns ErrKeywordExists and leaves its history
// untouched.
func (e *Engine) InitializeKeyword(keywordID string, initialQS float64) error {
	if _, ok := e.keywords[keywordID]; ok {
		return fmt.Errorf("initialize %q: %w", keywordID, ErrKeywordExists)
	}
	if math.IsNaN(initialQS) || initialQS < MinQS || initialQS > MaxQS {
		return fmt.Errorf("initialize %q with %.2f: %w", keywordID, initialQS, ErrInvalidQualityScore)
	}
	e.keywords[keywordID] = newHistory(keywordID, initialQS, e.cfg)
	e.order = append(e.order, keywordID)
	e.metrics.SetKeywordQS(keywordID, initialQS)
	return nil
}

// RecordPerformance appends one auction observation for keywordID.
// expectedCTR is informational; scoring uses ExpectedCTR of the current score.
// Unknown keywords return ErrKeywordNotFound and nothing is recorded.
func (e *Engine) RecordPerformance(keywordID string, actualCTR, expectedCTR, adRelevance float64) error {
	h, ok := e.keywords[keywordID]
	if !ok {
		return fmt.Errorf("record performance for %q: %w", keywordID, ErrKeywordNotFound)
	}
	h.ctr.Push(actualCTR)
	h.relevance.Push(adRelevance)
	e.logger.Debug("recorded keyword performance",
		zap.String("keyword_id", keywordID),
		zap.Float64("actual_ctr", actualCTR),
		zap.Float64("expected_ctr", expectedCTR),
		zap.Float64("ad_relevance", adRelevance))
	return nil
}

// UpdateQualityScores recomputes the score of every tracked keyword and
// returns keyword ID to score for all of them. Keywords with fewer than
// MinDataPoints observations keep their current score and no history entry is
// appended for them.
func (e *Engine) UpdateQualityScores(day int) map[string]float64 {
	updated := make(map[string]float64, len(e.keywords))
	adjusted := 0

	for _, id := range e.order {
		h := e.keywords[id]
		if h.DataPoints() < e.cfg.MinDataPoints {
			updated[id] = h.CurrentQS
			e.metrics.IncrementQSUpdates("insufficient_data")
			continue
		}

		newQS := clampQS(h.CurrentQS + e.adjustment(h))
		h.CurrentQS = newQS
		h.qs.Push(newQS)
		updated[id] = newQS
		adjusted++

		e.metrics.IncrementQSUpdates("adjusted")
		e.metrics.SetKeywordQS(id, newQS)
	}

	e.logger.Info("quality scores updated",
		zap.Int("day", day),
		zap.Int("keywords", len(e.keywords)),
		zap.Int("adjusted", adjusted))
	return updated
}

// adjustment computes the score delta for a keyword with sufficient data.
func (e *Engine) adjustment(h *History) float64 {
	ctrs := h.CTRHistory()
	avgCTR := mean(ctrs)
	avgRelevance := defaultRelevance
	if h.relevance.Len() > 0 {
		avgRelevance = mean(h.RelevanceHistory())
	}

	rate := e.cfg.EvolutionRate
	delta := 0.0

	ratio := CTRPerformance(avgCTR, h.CurrentQS)
	switch {
	case ratio > 1.2:
		delta += 0.3 * rate
	case ratio > 1.0:
		delta += 0.1 * rate
	case ratio < 0.8:
		delta -= 0.2 * rate
	case ratio < 0.95:
		delta -= 0.1 * rate
	}

	switch {
	case avgRelevance > 0.8:
		delta += 0.15 * rate
	case avgRelevance < 0.5:
		delta -= 0.15 * rate
	}

	if len(ctrs) >= consistencySamples && Variance(ctrs) < consistencyVariance {
		delta += 0.1 * rate
	}
	return delta
}

// ExpectedCTR is the CTR a keyword at the given score is expected to reach.
// It is piecewise linear over three score tiers.
func ExpectedCTR(qs float64) float64 {
	switch {
	case qs <= 3:
		return 0.01 + (qs-1)*0.005
	case qs <= 6:
		return 0.02 + (qs-4)*0.01
	default:
		return 0.04 + (qs-7)*0.013
	}
}

// CTRPerformance is the ratio of actual CTR to ExpectedCTR(qs). A ratio of
// 1.0 means the keyword meets expectations.
func CTRPerformance(actualCTR, qs float64) float64 {
	expected := ExpectedCTR(qs)
	if expected == 0 {
		return 1.0
	}
	return actualCTR / expected
}

func clampQS(qs float64) float64 {
	return math.Max(MinQS, math.Min(MaxQS, qs))
}

// History returns the tracked history for keywordID.
func (e *Engine) History(keywordID string) (*History, error) {
	h, ok := e.keywords[keywordID]
	if !ok {
		return nil, fmt.Errorf("history for %q: %w", keywordID, ErrKeywordNotFound)
	}
	return h, nil
}

// CurrentQS returns the current score for keywordID.
func (e *Engine) CurrentQS(keywordID string) (float64, error) {
	h, err := e.History(keywordID)
	if err != nil {
		return 0, err
	}
	return h.CurrentQS, nil
}

// Keywords lists tracked keyword IDs in initialisation order.
func (e *Engine) Keywords() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Snapshot exports the state of every keyword, sorted by keyword ID.
func (e *Engine) Snapshot() []KeywordState {
	states := make([]KeywordState, 0, len(e.keywords))
	for _, h := range e.keywords {
		states = append(states, h.state())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].KeywordID < states[j].KeywordID })
	return states
}

// Restore replaces the engine's keyword set with states. Every state must
// carry a unique keyword ID and an in-range score, otherwise nothing is
// changed.
func (e *Engine) Restore(states []KeywordState) error {
	keywords := make(map[string]*History, len(states))
	order := make([]string, 0, len(states))
	for _, s := range states {
		if _, dup := keywords[s.KeywordID]; dup {
			return fmt.Errorf("restore %q: %w", s.KeywordID, ErrKeywordExists)
		}
		if math.IsNaN(s.CurrentQS) || s.CurrentQS < MinQS || s.CurrentQS > MaxQS {
			return fmt.Errorf("restore %q with %.2f: %w", s.KeywordID, s.CurrentQS, ErrInvalidQualityScore)
		}
		keywords[s.KeywordID] = historyFromState(s, e.cfg)
		order = append(order, s.KeywordID)
	}
	e.keywords = keywords
	e.order = order
	return nil
}
