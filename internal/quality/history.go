package quality

import (
	"github.com/patrickwarner/adsimulator/internal/ringbuffer"
)

// History tracks the quality score of a single keyword together with the
// bounded observation windows used to recompute it. A History is owned by the
// Engine that created it and must not be shared across engines.
type History struct {
	KeywordID string
	CurrentQS float64

	qs        *ringbuffer.Buffer[float64]
	ctr       *ringbuffer.Buffer[float64]
	relevance *ringbuffer.Buffer[float64]
}

func newHistory(keywordID string, initialQS float64, cfg Config) *History {
	h := &History{
		KeywordID: keywordID,
		CurrentQS: initialQS,
		qs:        ringbuffer.New[float64](cfg.QSHistorySize),
		ctr:       ringbuffer.New[float64](cfg.CTRHistorySize),
		relevance: ringbuffer.New[float64](cfg.RelevanceHistorySize),
	}
	h.qs.Push(initialQS)
	return h
}

// QSHistory returns past quality scores, oldest first. The first entry is the
// initial score until it is evicted by newer values.
func (h *History) QSHistory() []float64 { return h.qs.Values() }

// CTRHistory returns recorded CTR observations, oldest first.
func (h *History) CTRHistory() []float64 { return h.ctr.Values() }

// RelevanceHistory returns recorded ad relevance scores, oldest first.
func (h *History) RelevanceHistory() []float64 { return h.relevance.Values() }

// DataPoints is the number of CTR observations currently retained.
func (h *History) DataPoints() int { return h.ctr.Len() }

// KeywordState is the serialisable form of a History. It is what the engine
// exports through Snapshot and accepts through Restore.
type KeywordState struct {
	KeywordID        string    `json:"keyword_id"`
	CurrentQS        float64   `json:"current_qs"`
	QSHistory        []float64 `json:"qs_history"`
	CTRHistory       []float64 `json:"ctr_history"`
	RelevanceHistory []float64 `json:"relevance_history"`
}

func (h *History) state() KeywordState {
	return KeywordState{
		KeywordID:        h.KeywordID,
		CurrentQS:        h.CurrentQS,
		QSHistory:        h.QSHistory(),
		CTRHistory:       h.CTRHistory(),
		RelevanceHistory: h.RelevanceHistory(),
	}
}

func historyFromState(s KeywordState, cfg Config) *History {
	h := &History{
		KeywordID: s.KeywordID,
		CurrentQS: s.CurrentQS,
		qs:        ringbuffer.FromValues(cfg.QSHistorySize, s.QSHistory),
		ctr:       ringbuffer.FromValues(cfg.CTRHistorySize, s.CTRHistory),
		relevance: ringbuffer.FromValues(cfg.RelevanceHistorySize, s.RelevanceHistory),
	}
	if h.qs.Len() == 0 {
		h.qs.Push(s.CurrentQS)
	}
	return h
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the population variance (divides by N) of values, or 0 for
// an empty slice.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}
