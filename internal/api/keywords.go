package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/middleware"
	"github.com/patrickwarner/adsimulator/internal/quality"
)

// CreateKeywordRequest starts tracking a keyword.
type CreateKeywordRequest struct {
	KeywordID string  `json:"keyword_id"`
	InitialQS float64 `json:"initial_qs"`
}

// KeywordPerformanceRequest is one auction observation. ExpectedCTR
// defaults to the expected CTR of the keyword's current score.
type KeywordPerformanceRequest struct {
	ActualCTR   float64  `json:"actual_ctr"`
	ExpectedCTR *float64 `json:"expected_ctr,omitempty"`
	AdRelevance float64  `json:"ad_relevance"`
}

// UpdateQualityRequest triggers a score update for a simulation day.
type UpdateQualityRequest struct {
	Day int `json:"day"`
}

// CreateKeyword handles POST /keywords.
func (s *Server) CreateKeyword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "create_keyword"
	const method = "POST"

	req := CreateKeywordRequest{InitialQS: 5}
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}
	if req.KeywordID == "" {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "keyword_id required")
		return
	}

	s.mu.Lock()
	err := s.quality.InitializeKeyword(req.KeywordID, req.InitialQS)
	if err == nil {
		s.snapshotQuality(r.Context())
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, quality.ErrKeywordExists):
		s.fail(w, endpoint, method, start, http.StatusConflict, "keyword already exists")
		return
	case errors.Is(err, quality.ErrInvalidQualityScore):
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "initial_qs must be between 1 and 10")
		return
	case err != nil:
		middleware.LoggerFromRequest(r, s.Logger).Error("initialize keyword", zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusInternalServerError, "internal error")
		return
	}

	s.respond(w, endpoint, method, start, http.StatusCreated, map[string]interface{}{
		"keyword_id": req.KeywordID,
		"current_qs": req.InitialQS,
	})
}

// RecordKeywordPerformance handles POST /keywords/{id}/performance.
func (s *Server) RecordKeywordPerformance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "keyword_performance"
	const method = "POST"

	id := mux.Vars(r)["id"]
	var req KeywordPerformanceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}
	if !unit(req.ActualCTR) || !unit(req.AdRelevance) {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "actual_ctr and ad_relevance must be within [0, 1]")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.quality.CurrentQS(id)
	if errors.Is(err, quality.ErrKeywordNotFound) {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "keyword not found")
		return
	}
	expected := quality.ExpectedCTR(current)
	if req.ExpectedCTR != nil {
		expected = *req.ExpectedCTR
	}
	if err := s.quality.RecordPerformance(id, req.ActualCTR, expected, req.AdRelevance); err != nil {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "keyword not found")
		return
	}
	h, _ := s.quality.History(id)

	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"keyword_id":  id,
		"data_points": h.DataPoints(),
		"current_qs":  current,
	})
}

// UpdateQualityScores handles POST /quality/update.
func (s *Server) UpdateQualityScores(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "quality_update"
	const method = "POST"

	var req UpdateQualityRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	scores := s.quality.UpdateQualityScores(req.Day)
	s.snapshotQuality(r.Context())
	s.mu.Unlock()

	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"day":            req.Day,
		"quality_scores": scores,
	})
}

// KeywordTrend handles GET /keywords/{id}/trend.
func (s *Server) KeywordTrend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "keyword_trend"
	const method = "GET"

	s.mu.Lock()
	trend, err := s.quality.QSTrend(mux.Vars(r)["id"])
	s.mu.Unlock()
	if err != nil {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "keyword not found")
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, trend)
}

// KeywordRecommendations handles GET /keywords/{id}/recommendations.
func (s *Server) KeywordRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "keyword_recommendations"
	const method = "GET"

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	recs, err := s.quality.ImprovementRecommendations(id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "keyword not found")
		return
	}
	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"keyword_id":      id,
		"recommendations": recs,
	})
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
