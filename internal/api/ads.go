package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/middleware"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/rsa"
)

// CreateAdRequest registers a responsive search ad. An empty AdID is
// generated.
type CreateAdRequest struct {
	AdID         string   `json:"ad_id"`
	AdGroupID    string   `json:"ad_group_id"`
	Headlines    []string `json:"headlines"`
	Descriptions []string `json:"descriptions"`
	Rotation     string   `json:"rotation_type"`
}

// AdPerformanceRequest credits a served combination. Assets are looked up
// by ID, or by text when the IDs are empty.
type AdPerformanceRequest struct {
	HeadlineID      string `json:"headline_id"`
	DescriptionID   string `json:"description_id"`
	HeadlineText    string `json:"headline"`
	DescriptionText string `json:"description"`
	Impressions     int    `json:"impressions"`
	Clicks          int    `json:"clicks"`
	Conversions     int    `json:"conversions"`
}

// AssetStatusRequest changes the serving status of one asset.
type AssetStatusRequest struct {
	Status string `json:"status"`
}

// CombinationResponse reports a served pair. Available is false when the ad
// has no enabled headline or description.
type CombinationResponse struct {
	AdID      string `json:"ad_id"`
	Available bool   `json:"available"`
	*rsa.Combination
}

// CreateAd handles POST /ads.
func (s *Server) CreateAd(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "create_ad"
	const method = "POST"

	var req CreateAdRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ads[req.AdID]; ok && req.AdID != "" {
		s.fail(w, endpoint, method, start, http.StatusConflict, "ad already exists")
		return
	}
	ad := rsa.NewAd(req.AdID, req.AdGroupID, req.Headlines, req.Descriptions)
	ad.Rotation = rsa.ParseRotation(req.Rotation)
	s.rsa.Refresh(ad)
	s.ads[ad.ID] = ad
	s.snapshotAd(r.Context(), ad)

	s.respond(w, endpoint, method, start, http.StatusCreated, map[string]interface{}{
		"ad":       ad,
		"strength": rsa.AdStrengthScore(ad),
	})
}

// AdCombination handles GET /ads/{id}/combination. The rotation query
// parameter overrides the ad's configured rotation.
func (s *Server) AdCombination(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ad_combination"
	const method = "GET"

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "ad not found")
		return
	}
	rotation := ad.Rotation
	if q := r.URL.Query().Get("rotation"); q != "" {
		rotation = rsa.ParseRotation(q)
	}

	combo, err := s.rsa.GenerateCombination(ad, rotation)
	if errors.Is(err, rsa.ErrNoEligibleAssets) {
		s.respond(w, endpoint, method, start, http.StatusOK, CombinationResponse{AdID: id})
		return
	}
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("generate combination", zap.String("ad_id", id), zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusInternalServerError, "internal error")
		return
	}

	if observability.ServeSampler.Sample() {
		middleware.LoggerFromRequest(r, s.Logger).Info("served combination",
			zap.String("ad_id", id),
			zap.String("rotation", string(rotation)),
			zap.String("headline_id", combo.HeadlineID),
			zap.String("description_id", combo.DescriptionID))
	}
	s.respond(w, endpoint, method, start, http.StatusOK, CombinationResponse{AdID: id, Available: true, Combination: &combo})
}

// RecordAdPerformance handles POST /ads/{id}/performance.
func (s *Server) RecordAdPerformance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ad_performance"
	const method = "POST"

	id := mux.Vars(r)["id"]
	var req AdPerformanceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "ad not found")
		return
	}

	var err error
	if req.HeadlineID == "" && req.DescriptionID == "" {
		err = s.rsa.UpdatePerformanceByText(ad, req.HeadlineText, req.DescriptionText, req.Clicks, req.Impressions, req.Conversions)
	} else {
		err = s.rsa.UpdatePerformance(ad, req.HeadlineID, req.DescriptionID, req.Clicks, req.Impressions, req.Conversions)
	}
	switch {
	case errors.Is(err, rsa.ErrInvalidCounts):
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "counts must not be negative")
		return
	case errors.Is(err, rsa.ErrAssetNotFound):
		s.fail(w, endpoint, method, start, http.StatusNotFound, "asset not found")
		return
	case err != nil:
		middleware.LoggerFromRequest(r, s.Logger).Error("update ad performance", zap.String("ad_id", id), zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusInternalServerError, "internal error")
		return
	}
	s.snapshotAd(r.Context(), ad)

	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"ad_id":             id,
		"learning_status":   ad.LearningStatus,
		"total_impressions": ad.TotalImpressions(),
	})
}

// AdInsights handles GET /ads/{id}/insights.
func (s *Server) AdInsights(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ad_insights"
	const method = "GET"

	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "ad not found")
		return
	}
	s.rsa.Refresh(ad)
	s.respond(w, endpoint, method, start, http.StatusOK, s.rsa.PerformanceInsights(ad))
}

// SetAssetStatus handles POST /ads/{id}/assets/{asset_id}/status. Paused and
// removed assets are no longer served or counted towards ad strength.
func (s *Server) SetAssetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "asset_status"
	const method = "POST"

	vars := mux.Vars(r)
	id, assetID := vars["id"], vars["asset_id"]
	var req AssetStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		s.fail(w, endpoint, method, start, http.StatusNotFound, "ad not found")
		return
	}
	err := ad.SetStatus(assetID, rsa.Status(req.Status))
	switch {
	case errors.Is(err, rsa.ErrInvalidStatus):
		s.fail(w, endpoint, method, start, http.StatusBadRequest, "status must be enabled, paused or removed")
		return
	case errors.Is(err, rsa.ErrAssetNotFound):
		s.fail(w, endpoint, method, start, http.StatusNotFound, "asset not found")
		return
	case err != nil:
		middleware.LoggerFromRequest(r, s.Logger).Error("set asset status", zap.String("ad_id", id), zap.Error(err))
		s.fail(w, endpoint, method, start, http.StatusInternalServerError, "internal error")
		return
	}
	s.rsa.Refresh(ad)
	s.snapshotAd(r.Context(), ad)

	s.respond(w, endpoint, method, start, http.StatusOK, map[string]interface{}{
		"ad_id":       id,
		"asset_id":    assetID,
		"status":      req.Status,
		"ad_strength": ad.AdStrength,
	})
}
