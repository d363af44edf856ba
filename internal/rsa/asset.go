package rsa

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AssetType distinguishes headline assets from description assets.
type AssetType string

const (
	Headline    AssetType = "headline"
	Description AssetType = "description"
)

// Status is the serving state of an asset. Only enabled assets are served or
// counted towards ad strength.
type Status string

const (
	StatusEnabled Status = "enabled"
	StatusPaused  Status = "paused"
	StatusRemoved Status = "removed"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidStatus = errors.New("invalid asset status")
)

// Asset is a single headline or description with its accumulated counters.
// The text never changes after creation; ID is the lookup key for feedback.
type Asset struct {
	ID               string    `json:"id"`
	Type             AssetType `json:"type"`
	Text             string    `json:"text"`
	Impressions      int       `json:"impressions"`
	Clicks           int       `json:"clicks"`
	Conversions      int       `json:"conversions"`
	PerformanceScore float64   `json:"performance_score"`
	Status           Status    `json:"status"`
}

func newAsset(t AssetType, text string) *Asset {
	return &Asset{
		ID:     uuid.NewString(),
		Type:   t,
		Text:   text,
		Status: StatusEnabled,
	}
}

// Enabled reports whether the asset may be served.
func (a *Asset) Enabled() bool { return a.Status == StatusEnabled }

// CTR is clicks over impressions, 0 without impressions.
func (a *Asset) CTR() float64 {
	if a.Impressions == 0 {
		return 0
	}
	return float64(a.Clicks) / float64(a.Impressions)
}

// CVR is conversions over clicks, with clicks floored at 1.
func (a *Asset) CVR() float64 {
	return float64(a.Conversions) / float64(max(a.Clicks, 1))
}

func (a *Asset) record(impressions, clicks, conversions int) {
	a.Impressions += impressions
	a.Clicks += clicks
	a.Conversions += conversions
	if a.Impressions > 0 {
		a.PerformanceScore = a.CTR() * a.CVR() * 100
	}
}

// LearningStatus is the serving phase of an ad, driven by impressions.
type LearningStatus string

const (
	Learning  LearningStatus = "learning"
	Limited   LearningStatus = "limited"
	Optimized LearningStatus = "optimized"
)

// Strength is the qualitative ad strength rating.
type Strength string

const (
	StrengthUnknown   Strength = "unknown"
	StrengthPoor      Strength = "poor"
	StrengthAverage   Strength = "average"
	StrengthGood      Strength = "good"
	StrengthExcellent Strength = "excellent"
)

// Rotation selects how combinations are chosen.
type Rotation string

const (
	RotationOptimize     Rotation = "optimize"
	RotationRotateEvenly Rotation = "rotate_evenly"
)

// ParseRotation maps a rotation name to a Rotation. Empty and unknown values
// default to RotationOptimize.
func ParseRotation(s string) Rotation {
	if Rotation(s) == RotationRotateEvenly {
		return RotationRotateEvenly
	}
	return RotationOptimize
}

// Ad is a responsive search ad: ordered headline and description pools plus
// cached status fields. Assets are owned by the ad and indexed by ID.
type Ad struct {
	ID             string         `json:"ad_id"`
	AdGroupID      string         `json:"ad_group_id"`
	Headlines      []*Asset       `json:"headlines"`
	Descriptions   []*Asset       `json:"descriptions"`
	LearningStatus LearningStatus `json:"learning_status"`
	AdStrength     Strength       `json:"ad_strength"`
	Rotation       Rotation       `json:"rotation_type"`

	index map[string]*Asset
}

// NewAd builds an ad with freshly identified assets. An empty adID is
// replaced with a generated one.
func NewAd(adID, adGroupID string, headlines, descriptions []string) *Ad {
	if adID == "" {
		adID = uuid.NewString()
	}
	ad := &Ad{
		ID:             adID,
		AdGroupID:      adGroupID,
		LearningStatus: Learning,
		AdStrength:     StrengthUnknown,
		Rotation:       RotationOptimize,
		index:          make(map[string]*Asset),
	}
	for _, text := range headlines {
		ad.AddHeadline(text)
	}
	for _, text := range descriptions {
		ad.AddDescription(text)
	}
	return ad
}

// AddHeadline appends an enabled headline and returns it.
func (ad *Ad) AddHeadline(text string) *Asset {
	a := newAsset(Headline, text)
	ad.Headlines = append(ad.Headlines, a)
	ad.indexAsset(a)
	return a
}

// AddDescription appends an enabled description and returns it.
func (ad *Ad) AddDescription(text string) *Asset {
	a := newAsset(Description, text)
	ad.Descriptions = append(ad.Descriptions, a)
	ad.indexAsset(a)
	return a
}

func (ad *Ad) indexAsset(a *Asset) {
	if ad.index == nil {
		ad.index = make(map[string]*Asset)
	}
	ad.index[a.ID] = a
}

// Asset looks up an asset by ID.
func (ad *Ad) Asset(id string) (*Asset, bool) {
	if ad.index == nil {
		ad.reindex()
	}
	a, ok := ad.index[id]
	return a, ok
}

// FindByText returns the first asset of type t whose text equals text.
func (ad *Ad) FindByText(t AssetType, text string) (*Asset, bool) {
	pool := ad.Headlines
	if t == Description {
		pool = ad.Descriptions
	}
	for _, a := range pool {
		if a.Text == text {
			return a, true
		}
	}
	return nil, false
}

// SetStatus changes the serving status of the asset with the given ID.
func (ad *Ad) SetStatus(id string, status Status) error {
	switch status {
	case StatusEnabled, StatusPaused, StatusRemoved:
	default:
		return fmt.Errorf("set status %q: %w", status, ErrInvalidStatus)
	}
	a, ok := ad.Asset(id)
	if !ok {
		return fmt.Errorf("set status on %s: %w", id, ErrAssetNotFound)
	}
	a.Status = status
	return nil
}

// EnabledHeadlines returns the headlines that may be served, in pool order.
func (ad *Ad) EnabledHeadlines() []*Asset { return enabled(ad.Headlines) }

// EnabledDescriptions returns the descriptions that may be served, in pool order.
func (ad *Ad) EnabledDescriptions() []*Asset { return enabled(ad.Descriptions) }

// TotalImpressions sums impressions over all headlines regardless of status.
func (ad *Ad) TotalImpressions() int {
	total := 0
	for _, h := range ad.Headlines {
		total += h.Impressions
	}
	return total
}

func (ad *Ad) reindex() {
	ad.index = make(map[string]*Asset, len(ad.Headlines)+len(ad.Descriptions))
	for _, a := range ad.Headlines {
		ad.index[a.ID] = a
	}
	for _, a := range ad.Descriptions {
		ad.index[a.ID] = a
	}
}

// UnmarshalJSON decodes an ad and rebuilds its asset index.
func (ad *Ad) UnmarshalJSON(data []byte) error {
	type plain Ad
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*ad = Ad(p)
	ad.reindex()
	return nil
}

func enabled(pool []*Asset) []*Asset {
	out := make([]*Asset, 0, len(pool))
	for _, a := range pool {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	return out
}
