package simulation

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/quality"
)

// ErrInvalidScenario wraps every scenario validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// MaxDays caps the length of one run; reports hold a row per day.
const MaxDays = 3650

// Scenario describes one campaign to simulate.
type Scenario struct {
	Campaign Campaign     `yaml:"campaign" json:"campaign"`
	Days     int          `yaml:"days" json:"days"`
	Seed     *uint32      `yaml:"seed,omitempty" json:"seed,omitempty"`
	Keywords []Keyword    `yaml:"keywords" json:"keywords"`
	Ads      []AdSpec     `yaml:"ads" json:"ads"`
	Target   TargetConfig `yaml:"targeting" json:"targeting"`
}

// Campaign holds campaign-wide settings.
type Campaign struct {
	Name            string  `yaml:"name" json:"name"`
	DailyBudget     float64 `yaml:"daily_budget" json:"daily_budget"`
	Industry        string  `yaml:"industry" json:"industry"`
	CompetitorCount int     `yaml:"competitor_count" json:"competitor_count"`
}

// Keyword is a bidded keyword and the market it competes in.
type Keyword struct {
	ID             string  `yaml:"id" json:"id"`
	Text           string  `yaml:"text" json:"text"`
	AdGroupID      string  `yaml:"ad_group_id" json:"ad_group_id"`
	InitialQS      float64 `yaml:"initial_qs" json:"initial_qs"`
	BaseCTR        float64 `yaml:"base_ctr" json:"base_ctr"`
	ConversionRate float64 `yaml:"conversion_rate" json:"conversion_rate"`
	Relevance      float64 `yaml:"relevance" json:"relevance"`
	DailySearches  int     `yaml:"daily_searches" json:"daily_searches"`
	CPC            float64 `yaml:"cpc" json:"cpc"`
}

// AdSpec is a responsive search ad served for one ad group.
type AdSpec struct {
	ID           string   `yaml:"id" json:"id"`
	AdGroupID    string   `yaml:"ad_group_id" json:"ad_group_id"`
	Headlines    []string `yaml:"headlines" json:"headlines"`
	Descriptions []string `yaml:"descriptions" json:"descriptions"`
	Rotation     string   `yaml:"rotation" json:"rotation"`
	// Paused lists headline or description texts that start paused.
	Paused []string `yaml:"paused,omitempty" json:"paused,omitempty"`
}

// TargetConfig sets the traffic profile and the active bid adjustments.
type TargetConfig struct {
	Country   string           `yaml:"country" json:"country"`
	Audiences []string         `yaml:"audiences" json:"audiences"`
	Geo       []TargetModifier `yaml:"geo" json:"geo"`
	Segments  []TargetModifier `yaml:"segments" json:"segments"`
}

// TargetModifier activates a location or audience with a bid modifier.
type TargetModifier struct {
	ID          string  `yaml:"id" json:"id"`
	BidModifier float64 `yaml:"bid_modifier" json:"bid_modifier"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from CLI flag
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario, applies defaults and validates it.
func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Campaign.Name == "" {
		sc.Campaign.Name = "default"
	}
	if sc.Campaign.Industry == "" {
		sc.Campaign.Industry = impressionshare.DefaultIndustry
	}
	if sc.Days == 0 {
		sc.Days = 7
	}
	if sc.Target.Country == "" {
		sc.Target.Country = "US"
	}
	for i := range sc.Keywords {
		kw := &sc.Keywords[i]
		if kw.ID == "" {
			kw.ID = kw.Text
		}
		if kw.InitialQS == 0 {
			kw.InitialQS = 5
		}
		if kw.BaseCTR == 0 {
			kw.BaseCTR = quality.ExpectedCTR(kw.InitialQS)
		}
		if kw.ConversionRate == 0 {
			kw.ConversionRate = 0.05
		}
		if kw.Relevance == 0 {
			kw.Relevance = 0.7
		}
		if kw.CPC == 0 {
			kw.CPC = 1.5
		}
	}
}

// Validate reports the first problem found in the scenario.
func (sc Scenario) Validate() error {
	if !(sc.Campaign.DailyBudget > 0) {
		return fmt.Errorf("daily budget %v must be positive: %w", sc.Campaign.DailyBudget, ErrInvalidScenario)
	}
	if sc.Days < 1 || sc.Days > MaxDays {
		return fmt.Errorf("days %d must be within [1,%d]: %w", sc.Days, MaxDays, ErrInvalidScenario)
	}
	if sc.Campaign.CompetitorCount < 0 {
		return fmt.Errorf("competitor count %d: %w", sc.Campaign.CompetitorCount, ErrInvalidScenario)
	}
	if len(sc.Keywords) == 0 {
		return fmt.Errorf("no keywords: %w", ErrInvalidScenario)
	}
	seen := make(map[string]bool, len(sc.Keywords))
	for _, kw := range sc.Keywords {
		if kw.Text == "" {
			return fmt.Errorf("keyword %q without text: %w", kw.ID, ErrInvalidScenario)
		}
		if seen[kw.ID] {
			return fmt.Errorf("duplicate keyword %q: %w", kw.ID, ErrInvalidScenario)
		}
		seen[kw.ID] = true
		if kw.InitialQS < quality.MinQS || kw.InitialQS > quality.MaxQS {
			return fmt.Errorf("keyword %q initial QS %v: %w", kw.ID, kw.InitialQS, ErrInvalidScenario)
		}
		if kw.BaseCTR < 0 || kw.BaseCTR > 1 || kw.ConversionRate < 0 || kw.ConversionRate > 1 {
			return fmt.Errorf("keyword %q rates must be within [0,1]: %w", kw.ID, ErrInvalidScenario)
		}
		if kw.Relevance < 0 || kw.Relevance > 1 {
			return fmt.Errorf("keyword %q relevance %v: %w", kw.ID, kw.Relevance, ErrInvalidScenario)
		}
		if kw.DailySearches < 0 || kw.CPC < 0 {
			return fmt.Errorf("keyword %q searches and cpc must not be negative: %w", kw.ID, ErrInvalidScenario)
		}
	}
	for _, ad := range sc.Ads {
		if len(ad.Headlines) == 0 || len(ad.Descriptions) == 0 {
			return fmt.Errorf("ad %q needs headlines and descriptions: %w", ad.ID, ErrInvalidScenario)
		}
		for _, text := range ad.Paused {
			if !slices.Contains(ad.Headlines, text) && !slices.Contains(ad.Descriptions, text) {
				return fmt.Errorf("ad %q pauses unknown asset %q: %w", ad.ID, text, ErrInvalidScenario)
			}
		}
	}
	return nil
}

// DeterministicSeed derives the run seed from the campaign name and the
// sorted keyword texts, so identical scenarios replay identically. An
// explicit seed in the scenario wins.
func (sc Scenario) DeterministicSeed() uint32 {
	if sc.Seed != nil {
		return *sc.Seed
	}
	texts := make([]string, len(sc.Keywords))
	for i, kw := range sc.Keywords {
		texts[i] = kw.Text
	}
	sort.Strings(texts)
	sum := sha256.Sum256([]byte(sc.Campaign.Name + "_" + strings.Join(texts, "|")))
	// the digest read as a big-endian integer, mod 2^32, is its last four bytes
	return binary.BigEndian.Uint32(sum[len(sum)-4:])
}
