package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/simulation"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random scenario file",
		Long: `Generate builds a plausible campaign with random keywords and
responsive search ads. The same --seed always produces the same scenario.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keywords, _ := cmd.Flags().GetInt("keywords")
			groups, _ := cmd.Flags().GetInt("ad-groups")
			days, _ := cmd.Flags().GetInt("days")
			seed, _ := cmd.Flags().GetInt64("seed")
			out, _ := cmd.Flags().GetString("out")
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
			}

			sc, err := generateScenario(rand.New(rand.NewSource(seed)), keywords, groups, days)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(sc)
			if err != nil {
				return fmt.Errorf("encode scenario: %w", err)
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write scenario: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %q, %d keywords, %d ads\n", out, sc.Campaign.Name, len(sc.Keywords), len(sc.Ads))
			return nil
		},
	}
	cmd.Flags().Int("keywords", 6, "Number of keywords")
	cmd.Flags().Int("ad-groups", 2, "Number of ad groups, each with one responsive search ad")
	cmd.Flags().Int("days", 14, "Simulated days")
	cmd.Flags().Int64("seed", 0, "RNG seed (default: current time)")
	cmd.Flags().String("out", "", "Write to this file instead of stdout")
	return cmd
}

var (
	productWords  = []string{"running shoes", "trail sneakers", "yoga mats", "rain jackets", "hiking boots", "water bottles", "fitness trackers", "gym bags"}
	keywordPrefix = []string{"", "best ", "cheap ", "buy ", "women's ", "men's ", "waterproof "}
	keywordSuffix = []string{"", " online", " sale", " near me", " reviews", " free shipping"}
	seasons       = []string{"Spring", "Summer", "Fall", "Winter", "Holiday"}
	promos        = []string{"Sale", "Launch", "Promo", "Clearance"}
	headlineBits  = []string{"Free Shipping", "Shop Now", "Top Rated", "New Arrivals", "Up To 50% Off", "Official Store", "Fast Delivery", "Easy Returns", "Limited Offer", "Best Prices", "Expert Picks", "Order Today"}
	descBits      = []string{
		"Free shipping on every order, no minimum.",
		"Hundreds of styles in stock and ready to ship.",
		"Rated five stars by thousands of customers.",
		"Easy 30 day returns. Shop with confidence.",
		"Exclusive online deals updated every week.",
		"Find your perfect fit with our sizing guide.",
	}
)

// generateScenario draws a valid scenario from r.
func generateScenario(r *rand.Rand, keywords, groups, days int) (simulation.Scenario, error) {
	if keywords < 1 || groups < 1 || days < 1 {
		return simulation.Scenario{}, fmt.Errorf("keywords, ad groups and days must be positive: %w", simulation.ErrInvalidScenario)
	}
	if groups > keywords {
		groups = keywords
	}

	industries := impressionshare.Industries()
	product := productWords[r.Intn(len(productWords))]
	sc := simulation.Scenario{
		Campaign: simulation.Campaign{
			Name:            fmt.Sprintf("%s %s %s", seasons[r.Intn(len(seasons))], product, promos[r.Intn(len(promos))]),
			DailyBudget:     float64(50 + 25*r.Intn(20)),
			Industry:        industries[r.Intn(len(industries))],
			CompetitorCount: 2 + r.Intn(8),
		},
		Days: days,
		Target: simulation.TargetConfig{
			Country:   "US",
			Audiences: []string{"all_visitors"},
		},
	}

	seen := make(map[string]bool, keywords)
	for i := 0; len(sc.Keywords) < keywords; i++ {
		text := keywordPrefix[r.Intn(len(keywordPrefix))] + product + keywordSuffix[r.Intn(len(keywordSuffix))]
		if seen[text] {
			// the word lists are finite, so fall back to numbered variants
			text = fmt.Sprintf("%s %d", text, i)
		}
		seen[text] = true
		n := len(sc.Keywords)
		sc.Keywords = append(sc.Keywords, simulation.Keyword{
			ID:             fmt.Sprintf("kw-%d", n+1),
			Text:           text,
			AdGroupID:      fmt.Sprintf("ag-%d", n%groups+1),
			InitialQS:      float64(3 + r.Intn(6)),
			BaseCTR:        round(0.01+r.Float64()*0.07, 3),
			ConversionRate: round(0.01+r.Float64()*0.06, 3),
			Relevance:      round(0.4+r.Float64()*0.55, 2),
			DailySearches:  200 + r.Intn(2800),
			CPC:            round(0.4+r.Float64()*2.6, 2),
		})
	}

	for g := 1; g <= groups; g++ {
		ad := simulation.AdSpec{
			ID:        fmt.Sprintf("ad-%d", g),
			AdGroupID: fmt.Sprintf("ag-%d", g),
			Rotation:  "optimize",
		}
		for _, i := range r.Perm(len(headlineBits))[:4+r.Intn(8)] {
			ad.Headlines = append(ad.Headlines, headlineBits[i])
		}
		for _, i := range r.Perm(len(descBits))[:2+r.Intn(3)] {
			ad.Descriptions = append(ad.Descriptions, descBits[i])
		}
		sc.Ads = append(sc.Ads, ad)
	}

	return sc, sc.Validate()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
