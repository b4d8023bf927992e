package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Competitor is one existing tool named by the deep analyzer.
type Competitor struct {
	Name       string `json:"name"`
	PriceRange string `json:"price_range"`
	Weakness   string `json:"weakness"`
}

// DeepAnalysis is the externally generated viability assessment of one
// cluster. Append-only: re-analysis inserts a new row.
type DeepAnalysis struct {
	ID        string `json:"id"`
	ClusterID string `json:"cluster_id"`
	RunID     string `json:"run_id"`

	Competitors     []Competitor `json:"competitors"`
	WhyStillPainful string       `json:"why_still_painful"`

	TargetRole        string     `json:"target_role"`
	TargetCompanySize string     `json:"target_company_size"`
	TargetIndustries  []string   `json:"target_industries"`
	MarketSize        MarketSize `json:"market_size"`

	RootCause      string   `json:"root_cause"`
	MVPDescription string   `json:"mvp_description"`
	CoreFeatures   []string `json:"core_features"`
	OutOfScope     []string `json:"out_of_scope"`

	WhereToFindCustomers []string `json:"where_to_find_customers"`
	BestChannel          string   `json:"best_channel"`
	PriceRange           string   `json:"price_range"`

	Risks []string `json:"risks"`

	Verdict             Verdict `json:"verdict"`
	AttractivenessScore int     `json:"attractiveness_score"`
	MainArgument        string  `json:"main_argument"`

	ModelUsed  string    `json:"model_used"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// AnalysisPayload is the JSON object the deep analysis model must return.
type AnalysisPayload struct {
	Competitors     []Competitor `json:"competitors"`
	WhyStillPainful string       `json:"why_still_painful"`

	TargetRole        string     `json:"target_role"`
	TargetCompanySize string     `json:"target_company_size"`
	TargetIndustries  []string   `json:"target_industries"`
	MarketSize        MarketSize `json:"market_size"`

	RootCause      string   `json:"root_cause"`
	MVPDescription string   `json:"mvp_description"`
	CoreFeatures   []string `json:"core_features"`
	OutOfScope     []string `json:"out_of_scope"`

	WhereToFindCustomers []string `json:"where_to_find_customers"`
	BestChannel          string   `json:"best_channel"`
	PriceRange           string   `json:"price_range"`

	Risks []string `json:"risks"`

	Verdict             Verdict `json:"verdict"`
	AttractivenessScore int     `json:"attractiveness_score"`
	MainArgument        string  `json:"main_argument"`
}

// Validate checks the payload against the deep analysis contract.
func (p AnalysisPayload) Validate() error {
	var violations []string

	if p.TargetRole == "" {
		violations = append(violations, "target_role missing")
	}
	if p.MVPDescription == "" {
		violations = append(violations, "mvp_description missing")
	}
	if !validMarketSize(p.MarketSize) {
		violations = append(violations, fmt.Sprintf("market_size %q not recognized", p.MarketSize))
	}
	if !validVerdict(p.Verdict) {
		violations = append(violations, fmt.Sprintf("verdict %q not recognized", p.Verdict))
	}
	if p.AttractivenessScore < 1 || p.AttractivenessScore > 10 {
		violations = append(violations, fmt.Sprintf("attractiveness_score %d out of range [1,10]", p.AttractivenessScore))
	}
	if len(p.CoreFeatures) == 0 {
		violations = append(violations, "core_features empty")
	}

	if len(violations) > 0 {
		return eris.Errorf("analysis payload invalid: %s", strings.Join(violations, "; "))
	}
	return nil
}

// ToDeepAnalysis builds an append-only DeepAnalysis row from a validated payload.
func (p AnalysisPayload) ToDeepAnalysis(id, clusterID, runID, modelUsed string, now time.Time) DeepAnalysis {
	return DeepAnalysis{
		ID:                   id,
		ClusterID:            clusterID,
		RunID:                runID,
		Competitors:          p.Competitors,
		WhyStillPainful:      p.WhyStillPainful,
		TargetRole:           p.TargetRole,
		TargetCompanySize:    p.TargetCompanySize,
		TargetIndustries:     p.TargetIndustries,
		MarketSize:           p.MarketSize,
		RootCause:            p.RootCause,
		MVPDescription:       p.MVPDescription,
		CoreFeatures:         p.CoreFeatures,
		OutOfScope:           p.OutOfScope,
		WhereToFindCustomers: p.WhereToFindCustomers,
		BestChannel:          p.BestChannel,
		PriceRange:           p.PriceRange,
		Risks:                p.Risks,
		Verdict:              p.Verdict,
		AttractivenessScore:  p.AttractivenessScore,
		MainArgument:         p.MainArgument,
		ModelUsed:            modelUsed,
		AnalyzedAt:           now.UTC(),
	}
}
