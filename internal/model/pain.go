package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Pain is one validated business problem extracted from a raw item.
// Immutable once persisted; corrections require a new record.
type Pain struct {
	ID         string `json:"id"`
	RawItemRef string `json:"raw_item_ref"` // Source/ExternalID identity
	Source     Source `json:"source"`

	Industry    string `json:"industry"`
	SubIndustry string `json:"sub_industry,omitempty"`
	Role        string `json:"role"`

	Title       string `json:"title"`
	Description string `json:"description"`

	Severity           int        `json:"severity"`
	Frequency          Frequency  `json:"frequency"`
	ImpactType         ImpactType `json:"impact_type"`
	EmotionalIntensity int        `json:"emotional_intensity"`

	WillingnessToPay     WTP        `json:"willingness_to_pay"`
	SolvableWithSoftware bool       `json:"solvable_with_software"`
	SolvableWithAI       bool       `json:"solvable_with_ai"`
	SolutionComplexity   Complexity `json:"solution_complexity"`

	PotentialProduct string   `json:"potential_product"`
	KeyQuotes        []string `json:"key_quotes"`
	Tags             []string `json:"tags"`

	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClassificationPayload is the JSON object the classifier model must return.
// When IsPain is false only RejectionReason is meaningful.
type ClassificationPayload struct {
	IsPain          bool   `json:"is_pain"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	Industry    string `json:"industry"`
	SubIndustry string `json:"sub_industry"`
	Role        string `json:"role"`

	PainTitle       string `json:"pain_title"`
	PainDescription string `json:"pain_description"`

	Severity           int        `json:"severity"`
	Frequency          Frequency  `json:"frequency"`
	ImpactType         ImpactType `json:"impact_type"`
	EmotionalIntensity int        `json:"emotional_intensity"`

	WillingnessToPay     WTP        `json:"willingness_to_pay"`
	SolvableWithSoftware bool       `json:"solvable_with_software"`
	SolvableWithAI       bool       `json:"solvable_with_ai"`
	SolutionComplexity   Complexity `json:"solution_complexity"`

	PotentialProduct string   `json:"potential_product"`
	KeyQuotes        []string `json:"key_quotes"`
	Tags             []string `json:"tags"`

	Confidence float64 `json:"confidence"`
}

// Validate checks the payload against the classification contract. Payloads
// with IsPain=false are always valid; positive payloads must satisfy every
// field constraint before they may be persisted.
func (p ClassificationPayload) Validate() error {
	if !p.IsPain {
		return nil
	}

	var violations []string

	if p.Industry == "" {
		violations = append(violations, "industry missing")
	}
	if p.Role == "" {
		violations = append(violations, "role missing")
	}
	if p.PainTitle == "" {
		violations = append(violations, "pain_title missing")
	}
	if p.Severity < 1 || p.Severity > 10 {
		violations = append(violations, fmt.Sprintf("severity %d out of range [1,10]", p.Severity))
	}
	if !validFrequency(p.Frequency) {
		violations = append(violations, fmt.Sprintf("frequency %q not recognized", p.Frequency))
	}
	if !validImpactType(p.ImpactType) {
		violations = append(violations, fmt.Sprintf("impact_type %q not recognized", p.ImpactType))
	}
	if !validWTP(p.WillingnessToPay) {
		violations = append(violations, fmt.Sprintf("willingness_to_pay %q not recognized", p.WillingnessToPay))
	}
	if !validComplexity(p.SolutionComplexity) {
		violations = append(violations, fmt.Sprintf("solution_complexity %q not recognized", p.SolutionComplexity))
	}
	if p.EmotionalIntensity != 0 && (p.EmotionalIntensity < 1 || p.EmotionalIntensity > 10) {
		violations = append(violations, fmt.Sprintf("emotional_intensity %d out of range [1,10]", p.EmotionalIntensity))
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		violations = append(violations, fmt.Sprintf("confidence %.2f out of range [0,1]", p.Confidence))
	}
	if len(p.KeyQuotes) == 0 {
		violations = append(violations, "key_quotes empty")
	}

	if len(violations) > 0 {
		return eris.Errorf("classification payload invalid: %s", strings.Join(violations, "; "))
	}
	return nil
}

// ToPain builds an immutable Pain record from a validated positive payload.
// The mapping is pure: the same payload always yields the same fields.
func (p ClassificationPayload) ToPain(id string, item RawItem, now time.Time) Pain {
	return Pain{
		ID:                   id,
		RawItemRef:           item.Identity(),
		Source:               item.Source,
		Industry:             p.Industry,
		SubIndustry:          p.SubIndustry,
		Role:                 p.Role,
		Title:                p.PainTitle,
		Description:          p.PainDescription,
		Severity:             p.Severity,
		Frequency:            p.Frequency,
		ImpactType:           p.ImpactType,
		EmotionalIntensity:   p.EmotionalIntensity,
		WillingnessToPay:     p.WillingnessToPay,
		SolvableWithSoftware: p.SolvableWithSoftware,
		SolvableWithAI:       p.SolvableWithAI,
		SolutionComplexity:   p.SolutionComplexity,
		PotentialProduct:     p.PotentialProduct,
		KeyQuotes:            p.KeyQuotes,
		Tags:                 p.Tags,
		Confidence:           p.Confidence,
		CreatedAt:            now.UTC(),
	}
}

// EmbedText returns the canonical text used for similarity. Industry and role
// are appended so "hard to hire" in a restaurant does not collapse into
// "hard to hire" in IT.
func (p Pain) EmbedText() string {
	parts := []string{p.Title, p.Description}
	parts = append(parts, p.KeyQuotes...)
	if p.PotentialProduct != "" {
		parts = append(parts, p.PotentialProduct)
	}
	if p.Industry != "" {
		parts = append(parts, "Industry: "+p.Industry)
	}
	if p.Role != "" {
		parts = append(parts, "Role: "+p.Role)
	}
	return strings.Join(parts, " | ")
}
