package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/painminer/internal/model"
)

const systemPrompt = `You are an analyst extracting validated business pain points from raw text collected on public platforms. You respond with a single JSON object and nothing else.`

const classificationTemplate = `Analyze this post and decide whether it describes a real business pain.

POST FROM %s:
%s

---

Return JSON:

{
  "is_pain": true/false,
  "confidence": 0.0-1.0,

  "industry": "restaurant|cafe|dental|medical|real_estate|hvac|ecommerce|saas|agency|freelance|retail|other",
  "sub_industry": "more specific category if applicable",

  "role": "owner|manager|employee|customer|other",

  "pain_title": "Short 5-10 word summary of the pain",
  "pain_description": "2-3 sentence description of the problem",

  "severity": 1-10,
  "frequency": "daily|weekly|monthly|rare",
  "impact_type": "time|money|stress|growth",
  "emotional_intensity": 1-10,

  "willingness_to_pay": "none|low|medium|high",

  "solvable_with_software": true/false,
  "solvable_with_ai": true/false,
  "solution_complexity": "simple|medium|complex",

  "potential_product": "Brief product concept",

  "key_quotes": ["exact quote 1", "exact quote 2"],
  "tags": ["scheduling", "inventory", "hiring", "billing", etc]
}

If this is NOT a business pain (just a question, discussion, success story, etc), return:
{
  "is_pain": false,
  "confidence": 0.0-1.0,
  "rejection_reason": "why this is not a business pain"
}

Return ONLY valid JSON, no markdown.`

// buildPrompt formats the classification request for one raw item. Metadata
// keys are appended as context lines so subreddit names, review ratings and
// the like reach the model.
func buildPrompt(item model.RawItem) string {
	var ctx strings.Builder
	ctx.WriteString(item.Text)
	if len(item.Metadata) > 0 {
		ctx.WriteString("\n\nContext:")
		for _, k := range sortedKeys(item.Metadata) {
			fmt.Fprintf(&ctx, "\n%s: %s", k, item.Metadata[k])
		}
	}
	return fmt.Sprintf(classificationTemplate, item.Source, ctx.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
