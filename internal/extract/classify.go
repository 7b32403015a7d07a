package extract

import (
	"math"
	"strings"
	"unicode"

	"github.com/daybooklabs/daybook/pkg/models"
)

// NeedsReviewThreshold is the confidence below which the review UI flags
// an item for closer inspection. Catch-all classifications always score
// under this threshold.
const NeedsReviewThreshold = 60

const catchAllCap = 55

// Classification is the classifier output for one segment.
type Classification struct {
	Category   models.Category
	Confidence int
	Reasoning  models.Reasoning
}

// Classifier assigns a category, confidence, and reasoning to a segment.
// Implementations must be deterministic (identical text yields identical
// output) and safe for concurrent use, so a rule-based table and a future
// model-backed classifier are interchangeable behind this contract.
type Classifier interface {
	Classify(seg Segment) Classification
}

// RuleClassifier classifies segments against the fixed rule table.
//
// Confidence combination, fixed for reproducibility:
//
//	score = Σ(weight_i × strength_i) / Σ(weight_i)  over matched rules
//	score = min(1.0, score + 0.03 × (matches − 1))
//	confidence = round(100 × score)
//
// Reported confidence factors are the normalized per-rule contributions
// plus a "corroboration" factor for the multi-match bonus, so the factors
// sum to the overall score before rounding. The category comes from the
// first matching rule in table order.
type RuleClassifier struct{}

// NewRuleClassifier returns the rule-table classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify is a pure function of the segment text and the static table.
// It never fails: text that matches no rule falls through to the
// catch-all category with a confidence below NeedsReviewThreshold.
func (c *RuleClassifier) Classify(seg Segment) Classification {
	type match struct {
		rule    *rule
		keyword string
	}
	var matches []match
	for i := range ruleTable {
		r := &ruleTable[i]
		if loc := r.re.FindString(seg.Text); loc != "" {
			matches = append(matches, match{rule: r, keyword: strings.ToLower(loc)})
		}
	}

	if len(matches) == 0 {
		return catchAll(seg)
	}

	num, den := 0.0, 0.0
	for _, m := range matches {
		num += m.rule.weight * m.rule.strength
		den += m.rule.weight
	}
	bonus := 0.03 * float64(len(matches)-1)
	raw := num/den + bonus

	// Cap at 1.0, rescaling contributions so factors still sum to the score.
	scale := 1.0
	if raw > 1.0 {
		scale = 1.0 / raw
	}
	score := raw * scale

	reasoning := models.Reasoning{
		ConfidenceFactors: make(map[string]float64, len(matches)+1),
	}
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		reasoning.MatchedPatterns = append(reasoning.MatchedPatterns, m.rule.id)
		if !seen[m.keyword] {
			seen[m.keyword] = true
			reasoning.Keywords = append(reasoning.Keywords, m.keyword)
		}
		reasoning.ConfidenceFactors[m.rule.factor] += round4(m.rule.weight * m.rule.strength / den * scale)
	}
	if bonus > 0 {
		reasoning.ConfidenceFactors["corroboration"] = round4(bonus * scale)
	}

	return Classification{
		Category:   matches[0].rule.category,
		Confidence: int(math.Round(100 * score)),
		Reasoning:  reasoning,
	}
}

// catchAll handles segments no rule recognizes: lowest-priority category,
// confidence from a word-count heuristic, capped below the review
// threshold. Empty text scores zero.
func catchAll(seg Segment) Classification {
	words := 0
	for _, f := range strings.FieldsFunc(seg.Text, unicode.IsSpace) {
		if f != "" {
			words++
		}
	}
	conf := 0
	if words > 0 {
		conf = 30 + 3*words
		if conf > catchAllCap {
			conf = catchAllCap
		}
	}
	return Classification{
		Category:   models.CategoryWhatNext,
		Confidence: conf,
		Reasoning: models.Reasoning{
			ConfidenceFactors: map[string]float64{"catch_all": float64(conf) / 100},
		},
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
