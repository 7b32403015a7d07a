package extract

import (
	"regexp"

	"github.com/daybooklabs/daybook/pkg/models"
)

// RulesVersion identifies the rule table recorded in ledger entries so
// confidence scores stay attributable after future rule changes.
const RulesVersion = "rules/v1"

// rule is one pattern in the classification table. Rules are evaluated in
// slice order, which is also the priority order: the first matching rule
// decides the category, and every matching rule contributes its named
// confidence factor.
type rule struct {
	id       string // matched-pattern identifier reported in reasoning
	category models.Category
	factor   string  // confidence factor name
	strength float64 // factor value in [0,1]
	weight   float64 // rule weight in the combination function
	re       *regexp.Regexp
}

// ruleTable is fixed at build time. Order matters: ties between rules are
// broken by position here, never by input order.
var ruleTable = []rule{
	{
		id:       "blocker_keyword",
		category: models.CategoryBlocker,
		factor:   "blocker_explicit",
		strength: 0.99,
		weight:   1.0,
		re:       regexp.MustCompile(`(?i)\b(blocked|blocker|blocking|stuck on|waiting on)\b`),
	},
	{
		id:       "negative_outcome",
		category: models.CategoryBlocker,
		factor:   "blocker_implicit",
		strength: 0.90,
		weight:   0.9,
		re:       regexp.MustCompile(`(?i)\b(refused|rejected|declined|pushed back|fell through|at risk)\b`),
	},
	{
		id:       "decision_keyword",
		category: models.CategoryDecision,
		factor:   "decision_explicit",
		strength: 0.95,
		weight:   1.0,
		re:       regexp.MustCompile(`(?i)\b(decided|decision|agreed|finalized|chose|going with|settled on)\b`),
	},
	{
		id:       "follow_up_with_person",
		category: models.CategoryFollowUp,
		factor:   "person_mentioned",
		strength: 0.95,
		weight:   0.9,
		re:       regexp.MustCompile(`(?i)\b(follow(?:ing)? up|ping|check in|circle back)\b.{0,40}\b(with|on)\b`),
	},
	{
		id:       "follow_up_keyword",
		category: models.CategoryFollowUp,
		factor:   "explicit_action",
		strength: 0.90,
		weight:   0.8,
		re:       regexp.MustCompile(`(?i)\b(follow(?:ing)? up|ping|circle back|check in|nudge)\b`),
	},
	{
		id:       "pending_review",
		category: models.CategoryFollowUp,
		factor:   "pending_review",
		strength: 0.85,
		weight:   0.8,
		re:       regexp.MustCompile(`(?i)\b(pending|awaiting|waiting for)\b.{0,40}\b(review|approval|sign-?off|feedback|response)\b`),
	},
	{
		id:       "meeting_reference",
		category: models.CategoryMeeting,
		factor:   "meeting_reference",
		strength: 0.80,
		weight:   0.8,
		re:       regexp.MustCompile(`(?i)\b(meeting|standup|stand-up|1:1|sync|kickoff|workshop|retro|demo with)\b`),
	},
	{
		id:       "writing_task",
		category: models.CategoryWriting,
		factor:   "document_reference",
		strength: 0.78,
		weight:   0.7,
		re:       regexp.MustCompile(`(?i)\b(draft|write up|writeup|one-pager|memo|spec|prd|doc|docs|documentation)\b`),
	},
	{
		id:       "ticket_reference",
		category: models.CategoryActionItem,
		factor:   "ticket_reference",
		strength: 0.98,
		weight:   0.6,
		re:       regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`),
	},
	{
		id:       "action_verb",
		category: models.CategoryActionItem,
		factor:   "explicit_action",
		strength: 0.85,
		weight:   0.9,
		re:       regexp.MustCompile(`(?i)\b(need(?:s)? to|must|have to|update|create|send|schedule|fix|finish|complete|set up|submit|prepare|review|research|investigate)\b`),
	},
}
