package models

import "time"

// RiskLevel flags a candidate that reads like a blocker or risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ItemStatus is the review status of a candidate item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemAccepted ItemStatus = "accepted"
	ItemDeleted  ItemStatus = "deleted"
)

// Reasoning explains a classification: which rules matched, which keywords
// triggered them, and the named confidence factors. Factors are normalized
// contributions and sum to the overall score (before integer rounding).
type Reasoning struct {
	MatchedPatterns   []string           `json:"matched_patterns"`
	Keywords          []string           `json:"keywords"`
	ConfidenceFactors map[string]float64 `json:"confidence_factors"`
}

// ItemMetadata carries optional extracted attributes.
type ItemMetadata struct {
	Person    string    `json:"person,omitempty"`
	RiskLevel RiskLevel `json:"risk_level,omitempty"`
}

// EditRecord is one entry in a candidate's edit history.
type EditRecord struct {
	OriginalText string    `json:"original_text"`
	EditedText   string    `json:"edited_text"`
	EditedAt     time.Time `json:"edited_at"`
}

// CandidateItem is one extracted statement awaiting review.
type CandidateItem struct {
	ID           string       `json:"id"`
	SourceNoteID string       `json:"source_note_id"`
	Text         string       `json:"text"`
	Category     Category     `json:"category"`
	SourceSpan   SourceSpan   `json:"source_span"`
	Source       string       `json:"source"` // quoted snippet from the note
	Confidence   int          `json:"confidence"`
	Reasoning    Reasoning    `json:"reasoning"`
	Metadata     ItemMetadata `json:"metadata"`
	Status       ItemStatus   `json:"status"`
	EditHistory  []EditRecord `json:"edit_history,omitempty"`
}

// Clone returns a deep copy so buffered deletes and audit snapshots are
// insulated from later mutation.
func (c *CandidateItem) Clone() *CandidateItem {
	cp := *c
	cp.Reasoning.MatchedPatterns = append([]string(nil), c.Reasoning.MatchedPatterns...)
	cp.Reasoning.Keywords = append([]string(nil), c.Reasoning.Keywords...)
	if c.Reasoning.ConfidenceFactors != nil {
		cp.Reasoning.ConfidenceFactors = make(map[string]float64, len(c.Reasoning.ConfidenceFactors))
		for k, v := range c.Reasoning.ConfidenceFactors {
			cp.Reasoning.ConfidenceFactors[k] = v
		}
	}
	cp.EditHistory = append([]EditRecord(nil), c.EditHistory...)
	return &cp
}
