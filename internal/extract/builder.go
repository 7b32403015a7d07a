package extract

import (
	"github.com/google/uuid"

	"github.com/daybooklabs/daybook/pkg/models"
)

// Builder converts classified segments into candidate items. It validates
// the category against the active set and runs the metadata detectors.
// The source note is never mutated.
type Builder struct {
	categories *models.CategorySet
}

// NewBuilder creates a builder bound to the category set active at
// pipeline-invocation time.
func NewBuilder(categories *models.CategorySet) *Builder {
	return &Builder{categories: categories}
}

// Build produces one candidate item for a classified segment.
func (b *Builder) Build(noteID, rawText string, seg Segment, cls Classification) (*models.CandidateItem, error) {
	if !b.categories.Contains(cls.Category) {
		return nil, &models.ValidationError{Field: "category", Reason: "not in active category set"}
	}

	span := models.SourceSpan{Start: seg.Start, End: seg.End}
	item := &models.CandidateItem{
		ID:           uuid.NewString(),
		SourceNoteID: noteID,
		Text:         CanonicalText(seg.Text),
		Category:     cls.Category,
		SourceSpan:   span,
		Source:       span.Snippet(rawText),
		Confidence:   cls.Confidence,
		Reasoning:    cls.Reasoning,
		Status:       models.ItemPending,
	}
	if person := DetectPerson(seg.Text); person != "" {
		item.Metadata.Person = person
	}
	if risk := DetectRisk(seg.Text, cls.Category); risk != "" {
		item.Metadata.RiskLevel = risk
	}
	return item, nil
}
