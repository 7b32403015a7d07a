package models

import (
	"regexp"
	"strings"
)

// Category identifies a task category. The default set is closed; users
// may extend it through configuration up to MaxCategories total.
type Category string

// Built-in categories, in classifier priority order.
const (
	CategoryActionItem Category = "action_item"
	CategoryFollowUp   Category = "follow_up"
	CategoryMeeting    Category = "meeting"
	CategoryDecision   Category = "decision"
	CategoryWriting    Category = "writing"
	CategoryBlocker    Category = "blocker"
	CategoryWhatNext   Category = "what_next"
)

// MaxCategories bounds the total category count (defaults plus extensions).
const MaxCategories = 12

// CategoryConfig describes one category in the active set.
type CategoryConfig struct {
	ID        Category `json:"id" yaml:"id"`
	Label     string   `json:"label" yaml:"label"`
	IsDefault bool     `json:"is_default" yaml:"-"`
}

// DefaultCategories returns the built-in category set in display order.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{ID: CategoryActionItem, Label: "Action Item", IsDefault: true},
		{ID: CategoryFollowUp, Label: "Follow-up", IsDefault: true},
		{ID: CategoryMeeting, Label: "Meeting", IsDefault: true},
		{ID: CategoryDecision, Label: "Decision", IsDefault: true},
		{ID: CategoryWriting, Label: "Writing", IsDefault: true},
		{ID: CategoryBlocker, Label: "Blocker", IsDefault: true},
		{ID: CategoryWhatNext, Label: "What Next", IsDefault: true},
	}
}

var categorySlugRe = regexp.MustCompile(`[^a-z0-9_]`)

// CategorySlug derives a category ID from a human label, matching how
// user-defined categories are registered ("Customer Calls" -> customer_calls).
func CategorySlug(label string) Category {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = strings.Join(strings.Fields(slug), "_")
	slug = categorySlugRe.ReplaceAllString(slug, "")
	return Category(slug)
}

// CategorySet is the read-only category configuration handed to the
// classifier and item builder at pipeline-invocation time.
type CategorySet struct {
	configs []CategoryConfig
	byID    map[Category]CategoryConfig
}

// NewCategorySet builds a set from the defaults plus custom extensions.
// Duplicates and entries beyond MaxCategories are dropped.
func NewCategorySet(custom ...CategoryConfig) *CategorySet {
	s := &CategorySet{byID: make(map[Category]CategoryConfig)}
	for _, c := range DefaultCategories() {
		s.add(c)
	}
	for _, c := range custom {
		if c.ID == "" {
			c.ID = CategorySlug(c.Label)
		}
		c.IsDefault = false
		s.add(c)
	}
	return s
}

func (s *CategorySet) add(c CategoryConfig) {
	if c.ID == "" || len(s.configs) >= MaxCategories {
		return
	}
	if _, dup := s.byID[c.ID]; dup {
		return
	}
	s.byID[c.ID] = c
	s.configs = append(s.configs, c)
}

// Contains reports whether id belongs to the active set.
func (s *CategorySet) Contains(id Category) bool {
	_, ok := s.byID[id]
	return ok
}

// Label returns the display label for id, or the raw id if unknown.
func (s *CategorySet) Label(id Category) string {
	if c, ok := s.byID[id]; ok {
		return c.Label
	}
	return string(id)
}

// All returns the configs in registration order.
func (s *CategorySet) All() []CategoryConfig {
	out := make([]CategoryConfig, len(s.configs))
	copy(out, s.configs)
	return out
}
