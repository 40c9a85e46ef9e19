// Package taxonomy is the static catalog of every event the broadcast engine knows.
//
// The catalog is built once from the table in events.go and never mutated. Unknown
// event ids are not an error: callers fall back to the system category, info severity
// and a humanized message.
package taxonomy

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"brigade/internal/broadcast/models"
)

// Category owns the presentation attributes of a group of events.
type Category struct {
	ID    models.CategoryID
	Label string
	Icon  string
	Color string
}

// SeverityRule computes an event's default severity from its details.
// Most events use Fixed; a few derive severity from what happened.
type SeverityRule func(details map[string]any) models.Severity

// Fixed returns a SeverityRule that always yields s.
func Fixed(s models.Severity) SeverityRule {
	return func(map[string]any) models.Severity { return s }
}

// MessageTemplate renders the human message of an event. It returns "" when a
// detail it needs is missing, which sends the caller to the humanized fallback.
type MessageTemplate func(details map[string]any) string

// ToastMode says how an event behaves on the in-app surface.
type ToastMode int

const (
	// ToastDefault shows the toast with the severity's standard duration.
	ToastDefault ToastMode = iota
	// ToastSilent records and routes the event but never shows a toast.
	ToastSilent
	// ToastCustom shows the toast with an event-specific duration.
	ToastCustom
)

// ToastRule is the in-app presentation rule of an event.
type ToastRule struct {
	Mode     ToastMode
	Duration time.Duration
}

// Silent is the ToastRule for events that never toast.
func Silent() ToastRule { return ToastRule{Mode: ToastSilent} }

// CustomToast is the ToastRule for events shown for a specific duration.
func CustomToast(d time.Duration) ToastRule { return ToastRule{Mode: ToastCustom, Duration: d} }

// EventDefinition describes one known event type.
type EventDefinition struct {
	ID                   string
	Category             models.CategoryID
	Label                string
	DefaultChannels      []models.Channel
	DefaultAudience      int
	NotifyAffectedPerson bool
	Severity             SeverityRule
	Message              MessageTemplate
	Toast                ToastRule
}

// SeverityFor resolves the definition's default severity for the given details.
// The second result is false when the definition carries no severity.
func (d EventDefinition) SeverityFor(details map[string]any) (models.Severity, bool) {
	if d.Severity == nil {
		return "", false
	}
	s := d.Severity(details)
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

// RenderMessage applies the definition's template, returning "" when there is none
// or the template could not be filled.
func (d EventDefinition) RenderMessage(details map[string]any) string {
	if d.Message == nil {
		return ""
	}
	return d.Message(details)
}

// DefaultRule is the broadcast rule applied when an organization has no override.
func (d EventDefinition) DefaultRule() models.Rule {
	return models.Rule{
		Enabled:          true,
		Channels:         slices.Clone(d.DefaultChannels),
		MinAudienceLevel: d.DefaultAudience,
	}
}

func (d EventDefinition) clone() EventDefinition {
	d.DefaultChannels = slices.Clone(d.DefaultChannels)
	return d
}

// Registry is an immutable index over categories and event definitions.
type Registry struct {
	categories  []Category
	categoryIdx map[models.CategoryID]int
	definitions []EventDefinition
	byID        map[string]int
}

// New validates and indexes a catalog. Duplicate ids, unknown categories and invalid
// channels are rejected.
func New(categories []Category, definitions []EventDefinition) (*Registry, error) {
	r := &Registry{
		categories:  slices.Clone(categories),
		categoryIdx: make(map[models.CategoryID]int, len(categories)),
		byID:        make(map[string]int, len(definitions)),
	}
	for i, c := range categories {
		if _, dup := r.categoryIdx[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.ID)
		}
		r.categoryIdx[c.ID] = i
	}
	for _, d := range definitions {
		if d.ID == "" {
			return nil, fmt.Errorf("event definition without id in category %q", d.Category)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate event %q", d.ID)
		}
		if _, ok := r.categoryIdx[d.Category]; !ok {
			return nil, fmt.Errorf("event %q references unknown category %q", d.ID, d.Category)
		}
		for _, ch := range d.DefaultChannels {
			if !ch.IsValid() {
				return nil, fmt.Errorf("event %q has unknown channel %q", d.ID, ch)
			}
		}
		r.byID[d.ID] = len(r.definitions)
		r.definitions = append(r.definitions, d.clone())
	}
	return r, nil
}

var standard = sync.OnceValue(func() *Registry {
	r, err := New(standardCategories, standardEvents)
	if err != nil {
		panic("taxonomy: " + err.Error())
	}
	return r
})

// Standard returns the registry built from the compiled-in catalog.
func Standard() *Registry {
	return standard()
}

// Definition returns the definition of eventID.
func (r *Registry) Definition(eventID string) (EventDefinition, bool) {
	i, ok := r.byID[eventID]
	if !ok {
		return EventDefinition{}, false
	}
	return r.definitions[i].clone(), true
}

// ModuleEvents returns the definitions of a category in registration order.
func (r *Registry) ModuleEvents(category models.CategoryID) []EventDefinition {
	var out []EventDefinition
	for _, d := range r.definitions {
		if d.Category == category {
			out = append(out, d.clone())
		}
	}
	return out
}

// AllEventIDs returns every registered event id in registration order.
func (r *Registry) AllEventIDs() []string {
	ids := make([]string, len(r.definitions))
	for i, d := range r.definitions {
		ids[i] = d.ID
	}
	return ids
}

// Categories returns the registered categories in display order.
func (r *Registry) Categories() []Category {
	return slices.Clone(r.categories)
}

// Category returns the presentation attributes of a category.
func (r *Registry) Category(id models.CategoryID) (Category, bool) {
	i, ok := r.categoryIdx[id]
	if !ok {
		return Category{}, false
	}
	return r.categories[i], true
}

// DefaultBroadcastConfig returns every event enabled with its default channels and audience.
func (r *Registry) DefaultBroadcastConfig() map[string]models.Rule {
	out := make(map[string]models.Rule, len(r.definitions))
	for _, d := range r.definitions {
		out[d.ID] = d.DefaultRule()
	}
	return out
}
