package model

import (
	"encoding/json"
	"slices"
)

// Descriptor is the static capability document of a converter.
// It is read-only after construction: accessors hand out copies.
type Descriptor struct {
	id          string
	name        string
	description string
	category    string
	from        []string
	to          []string
	strategies  []Strategy
}

// DescriptorSpec is the input to NewDescriptor.
type DescriptorSpec struct {
	ID          string
	Name        string
	Description string
	// Category names the kind of input, e.g. "image" or "document".
	Category   string
	From       []string
	To         []string
	Strategies []Strategy
}

// NewDescriptor builds an immutable descriptor. Formats are normalized.
func NewDescriptor(spec DescriptorSpec) Descriptor {
	normalize := func(formats []string) []string {
		out := make([]string, 0, len(formats))
		for _, f := range formats {
			n := NormalizeFormat(f)
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
		return out
	}
	return Descriptor{
		id:          spec.ID,
		name:        spec.Name,
		description: spec.Description,
		category:    spec.Category,
		from:        normalize(spec.From),
		to:          normalize(spec.To),
		strategies:  slices.Clone(spec.Strategies),
	}
}

func (d Descriptor) ID() string          { return d.id }
func (d Descriptor) Name() string        { return d.name }
func (d Descriptor) Description() string { return d.description }
func (d Descriptor) Category() string    { return d.category }
func (d Descriptor) From() []string      { return slices.Clone(d.from) }
func (d Descriptor) To() []string        { return slices.Clone(d.to) }

// Strategies returns the strategies in declaration order.
func (d Descriptor) Strategies() []Strategy { return slices.Clone(d.strategies) }

// StrategyIDs returns strategy identifiers in declaration order.
func (d Descriptor) StrategyIDs() []string {
	ids := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		ids[i] = s.ID
	}
	return ids
}

// PlannableIDs returns the ids of implemented strategies in declaration order.
func (d Descriptor) PlannableIDs() []string {
	var ids []string
	for _, s := range d.strategies {
		if !s.Stub {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Strategy looks up a strategy by id.
func (d Descriptor) Strategy(id string) (Strategy, bool) {
	for _, s := range d.strategies {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}

// HasStrategy reports whether id is declared.
func (d Descriptor) HasStrategy(id string) bool {
	_, ok := d.Strategy(id)
	return ok
}

// Accepts reports whether format is a declared input format.
func (d Descriptor) Accepts(format string) bool {
	return slices.Contains(d.from, NormalizeFormat(format))
}

// Produces reports whether format is a declared output format.
func (d Descriptor) Produces(format string) bool {
	return slices.Contains(d.to, NormalizeFormat(format))
}

// Modes returns the distinct execution modes of the declared strategies.
func (d Descriptor) Modes() []Mode {
	var modes []Mode
	for _, s := range d.strategies {
		if !slices.Contains(modes, s.Mode) {
			modes = append(modes, s.Mode)
		}
	}
	return modes
}

// MarshalJSON renders the descriptor for listings and reports.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string     `json:"id"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Category    string     `json:"category,omitempty"`
		From        []string   `json:"from"`
		To          []string   `json:"to"`
		Modes       []Mode     `json:"modes"`
		Strategies  []Strategy `json:"strategies"`
	}{d.id, d.name, d.description, d.category, d.from, d.to, d.Modes(), d.strategies})
}
