package lint

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a rule from a validated definition. It decodes and
// validates the family-specific settings; an error aborts rule loading.
type Constructor func(def Definition) (Rule, error)

// Family is a set of interchangeable rule implementations sharing a majorId
// (or majorId prefix).
type Family struct {
	// MajorID is the exact major segment, or a prefix when Prefix is set
	MajorID string

	// Prefix makes the family also match "<MajorID>-<anything>"
	Prefix bool

	// Description explains what the family checks
	Description string

	// Resolution is curated conflict guidance naming the family's variants
	Resolution string

	New Constructor
}

// globalRegistry is the registry family packages add themselves to from init().
var globalRegistry = NewRegistry()

// Registry maps majorIds to rule families.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family // keyed by MajorID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return globalRegistry
}

// Register adds a family to the global registry. Call it from init().
// Panics on duplicate or malformed families.
func Register(f Family) {
	if err := globalRegistry.Register(f); err != nil {
		panic(err)
	}
}

// Register adds a family.
func (r *Registry) Register(f Family) error {
	if f.MajorID == "" {
		return fmt.Errorf("family major id is required")
	}
	if f.New == nil {
		return fmt.Errorf("family %q has no constructor", f.MajorID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.families[f.MajorID]; exists {
		return fmt.Errorf("family %q already registered", f.MajorID)
	}
	r.families[f.MajorID] = f
	return nil
}

// Resolve finds the family for a majorId: an exact match first, then the
// longest prefix family such that majorId starts with "<prefix>-".
func (r *Registry) Resolve(majorID string) (Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.families[majorID]; ok {
		return f, true
	}

	var best Family
	found := false
	for _, f := range r.families {
		if !f.Prefix || !strings.HasPrefix(majorID, f.MajorID+"-") {
			continue
		}
		if !found || len(f.MajorID) > len(best.MajorID) {
			best, found = f, true
		}
	}
	return best, found
}

// Build constructs a rule for the definition. Unrecognized majorIds fall
// back to a placeholder rule rather than failing.
func (r *Registry) Build(def Definition) (Rule, error) {
	f, ok := r.Resolve(def.ID.Major)
	if !ok {
		return NewPlaceholder(def), nil
	}
	rule, err := f.New(def)
	if err != nil {
		return nil, fmt.Errorf("family %s: %w", f.MajorID, err)
	}
	return rule, nil
}

// Resolution returns curated conflict guidance for a majorId, if any.
func (r *Registry) Resolution(majorID string) (string, bool) {
	f, ok := r.Resolve(majorID)
	if !ok || f.Resolution == "" {
		return "", false
	}
	return f.Resolution, true
}

// Families returns all registered families sorted by MajorID.
func (r *Registry) Families() []Family {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Family, 0, len(r.families))
	for _, f := range r.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MajorID < out[j].MajorID })
	return out
}

// Count returns the number of registered families.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.families)
}
