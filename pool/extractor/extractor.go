package extractor

import (
	"context"
	"fmt"
	"sort"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// Extractor retrieves candidate endpoints from one external source. An
// implementation is responsible for fetching and parsing only; it never
// validates what it finds.
type Extractor interface {
	// Extract fetches the source and returns the endpoints it lists.
	Extract(ctx context.Context) ([]*model.Endpoint, error)

	// Name returns the source name, used for logging and stats.
	Name() string
}

// Factory builds an Extractor from a source profile.
type Factory func(profile *types.SourceProfile) (Extractor, error)

// Registry maps extraction strategy names to factories. It is an explicit
// object handed to the coordinator at construction, so tests can run
// several registries side by side.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("plaintext", NewPlaintextExtractor)
	r.Register("htmltable", NewHTMLTableExtractor)
	r.Register("jsonapi", NewJSONAPIExtractor)
	return r
}

// Register binds a strategy name to a factory, replacing any previous
// binding for the same name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the extractor selected by the profile's Extractor field.
func (r *Registry) New(profile *types.SourceProfile) (Extractor, error) {
	f, ok := r.factories[profile.Extractor]
	if !ok {
		return nil, fmt.Errorf("unknown extractor strategy %q for source %q", profile.Extractor, profile.Name)
	}
	return f(profile)
}

// Strategies returns the registered strategy names, sorted.
func (r *Registry) Strategies() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
