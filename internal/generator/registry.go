package generator

import "fmt"

// Registry resolves a routed Provider to its concrete Generator. It stores
// the generators exactly as given and adds no circuit breaker of its own;
// breaker wrapping (internal/generator/breaker.go) is done by the caller.
type Registry struct {
	generators map[Provider]Generator
}

// NewRegistry builds a Registry from a {provider -> Generator} map. Callers
// typically wrap each entry in NewCircuitBreakerGenerator before passing it
// in here.
func NewRegistry(generators map[Provider]Generator) *Registry {
	return &Registry{generators: generators}
}

// Get returns the Generator for route.Provider.
func (r *Registry) Get(route Route) (Generator, error) {
	g, ok := r.generators[route.Provider]
	if !ok {
		return nil, fmt.Errorf("no generator registered for provider %q", route.Provider)
	}
	return g, nil
}

// ProviderFor returns the provider name a route resolves to, for callers
// (the admission service) that only need the name to key a concurrency
// pool and must not import a concrete Generator implementation.
func (r *Registry) ProviderFor(route Route) string {
	return string(route.Provider)
}
