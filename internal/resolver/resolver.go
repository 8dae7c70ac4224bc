package resolver

import (
	"context"
	"fmt"
)

// Resolver turns a source page URL into a direct media URL. An empty result
// with a nil error means the service had nothing for this URL.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, sourceURL string) (string, error)
}

type funcResolver struct {
	name string
	fn   func(ctx context.Context, sourceURL string) (string, error)
}

// Func adapts a plain function into a named Resolver.
func Func(name string, fn func(ctx context.Context, sourceURL string) (string, error)) Resolver {
	return funcResolver{name: name, fn: fn}
}

func (f funcResolver) Name() string { return f.name }

func (f funcResolver) Resolve(ctx context.Context, sourceURL string) (string, error) {
	return f.fn(ctx, sourceURL)
}

// Registry keeps a mapping from resolver names to their implementations.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: map[string]Resolver{}}
}

// Register adds or replaces a resolver implementation.
func (r *Registry) Register(resolver Resolver) {
	if r.resolvers == nil {
		r.resolvers = map[string]Resolver{}
	}
	r.resolvers[resolver.Name()] = resolver
}

// Resolve returns a resolver by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Resolver, error) {
	if resolver, ok := r.resolvers[name]; ok {
		return resolver, nil
	}
	return nil, fmt.Errorf("resolver %s is not registered", name)
}

// Ordered resolves every name in priority order.
func (r *Registry) Ordered(names []string) ([]Resolver, error) {
	ordered := make([]Resolver, 0, len(names))
	for _, name := range names {
		resolver, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, resolver)
	}
	return ordered, nil
}
