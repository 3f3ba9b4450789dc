// Package middleware provides HTTP middleware for horcruxd's API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/horcrux-project/horcrux/internal/logger"
)

// ResourceResolver is implemented by managers that support lookup by ID, name, or prefix.
type ResourceResolver interface {
	// Resolve looks up a resource by ID, name, or ID prefix.
	// Returns the resolved ID, the resource, and any error.
	// Should return ErrNotFound if not found, ErrAmbiguousName if prefix matches multiple.
	Resolve(ctx context.Context, idOrName string) (id string, resource any, err error)
}

// resolvedResourceKey is the context key for storing the resolved resource.
type resolvedResourceKey struct{ resourceType string }

// ResolvedResource holds the resolved resource ID and value.
type ResolvedResource struct {
	ID       string
	Resource any
}

// Resolvers holds resolvers for each top-level resource type (§6).
type Resolvers struct {
	VM        ResourceResolver
	Volume    ResourceResolver
	Pool      ResourceResolver
	Container ResourceResolver
}

// ErrorResponder handles resolver errors by writing HTTP responses.
type ErrorResponder func(w http.ResponseWriter, err error, lookup string)

// ResolveResource creates middleware that resolves resource IDs before handlers run.
// It detects the resource type from the URL path and uses the appropriate resolver.
// The resolved resource is stored in context and the logger is enriched with the ID.
//
// Supported paths:
//   - /vms/{id}/*        -> uses VM resolver
//   - /volumes/{id}/*    -> uses Volume resolver
//   - /pools/{id}/*      -> uses Pool resolver
//   - /containers/{id}/* -> uses Container resolver
func ResolveResource(resolvers Resolvers, errResponder ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			path := r.URL.Path

			var resolver ResourceResolver
			var resourceType string

			switch {
			case strings.HasPrefix(path, "/vms/"):
				resolver = resolvers.VM
				resourceType = "vm"
			case strings.HasPrefix(path, "/volumes/"):
				resolver = resolvers.Volume
				resourceType = "volume"
			case strings.HasPrefix(path, "/pools/"):
				resolver = resolvers.Pool
				resourceType = "pool"
			case strings.HasPrefix(path, "/containers/"):
				resolver = resolvers.Container
				resourceType = "container"
			default:
				// No resource to resolve (e.g., list endpoints, health)
				next.ServeHTTP(w, r)
				return
			}

			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			idOrName := chi.URLParam(r, "id")
			if idOrName == "" {
				// No ID in path (e.g., list or create endpoint)
				next.ServeHTTP(w, r)
				return
			}

			resolvedID, resource, err := resolver.Resolve(ctx, idOrName)
			if err != nil {
				errResponder(w, err, idOrName)
				return
			}

			ctx = context.WithValue(ctx, resolvedResourceKey{resourceType}, ResolvedResource{
				ID:       resolvedID,
				Resource: resource,
			})

			log := logger.FromContext(ctx).With(resourceType+"_id", resolvedID)
			ctx = logger.AddToContext(ctx, log)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetResolvedVM retrieves the resolved VM from context.
// Returns nil if not found or wrong type.
func GetResolvedVM[T any](ctx context.Context) *T {
	return getResolved[T](ctx, "vm")
}

// GetResolvedVolume retrieves the resolved volume from context.
// Returns nil if not found or wrong type.
func GetResolvedVolume[T any](ctx context.Context) *T {
	return getResolved[T](ctx, "volume")
}

// GetResolvedPool retrieves the resolved storage pool from context.
// Returns nil if not found or wrong type.
func GetResolvedPool[T any](ctx context.Context) *T {
	return getResolved[T](ctx, "pool")
}

// GetResolvedContainer retrieves the resolved container from context.
// Returns nil if not found or wrong type.
func GetResolvedContainer[T any](ctx context.Context) *T {
	return getResolved[T](ctx, "container")
}

// GetResolvedID retrieves just the resolved ID for a resource type.
func GetResolvedID(ctx context.Context, resourceType string) string {
	if resolved, ok := ctx.Value(resolvedResourceKey{resourceType}).(ResolvedResource); ok {
		return resolved.ID
	}
	return ""
}

// getResolved is a generic helper to extract typed resources from context.
func getResolved[T any](ctx context.Context, resourceType string) *T {
	resolved, ok := ctx.Value(resolvedResourceKey{resourceType}).(ResolvedResource)
	if !ok {
		return nil
	}

	if typed, ok := resolved.Resource.(*T); ok {
		return typed
	}

	if typed, ok := resolved.Resource.(T); ok {
		return &typed
	}

	return nil
}

// Test helpers for setting resolved resources in context (used by tests).

// WithResolvedVM returns a context with the given VM set as resolved.
func WithResolvedVM(ctx context.Context, id string, vm any) context.Context {
	return context.WithValue(ctx, resolvedResourceKey{"vm"}, ResolvedResource{ID: id, Resource: vm})
}

// WithResolvedVolume returns a context with the given volume set as resolved.
func WithResolvedVolume(ctx context.Context, id string, vol any) context.Context {
	return context.WithValue(ctx, resolvedResourceKey{"volume"}, ResolvedResource{ID: id, Resource: vol})
}

// WithResolvedPool returns a context with the given storage pool set as resolved.
func WithResolvedPool(ctx context.Context, id string, pool any) context.Context {
	return context.WithValue(ctx, resolvedResourceKey{"pool"}, ResolvedResource{ID: id, Resource: pool})
}

// WithResolvedContainer returns a context with the given container set as resolved.
func WithResolvedContainer(ctx context.Context, id string, c any) context.Context {
	return context.WithValue(ctx, resolvedResourceKey{"container"}, ResolvedResource{ID: id, Resource: c})
}
