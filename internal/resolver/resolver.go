// Package resolver defines the resolution contract shared by all DID
// methods and the dispatcher that routes a DID string to the matching
// method resolver or to the local registry.
package resolver

import (
	"context"
	"strings"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
	"github.com/RegistryAccord/registryaccord-did-go/internal/storage"
)

// Resolver resolves one DID method. Resolution outcomes, including
// failures like notFound or timeout, are encoded in the result; the
// returned error is reserved for infrastructure faults (a storage backend
// going away) and is nil for every pure resolver.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error)
}

// Method extracts the method token from a DID string. Returns "" when the
// string does not match did:<method>:<method-specific-id> with a non-empty
// method and id.
func Method(did string) string {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return ""
	}
	return parts[1]
}

// Dispatcher routes an incoming DID string by its method segment. Methods
// with a registered external resolver go there; everything else falls
// through to the registry, whose notFound result also covers methods the
// service does not support.
type Dispatcher struct {
	registry  storage.Registry
	resolvers map[string]Resolver
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry storage.Registry) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		resolvers: make(map[string]Resolver),
	}
}

// RegisterMethod wires an external resolver for one method token, e.g.
// "web". Registering a method twice replaces the earlier resolver.
func (d *Dispatcher) RegisterMethod(method string, r Resolver) {
	d.resolvers[method] = r
}

// Resolve inspects the method token and forwards to the matching resolver
// or the registry. A string that is not a well-formed DID yields an
// invalidDid result without touching any resolver.
func (d *Dispatcher) Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error) {
	method := Method(did)
	if method == "" {
		return model.ErrorResult(model.ErrorInvalidDID, "not a valid DID: "+did), nil
	}
	if r, ok := d.resolvers[method]; ok {
		return r.Resolve(ctx, did)
	}
	return d.registry.Resolve(ctx, did)
}
