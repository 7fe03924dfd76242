// Package integration dispatches from an integration-type tag to the
// concrete external provider implementation. New providers register at
// startup; call sites never switch on the tag themselves.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/secretlify/cryptly/pkg/model"
)

// ErrUnsupportedIntegrationType is returned for tags no provider is
// registered under. Distinct from a generic error so clients can map it to
// a 4xx response.
var ErrUnsupportedIntegrationType = errors.New("unsupported integration type")

// ErrIntegrationNotFound is returned when a project has no linked
// integration of the requested kind.
var ErrIntegrationNotFound = errors.New("integration not found")

// Provider links a project to an external repository's secret store.
type Provider interface {
	Type() model.IntegrationType
	Create(ctx context.Context, projectID model.ProjectID, repositoryID int64) (model.Integration, error)
}

// Registry maps integration-type tags to their provider singletons. It is
// populated at startup and read-mostly afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[model.IntegrationType]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.IntegrationType]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

// Provider looks up the implementation for a tag.
func (r *Registry) Provider(t model.IntegrationType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIntegrationType, t)
	}
	return p, nil
}

// CreateIntegration dispatches creation to the provider registered for the
// tag.
func (r *Registry) CreateIntegration(ctx context.Context, t model.IntegrationType, projectID model.ProjectID, repositoryID int64) (model.Integration, error) {
	p, err := r.Provider(t)
	if err != nil {
		return model.Integration{}, err
	}
	return p.Create(ctx, projectID, repositoryID)
}
