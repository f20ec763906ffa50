// Package service implements the configuration operations on top of a
// document store and the component registry.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/eltrade/mnconfig/internal/logging"
	"github.com/eltrade/mnconfig/internal/registry"
	"github.com/eltrade/mnconfig/internal/resolve"
	"github.com/eltrade/mnconfig/internal/store"
)

// Defaults applied when a request leaves a field empty
const (
	DefaultTenant   = "default"
	DefaultEnv      = "dev"
	DefaultScopeKey = "*"
	DefaultAuthor   = "dev"
)

var (
	// ErrInvalidScope is returned for a scope type other than global, route or page
	ErrInvalidScope = errors.New("invalid scope type")
	// ErrInvalidValue is returned when a value is not a JSON object
	ErrInvalidValue = errors.New("value must be a JSON object")
	// ErrInvalidComponent is returned for an empty component key
	ErrInvalidComponent = errors.New("component key is required")
)

// ValidationError carries the schema violations of a rejected value
type ValidationError struct {
	ComponentKey string
	Details      []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("value for %s failed schema validation: %s", e.ComponentKey, strings.Join(e.Details, "; "))
}

// Query selects the context an effective configuration is computed for
type Query struct {
	Tenant string `schema:"tenant"`
	Env    string `schema:"env"`
	Route  string `schema:"route"`
	Page   string `schema:"page"`
}

func (q Query) withDefaults() Query {
	if q.Tenant == "" {
		q.Tenant = DefaultTenant
	}
	if q.Env == "" {
		q.Env = DefaultEnv
	}
	return q
}

// UpsertRequest is a new version of one component scope
type UpsertRequest struct {
	Tenant    string      `json:"tenant,omitempty"`
	Env       string      `json:"env,omitempty"`
	ScopeType string      `json:"scopeType,omitempty"`
	ScopeKey  string      `json:"scopeKey,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
}

// Service is safe for concurrent use
type Service struct {
	store    store.Store
	registry *registry.Registry
	logger   *logging.Logger

	// writeMu makes version assignment and append one step
	writeMu sync.Mutex
	now     func() time.Time
}

// New creates a service
func New(st store.Store, reg *registry.Registry, logger *logging.Logger) *Service {
	return &Service{
		store:    st,
		registry: reg,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry returns the component registry in use
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// EffectiveAll returns the effective configuration of every component known
// to the registry or stored for the tenant and environment.
func (s *Service) EffectiveAll(ctx context.Context, q Query) (map[string]interface{}, error) {
	q = q.withDefaults()

	docs, err := s.store.List(ctx, store.Filter{Tenant: q.Tenant, Env: q.Env})
	if err != nil {
		return nil, errors.Wrapf(err, "error listing documents for %s/%s", q.Tenant, q.Env)
	}

	byComponent := make(map[string][]store.Document)
	for _, d := range docs {
		byComponent[d.ComponentKey] = append(byComponent[d.ComponentKey], d)
	}
	for _, key := range s.registry.Keys() {
		if _, ok := byComponent[key]; !ok {
			byComponent[key] = nil
		}
	}

	out := make(map[string]interface{}, len(byComponent))
	for key, componentDocs := range byComponent {
		out[key] = resolve.Effective(s.registry.Default(key), componentDocs, q.Route, q.Page)
	}
	return out, nil
}

// Effective returns the effective configuration of one component
func (s *Service) Effective(ctx context.Context, componentKey string, q Query) (interface{}, error) {
	if componentKey == "" {
		return nil, ErrInvalidComponent
	}
	q = q.withDefaults()

	docs, err := s.store.List(ctx, store.Filter{Tenant: q.Tenant, Env: q.Env, ComponentKey: componentKey})
	if err != nil {
		return nil, errors.Wrapf(err, "error listing documents for %s", componentKey)
	}
	return resolve.Effective(s.registry.Default(componentKey), docs, q.Route, q.Page), nil
}

// History returns every stored version of a component ordered by scope type,
// scope key and version.
func (s *Service) History(ctx context.Context, componentKey, tenant, env string) ([]store.Document, error) {
	if componentKey == "" {
		return nil, ErrInvalidComponent
	}
	q := Query{Tenant: tenant, Env: env}.withDefaults()

	docs, err := s.store.List(ctx, store.Filter{Tenant: q.Tenant, Env: q.Env, ComponentKey: componentKey})
	if err != nil {
		return nil, errors.Wrapf(err, "error listing history for %s", componentKey)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.ScopeType != b.ScopeType {
			return a.ScopeType < b.ScopeType
		}
		if a.ScopeKey != b.ScopeKey {
			return a.ScopeKey < b.ScopeKey
		}
		return a.Version < b.Version
	})
	return docs, nil
}

// Upsert appends a new version for the component scope described by req and
// returns the version number assigned.
func (s *Service) Upsert(ctx context.Context, componentKey string, req UpsertRequest) (int, error) {
	if componentKey == "" {
		return 0, ErrInvalidComponent
	}

	q := Query{Tenant: req.Tenant, Env: req.Env}.withDefaults()
	scopeType := req.ScopeType
	if scopeType == "" {
		scopeType = store.ScopeGlobal
	}
	if !store.ValidScope(scopeType) {
		return 0, errors.Wrapf(ErrInvalidScope, "%q", scopeType)
	}
	scopeKey := req.ScopeKey
	if scopeKey == "" {
		scopeKey = DefaultScopeKey
	}
	author := req.UpdatedBy
	if author == "" {
		author = DefaultAuthor
	}

	var value map[string]interface{}
	switch v := req.Value.(type) {
	case nil:
		value = map[string]interface{}{}
	case map[string]interface{}:
		value = v
	default:
		return 0, errors.Wrapf(ErrInvalidValue, "got %T", req.Value)
	}

	if details := s.registry.Validate(componentKey, value); len(details) > 0 {
		return 0, &ValidationError{ComponentKey: componentKey, Details: details}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.store.List(ctx, store.Filter{
		Tenant:       q.Tenant,
		Env:          q.Env,
		ComponentKey: componentKey,
		ScopeType:    scopeType,
		ScopeKey:     scopeKey,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "error reading versions of %s", componentKey)
	}
	next := 1
	for _, d := range existing {
		if d.Version >= next {
			next = d.Version + 1
		}
	}

	doc := store.Document{
		Tenant:       q.Tenant,
		Env:          q.Env,
		ComponentKey: componentKey,
		ScopeType:    scopeType,
		ScopeKey:     scopeKey,
		Version:      next,
		Value:        value,
		CreatedAt:    store.Timestamp(s.now()),
		CreatedBy:    author,
	}
	if err := s.store.Append(ctx, doc); err != nil {
		return 0, errors.Wrapf(err, "error storing %s v%d", componentKey, next)
	}

	s.logger.Audit(q.Tenant, "upsert env=%s component=%s scope=%s:%s version=%d by=%s",
		q.Env, componentKey, scopeType, scopeKey, next, author)
	return next, nil
}

// DeleteComponent removes every document of a component for the tenant and
// environment and returns how many were removed.
func (s *Service) DeleteComponent(ctx context.Context, componentKey, tenant, env string) (int, error) {
	if componentKey == "" {
		return 0, ErrInvalidComponent
	}
	q := Query{Tenant: tenant, Env: env}.withDefaults()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.store.Delete(ctx, store.Filter{Tenant: q.Tenant, Env: q.Env, ComponentKey: componentKey})
	if err != nil {
		return 0, errors.Wrapf(err, "error deleting %s", componentKey)
	}
	s.logger.Audit(q.Tenant, "delete env=%s component=%s removed=%d", q.Env, componentKey, n)
	return n, nil
}

// Clear removes every stored document
func (s *Service) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "error clearing store")
	}
	s.logger.Warning("All configuration documents cleared")
	return nil
}
