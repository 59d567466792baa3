// Package registry binds handlers to catalog names and dispatches occurrences to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/metrics"
	"github.com/devblac/indexkit/internal/model"
	"github.com/devblac/indexkit/internal/payload"
	"github.com/devblac/indexkit/internal/resolver"
)

// ErrRegistrationClosed is returned by On once dispatching has started.
var ErrRegistrationClosed = errors.New("registration closed: dispatch has started")

// NameNotInCatalogError is returned when registering a name the catalog does not contain.
type NameNotInCatalogError struct {
	Name string
}

func (e *NameNotInCatalogError) Error() string {
	return fmt.Sprintf("event name %q is not in the catalog", e.Name)
}

// Handler processes one occurrence.
type Handler func(ctx context.Context, ev payload.Event, hc resolver.Context) error

// Registry maps catalog names to handlers.
type Registry struct {
	cat      *catalog.Catalog
	builder  *payload.Builder
	resolver *resolver.Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New builds an empty registry over a catalog.
func New(cat *catalog.Catalog, builder *payload.Builder, res *resolver.Resolver, opts ...Option) *Registry {
	r := &Registry{
		cat:      cat,
		builder:  builder,
		resolver: res,
		logger:   zap.NewNop(),
		handlers: map[string]Handler{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers h for name. A later registration for the same name replaces the earlier one.
func (r *Registry) On(name string, h Handler) error {
	if r.closed.Load() {
		return ErrRegistrationClosed
	}
	if !r.cat.Has(name) {
		return &NameNotInCatalogError{Name: name}
	}
	if h == nil {
		return fmt.Errorf("%s: nil handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.logger.Debug("handler replaced", zap.String("name", name))
	}
	r.handlers[name] = h
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether dispatching has started.
func (r *Registry) Closed() bool { return r.closed.Load() }

// Dispatch hands one occurrence of name to its handler. The occurrence chain is
// taken from occ.ChainID. Without a registered handler Dispatch does nothing.
func (r *Registry) Dispatch(ctx context.Context, name string, occ model.Occurrence) error {
	_, err := r.DispatchEvent(ctx, name, occ)
	return err
}

// DispatchEvent is Dispatch returning the payload the handler received, or nil
// when name has no handler.
func (r *Registry) DispatchEvent(ctx context.Context, name string, occ model.Occurrence) (payload.Event, error) {
	r.closed.Store(true)

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	entry, ok := r.cat.Lookup(name)
	if !ok {
		return nil, &NameNotInCatalogError{Name: name}
	}
	st, err := r.resolver.Static(name)
	if err != nil {
		return nil, err
	}
	hc, err := st.NarrowID(occ.ChainID)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", name, err)
	}

	ev, err := r.builder.Build(entry, hc.Chain, occ)
	if err != nil {
		r.metrics.PayloadError(entry.Kind.String())
		return nil, err
	}

	r.metrics.Dispatched(entry.Kind.String())
	if err := h(ctx, ev, hc); err != nil {
		r.metrics.HandlerError(entry.Kind.String())
		return nil, fmt.Errorf("handler %s: %w", name, err)
	}
	r.logger.Debug("dispatched", zap.String("name", name), zap.String("id", ev.EventID()), zap.String("chain", hc.Chain.Name))
	return ev, nil
}

// DispatchSetup fires every registered setup handler once per deployment chain,
// in catalog order.
func (r *Registry) DispatchSetup(ctx context.Context) error {
	for _, e := range r.cat.Entries() {
		if e.Kind != catalog.KindSetup {
			continue
		}
		for _, ch := range e.Source.Chains() {
			if err := r.Dispatch(ctx, e.Name, model.Occurrence{ChainID: ch.ID}); err != nil {
				return err
			}
		}
	}
	r.closed.Store(true)
	return nil
}
