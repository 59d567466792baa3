// Package engine runs config-declared routes: predicates, dedupe and sink delivery
// for catalog events.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/metrics"
	"github.com/devblac/indexkit/internal/payload"
	"github.com/devblac/indexkit/internal/registry"
	"github.com/devblac/indexkit/internal/resolver"
	"github.com/devblac/indexkit/internal/sink"
	"github.com/devblac/indexkit/internal/storage"
)

const (
	defaultDedupeKey = "{id}"
	defaultDedupeTTL = 24 * time.Hour
)

// Router turns routes into registry handlers, one per routed event name.
type Router struct {
	store   storage.RouteStore
	sinks   map[string]sink.Sender
	routes  map[string][]routeExec
	dryRun  bool
	nowFunc func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type routeExec struct {
	route config.Route
	preds []Predicate
	ttl   time.Duration
}

// NewRouter compiles routes. Event names are checked against the catalog by Register.
func NewRouter(store storage.RouteStore, routes []config.Route, sinks map[string]sink.Sender, dryRun bool, logger *zap.Logger, m *metrics.Metrics) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	byEvent := map[string][]routeExec{}
	for _, r := range routes {
		preds, err := CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("route %s predicates: %w", r.ID, err)
		}
		ttl := defaultDedupeTTL
		if r.Dedupe != nil && r.Dedupe.TTL != "" {
			d, err := time.ParseDuration(r.Dedupe.TTL)
			if err != nil {
				return nil, fmt.Errorf("route %s dedupe ttl: %w", r.ID, err)
			}
			ttl = d
		}
		byEvent[r.Event] = append(byEvent[r.Event], routeExec{route: r, preds: preds, ttl: ttl})
	}

	return &Router{
		store:   store,
		sinks:   sinks,
		routes:  byEvent,
		dryRun:  dryRun,
		nowFunc: time.Now,
		logger:  logger,
		metrics: m,
	}, nil
}

// Events returns the routed event names, sorted.
func (r *Router) Events() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Register binds one handler per routed event. A route naming an event outside
// the catalog fails with the registry's NameNotInCatalogError.
func (r *Router) Register(reg *registry.Registry) error {
	for _, name := range r.Events() {
		name := name
		err := reg.On(name, func(ctx context.Context, ev payload.Event, hc resolver.Context) error {
			return r.handleEvent(ctx, name, hc, ev)
		})
		if err != nil {
			return fmt.Errorf("route %s: %w", r.routes[name][0].route.ID, err)
		}
	}
	return nil
}

func (r *Router) handleEvent(ctx context.Context, name string, hc resolver.Context, ev payload.Event) error {
	fields := Fields(ev)
	for _, exec := range r.routes[name] {
		pass, err := allPredicates(exec.preds, fields)
		if err != nil || !pass {
			continue
		}
		routeID := exec.route.ID
		r.metrics.RouteMatched(routeID)

		if exec.route.Dedupe != nil {
			key := buildDedupeKey(routeID, exec.route.Dedupe.Key, name, hc, fields)
			now := r.nowFunc()
			isDup, err := r.store.IsDuplicate(ctx, key, now)
			if err != nil {
				return err
			}
			if isDup {
				r.metrics.RouteDropped(routeID)
				continue
			}
			if !r.dryRun {
				if err := r.store.MarkDedupe(ctx, key, now.Add(exec.ttl)); err != nil {
					return err
				}
			}
		}
		if r.dryRun {
			r.logger.Info("route matched (dry run)", zap.String("route", routeID), zap.String("name", name), zap.String("id", ev.EventID()))
			continue
		}

		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		match := storage.Match{
			ID:          routeID + ":" + ev.EventID(),
			RouteID:     routeID,
			EventID:     ev.EventID(),
			PayloadJSON: string(body),
			CreatedAt:   r.nowFunc(),
		}
		if err := r.store.InsertMatch(ctx, match); err != nil {
			r.logger.Warn("match already recorded", zap.String("route", routeID), zap.String("id", ev.EventID()), zap.Error(err))
			r.metrics.RouteDropped(routeID)
			continue
		}

		p := toSinkPayload(routeID, name, hc, ev, fields)
		for _, sinkID := range exec.route.Sinks {
			s := r.sinks[sinkID]
			if s == nil {
				continue
			}
			code, sendErr := s.Send(ctx, p)
			status := "ok"
			if sendErr != nil {
				status = "error"
			}
			r.metrics.SinkSend(sinkID, status)
			if err := r.store.InsertSend(ctx, storage.Send{
				MatchID:      match.ID,
				SinkID:       sinkID,
				Status:       status,
				ResponseCode: code,
				CreatedAt:    r.nowFunc(),
			}); err != nil {
				return err
			}
			if sendErr != nil {
				return fmt.Errorf("sink %s: %w", sinkID, sendErr)
			}
		}
	}
	return nil
}

func allPredicates(preds []Predicate, fields map[string]any) (bool, error) {
	for _, p := range preds {
		ok, err := p(fields)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// buildDedupeKey expands {id}, {name}, {chain}, {txhash}, {block} and {logIndex}
// in pattern. Keys are scoped to the route.
func buildDedupeKey(routeID, pattern, name string, hc resolver.Context, fields map[string]any) string {
	if pattern == "" {
		pattern = defaultDedupeKey
	}
	replacer := strings.NewReplacer(
		"{id}", fmt.Sprint(fields["id"]),
		"{name}", name,
		"{chain}", hc.Chain.Name,
		"{txhash}", fieldString(fields, "txhash"),
		"{block}", fieldString(fields, "block"),
		"{logIndex}", fieldString(fields, "logIndex"),
	)
	return routeID + "|" + replacer.Replace(pattern)
}

func fieldString(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func toSinkPayload(routeID, name string, hc resolver.Context, ev payload.Event, fields map[string]any) sink.EventPayload {
	return sink.EventPayload{
		RouteID: routeID,
		Name:    name,
		Kind:    ev.Kind().String(),
		Chain:   hc.Chain.Name,
		ChainID: hc.Chain.ID,
		ID:      ev.EventID(),
		TxHash:  fieldString(fields, "txhash"),
		Fields:  fields,
		Event:   ev,
	}
}
