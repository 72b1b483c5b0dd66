// Package events keeps the event types and aggregates known to a store.
// Aggregates are documents, so registering one maps its type in the registry.
package events

import (
	"fmt"
	"sync"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/lazy"
	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

const (
	StreamsTable     = "mt_streams"
	EventsTable      = "mt_events"
	ProgressionTable = "mt_event_progression"
)

// EventMapping describes one event type.
type EventMapping struct {
	Type *doctype.Type
	// EventTypeName is the name events of this type are stored under.
	EventTypeName string
}

// Aggregate is a document type built from a stream of events.
type Aggregate struct {
	Type    *doctype.Type
	Alias   string
	Mapping *mapping.DocumentMapping
}

// Graph holds event mappings by type and by name, and aggregates by type.
type Graph struct {
	registry *mapping.Registry

	events     *lazy.Cache[*EventMapping]
	byName     *lazy.Cache[*EventMapping]
	aggregates *lazy.Cache[*Aggregate]

	mu     sync.RWMutex
	schema string
}

// NewGraph creates an empty graph whose aggregates are mapped in registry.
func NewGraph(registry *mapping.Registry) *Graph {
	return &Graph{
		registry:   registry,
		events:     lazy.New[*EventMapping](),
		byName:     lazy.New[*EventMapping](),
		aggregates: lazy.New[*Aggregate](),
	}
}

// EventTypeName derives the stored name of an event type: its snake-cased name.
func EventTypeName(t *doctype.Type) string {
	return mapping.SnakeCase(t.Name)
}

// EventMappingFor returns the mapping of t, creating it on first access.
func (g *Graph) EventMappingFor(t *doctype.Type) (*EventMapping, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: event type is nil", mapping.ErrConfiguration)
	}
	return g.events.GetOrCreate(t.Key(), func() (*EventMapping, error) {
		return &EventMapping{Type: t, EventTypeName: EventTypeName(t)}, nil
	})
}

// EventMappingOf returns the mapping of the Go event type T.
func EventMappingOf[T any](g *Graph) (*EventMapping, error) {
	t, err := doctype.Of[T]()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mapping.ErrConfiguration, err)
	}
	return g.EventMappingFor(t)
}

// EventMappingByName finds a known event type by its stored name. Unknown
// names are not remembered, so a type added later is still found.
func (g *Graph) EventMappingByName(name string) (*EventMapping, bool) {
	em, err := g.byName.GetOrCreate(name, func() (*EventMapping, error) {
		for _, em := range g.AllEvents() {
			if em.EventTypeName == name {
				return em, nil
			}
		}
		return nil, fmt.Errorf("unknown event type %q", name)
	})
	return em, err == nil
}

// AddEventType registers t.
func (g *Graph) AddEventType(t *doctype.Type) error {
	_, err := g.EventMappingFor(t)
	return err
}

// AddEventTypes registers every type in ts.
func (g *Graph) AddEventTypes(ts ...*doctype.Type) error {
	for _, t := range ts {
		if err := g.AddEventType(t); err != nil {
			return err
		}
	}
	return nil
}

// AllEvents returns the registered event mappings ordered by type key.
func (g *Graph) AllEvents() []*EventMapping {
	return g.events.Values()
}

// AddAggregate registers t as an aggregate, replacing a previous registration.
// The alias defaults to the snake-cased type name.
func (g *Graph) AddAggregate(t *doctype.Type, alias string) (*Aggregate, error) {
	a, err := g.newAggregate(t, alias)
	if err != nil {
		return nil, err
	}
	g.aggregates.Set(t.Key(), a)
	return a, nil
}

// AggregateFor returns the aggregate of t, registering it on first access.
func (g *Graph) AggregateFor(t *doctype.Type) (*Aggregate, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: aggregate type is nil", mapping.ErrConfiguration)
	}
	return g.aggregates.GetOrCreate(t.Key(), func() (*Aggregate, error) {
		return g.newAggregate(t, "")
	})
}

func (g *Graph) newAggregate(t *doctype.Type, alias string) (*Aggregate, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: aggregate type is nil", mapping.ErrConfiguration)
	}
	m, err := g.registry.MappingFor(t)
	if err != nil {
		return nil, fmt.Errorf("mapping aggregate %s: %w", t.Name, err)
	}
	if alias == "" {
		alias = mapping.SnakeCase(t.Name)
	}
	return &Aggregate{Type: t, Alias: alias, Mapping: m}, nil
}

// AggregateTypeFor finds the aggregate registered under alias.
func (g *Graph) AggregateTypeFor(alias string) (*doctype.Type, bool) {
	for _, a := range g.AllAggregates() {
		if a.Alias == alias {
			return a.Type, true
		}
	}
	return nil, false
}

// AllAggregates returns the aggregates ordered by type key.
func (g *Graph) AllAggregates() []*Aggregate {
	return g.aggregates.Values()
}

// IsActive reports whether any event type or aggregate is registered.
func (g *Graph) IsActive() bool {
	return g.events.Len() > 0 || g.aggregates.Len() > 0
}

// DatabaseSchemaName is the event store schema, defaulting to the registry's.
func (g *Graph) DatabaseSchemaName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.schema != "" {
		return g.schema
	}
	return g.registry.DatabaseSchemaName()
}

// SetDatabaseSchemaName overrides the event store schema.
func (g *Graph) SetDatabaseSchemaName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.schema = name
}

// Table returns the qualified name of one of the event store tables.
func (g *Graph) Table(name string) schema.TableName {
	return schema.TableName{Schema: g.DatabaseSchemaName(), Name: name}
}
