package mapping

import (
	"errors"
	"sort"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/lazy"
)

// Registry holds one mapping per document type. Mappings are built on first
// lookup and shared afterwards.
type Registry struct {
	defaultSchema string
	idStrategy    func(*DocumentMapping) identity.Strategy
	mappings      *lazy.Cache[*DocumentMapping]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultSchemaName sets the schema used by mappings that do not name one.
func WithDefaultSchemaName(name string) RegistryOption {
	return func(r *Registry) { r.defaultSchema = name }
}

// WithDefaultIDStrategy supplies the id strategy for every mapping that does
// not declare one. Returning nil falls back to selection by id type.
func WithDefaultIDStrategy(fn func(*DocumentMapping) identity.Strategy) RegistryOption {
	return func(r *Registry) { r.idStrategy = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defaultSchema: DefaultSchemaName,
		mappings:      lazy.New[*DocumentMapping](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DatabaseSchemaName returns the store-wide default schema.
func (r *Registry) DatabaseSchemaName() string {
	return normalizeSchema(r.defaultSchema)
}

// MappingFor returns the mapping of t, building it on first access.
func (r *Registry) MappingFor(t *doctype.Type) (*DocumentMapping, error) {
	if t == nil {
		return nil, configErrorf("document type is nil")
	}
	return r.mappings.GetOrCreate(t.Key(), func() (*DocumentMapping, error) {
		opts := []Option{WithDefaultSchema(r.defaultSchema)}
		if r.idStrategy != nil {
			opts = append(opts, WithIDStrategy(r.idStrategy))
		}
		return New(t, opts...)
	})
}

// MappingOf returns the mapping of the Go type T.
func MappingOf[T any](r *Registry) (*DocumentMapping, error) {
	t, err := doctype.Of[T]()
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	return r.MappingFor(t)
}

// Mapping looks up an already built mapping by type key.
func (r *Registry) Mapping(key string) (*DocumentMapping, bool) {
	return r.mappings.Get(key)
}

// AllMappings returns every built mapping ordered by type key.
func (r *Registry) AllMappings() []*DocumentMapping {
	return r.mappings.Values()
}

// Validate reports aliases shared by more than one type within a schema. It is
// the only place naming conflicts surface.
func (r *Registry) Validate() error {
	type slot struct{ schema, alias string }
	owners := make(map[slot][]string)
	for _, m := range r.AllMappings() {
		name := m.TableName()
		s := slot{schema: name.Schema, alias: m.Alias()}
		owners[s] = append(owners[s], m.Type().FullName())
	}

	slots := make([]slot, 0, len(owners))
	for s, types := range owners {
		if len(types) > 1 {
			slots = append(slots, s)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].schema != slots[j].schema {
			return slots[i].schema < slots[j].schema
		}
		return slots[i].alias < slots[j].alias
	})

	var errs []error
	for _, s := range slots {
		types := owners[s]
		sort.Strings(types)
		errs = append(errs, &NamingConflictError{Schema: s.schema, Alias: s.alias, Types: types})
	}
	return errors.Join(errs...)
}
