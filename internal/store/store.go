// Package store builds the mappings and event graph declared in a config file.
package store

import (
	"fmt"
	"strings"

	"github.com/hurou927/docmap/internal/config"
	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/events"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/mapping"
)

// Store holds everything the commands need from the configuration.
type Store struct {
	Registry *mapping.Registry
	Events   *events.Graph

	// documents by declared name, in declaration order
	names    []string
	mappings map[string]*mapping.DocumentMapping
	subs     map[string]map[string]*doctype.Type
}

// Open builds the registry from cfg and validates the resulting mappings.
func Open(cfg *config.Config) (*Store, error) {
	var opts []mapping.RegistryOption
	opts = append(opts, mapping.WithDefaultSchemaName(cfg.Schema))
	if cfg.IDStrategy != "" {
		strategy, err := identity.Parse(cfg.IDStrategy)
		if err != nil {
			return nil, fmt.Errorf("id_strategy: %w", err)
		}
		// strategies are never mutated in place, so mappings can share one
		opts = append(opts, mapping.WithDefaultIDStrategy(func(*mapping.DocumentMapping) identity.Strategy {
			return strategy
		}))
	}

	reg := mapping.NewRegistry(opts...)
	s := &Store{
		Registry: reg,
		Events:   events.NewGraph(reg),
		mappings: make(map[string]*mapping.DocumentMapping, len(cfg.Documents)),
		subs:     make(map[string]map[string]*doctype.Type),
	}

	for i := range cfg.Documents {
		if err := s.addDocument(&cfg.Documents[i]); err != nil {
			return nil, fmt.Errorf("document %s: %w", cfg.Documents[i].Name, err)
		}
	}
	// references may point forward, so foreign keys wait for every mapping
	for _, d := range cfg.Documents {
		m := s.mappings[d.Name]
		for _, fk := range d.ForeignKeys {
			if _, err := m.AddForeignKey(fk.Member, s.mappings[fk.References]); err != nil {
				return nil, fmt.Errorf("document %s: %w", d.Name, err)
			}
		}
	}

	for i := range cfg.Events {
		t, err := cfg.Events[i].ToType()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", cfg.Events[i].Name, err)
		}
		if err := s.Events.AddEventType(t); err != nil {
			return nil, err
		}
	}
	for _, a := range cfg.Aggregates {
		if _, err := s.Events.AddAggregate(s.mappings[a.Document].Type(), a.Alias); err != nil {
			return nil, err
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) addDocument(d *config.Document) error {
	t, err := d.ToType()
	if err != nil {
		return err
	}
	m, err := s.Registry.MappingFor(t)
	if err != nil {
		return err
	}

	if d.Hilo != nil {
		settings := identity.DefaultHiloSettings()
		if d.Hilo.MaxLo > 0 {
			settings.MaxLo = d.Hilo.MaxLo
		}
		if d.Hilo.MaxAdvanceToNextHiAttempts > 0 {
			settings.MaxAdvanceToNextHiAttempts = d.Hilo.MaxAdvanceToNextHiAttempts
		}
		settings.SequenceName = d.Hilo.SequenceName
		if err := m.HiloSettings(settings); err != nil {
			return err
		}
	}

	for _, dup := range d.Duplicates {
		var dopts []mapping.DuplicateOption
		if dup.Column != "" {
			dopts = append(dopts, mapping.WithColumnName(dup.Column))
		}
		if dup.PgType != "" {
			dopts = append(dopts, mapping.WithPgType(dup.PgType))
		}
		if _, err := m.DuplicateField(dup.Member, dopts...); err != nil {
			return err
		}
	}

	subs := make(map[string]*doctype.Type, len(d.SubClasses))
	for i := range d.SubClasses {
		sc := &d.SubClasses[i]
		st, err := sc.ToType()
		if err != nil {
			return fmt.Errorf("subclass %s: %w", sc.Name, err)
		}
		if st.PkgPath == "" {
			st.PkgPath = t.PkgPath
		}
		if err := m.AddSubClass(st, sc.Alias); err != nil {
			return err
		}
		subs[strings.ToLower(sc.Name)] = st
	}

	if d.GinIndexData {
		m.AddGinIndexToData()
	}
	for _, ix := range d.Indexes {
		method, err := parseIndexMethod(ix.Method)
		if err != nil {
			return err
		}
		idx := m.AddIndex(ix.Columns...)
		idx.Method = method
		idx.IsUnique = ix.Unique
		idx.IsConcurrent = ix.Concurrent
		idx.Modifier = ix.Modifier
		idx.Name = ix.Name
	}

	s.names = append(s.names, d.Name)
	s.mappings[d.Name] = m
	s.subs[d.Name] = subs
	return nil
}

func parseIndexMethod(s string) (mapping.IndexMethod, error) {
	switch m := mapping.IndexMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return mapping.BTree, nil
	case mapping.BTree, mapping.Hash, mapping.Gin, mapping.Gist, mapping.Brin:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown index method %q", mapping.ErrConfiguration, s)
}

// Mapping returns the mapping of a declared document, matched case-insensitively.
func (s *Store) Mapping(name string) (*mapping.DocumentMapping, error) {
	for _, n := range s.names {
		if strings.EqualFold(n, name) {
			return s.mappings[n], nil
		}
	}
	return nil, fmt.Errorf("document %q is not declared", name)
}

// SubClass returns a declared subclass of a document, or nil for an empty name.
func (s *Store) SubClass(document, name string) (*doctype.Type, error) {
	if name == "" {
		return nil, nil
	}
	for _, n := range s.names {
		if !strings.EqualFold(n, document) {
			continue
		}
		if st, ok := s.subs[n][strings.ToLower(name)]; ok {
			return st, nil
		}
		return nil, fmt.Errorf("%s has no subclass %q", n, name)
	}
	return nil, fmt.Errorf("document %q is not declared", document)
}

// Mappings returns the declared mappings in declaration order.
func (s *Store) Mappings() []*mapping.DocumentMapping {
	out := make([]*mapping.DocumentMapping, len(s.names))
	for i, n := range s.names {
		out[i] = s.mappings[n]
	}
	return out
}
