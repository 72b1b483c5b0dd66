// Package ddl renders document mappings as PostgreSQL DDL scripts.
package ddl

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/hurou927/docmap/internal/graph"
	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

// Write emits the DDL of one mapping: the table, its indexes and foreign keys,
// the upsert function, and the bulk insert template as a comment. Names are
// resolved from the mapping's state at the time of the call.
func Write(w io.Writer, m *mapping.DocumentMapping) error {
	return writeMapping(w, m, true)
}

// WriteMapping is Write with the foreign keys optionally left out, for callers
// that add them once every referenced table exists.
func WriteMapping(w io.Writer, m *mapping.DocumentMapping, withForeignKeys bool) error {
	return writeMapping(w, m, withForeignKeys)
}

// WriteAll emits a complete script for every mapping built by the registry:
// schemas, the hilo support objects when any mapping uses Hi-Lo, then each
// mapping with referenced tables first. Foreign keys of mappings caught in a
// reference cycle are written after all tables exist.
func WriteAll(w io.Writer, r *mapping.Registry) error {
	return WriteMappings(w, r.DatabaseSchemaName(), r.AllMappings())
}

// WriteMappings is WriteAll over an explicit mapping list. The hilo objects are
// placed in hiloSchema.
func WriteMappings(w io.Writer, hiloSchema string, mappings []*mapping.DocumentMapping) error {
	if err := writeSchemas(w, hiloSchema, mappings); err != nil {
		return err
	}
	for _, m := range mappings {
		if m.UsesHilo() {
			if err := WriteHilo(w, hiloSchema); err != nil {
				return err
			}
			break
		}
	}

	ordered, deferred := Order(mappings)
	for _, m := range ordered {
		if err := writeMapping(w, m, !deferred[m]); err != nil {
			return err
		}
	}
	for _, m := range ordered {
		if !deferred[m] {
			continue
		}
		for _, fk := range m.ForeignKeys() {
			if _, err := fmt.Fprintln(w, fk.ToDDL()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Order sorts mappings so that referenced tables come first. Mappings on a
// reference cycle are appended by name and reported in the returned set.
func Order(mappings []*mapping.DocumentMapping) ([]*mapping.DocumentMapping, map[*mapping.DocumentMapping]bool) {
	tables := make([]*schema.Table, 0, len(mappings))
	byName := make(map[string]*mapping.DocumentMapping, len(mappings))
	for _, m := range mappings {
		t := m.Table()
		tables = append(tables, t)
		byName[t.QualifiedName()] = m
	}

	g := graph.Build(tables)
	res := graph.TopoSortAll(g)

	ordered := make([]*mapping.DocumentMapping, 0, len(mappings))
	for _, name := range res.Order {
		ordered = append(ordered, byName[name])
	}

	deferred := make(map[*mapping.DocumentMapping]bool)
	if res.HasCycle {
		log.Printf("WARNING: circular foreign keys among %v; their constraints are added last", res.CycleTables)
		for _, name := range res.CycleTables {
			m := byName[name]
			ordered = append(ordered, m)
			deferred[m] = true
		}
	}
	return ordered, deferred
}

func writeSchemas(w io.Writer, hiloSchema string, mappings []*mapping.DocumentMapping) error {
	seen := make(map[string]bool)
	for _, m := range mappings {
		seen[m.DatabaseSchemaName()] = true
	}
	if hiloSchema != "" {
		seen[hiloSchema] = true
	}
	delete(seen, mapping.DefaultSchemaName)

	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		if _, err := fmt.Fprintf(w, "CREATE SCHEMA IF NOT EXISTS %s;\n\n", s); err != nil {
			return err
		}
	}
	return nil
}

func writeMapping(w io.Writer, m *mapping.DocumentMapping, withForeignKeys bool) error {
	table := m.Table()
	if err := writeTable(w, table); err != nil {
		return err
	}

	var stmts []string
	for _, idx := range m.Indexes() {
		stmts = append(stmts, idx.ToDDL())
	}
	if withForeignKeys {
		for _, fk := range m.ForeignKeys() {
			stmts = append(stmts, fk.ToDDL())
		}
	}
	if len(stmts) > 0 {
		if _, err := fmt.Fprintf(w, "%s\n\n", strings.Join(stmts, "\n")); err != nil {
			return err
		}
	}

	fn := m.UpsertFunction()
	if err := writeUpsert(w, fn, table); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "-- bulk insert: %s;\n\n", fn.BulkInsertSQL())
	return err
}

func writeTable(w io.Writer, table *schema.Table) error {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = "    " + c.DDL()
	}
	_, err := fmt.Fprintf(w, "CREATE TABLE %s (\n%s\n);\n\n",
		table.QualifiedName(), strings.Join(cols, ",\n"))
	return err
}

// WriteUpsert emits only the upsert function of m.
func WriteUpsert(w io.Writer, m *mapping.DocumentMapping) error {
	return writeUpsert(w, m.UpsertFunction(), m.Table())
}

func writeUpsert(w io.Writer, fn *mapping.UpsertFunction, table *schema.Table) error {
	cols := fn.Columns()
	values := make([]string, len(fn.Arguments))
	updates := make([]string, 0, len(fn.Arguments))
	for i, a := range fn.Arguments {
		values[i] = a.Arg
		if a.Column != mapping.IDColumn {
			updates = append(updates, fmt.Sprintf("%s = %s", a.Column, a.Arg))
		}
	}
	cols = append(cols, mapping.LastModifiedColumn)
	values = append(values, "transaction_timestamp()")
	updates = append(updates, mapping.LastModifiedColumn+" = transaction_timestamp()")

	var guard string
	if c := fn.ConcurrencyArgument(); c != nil {
		guard = fmt.Sprintf("\n  WHERE %s IS NULL OR %s.%s = %s", c.Arg, table.Name, mapping.VersionColumn, c.Arg)
	}

	_, err := fmt.Fprintf(w, `CREATE OR REPLACE FUNCTION %s(%s) RETURNS uuid LANGUAGE plpgsql AS $function$
DECLARE
  final_version uuid;
BEGIN
  INSERT INTO %s (%s)
  VALUES (%s)
  ON CONFLICT (%s) DO UPDATE SET %s%s;

  SELECT %s FROM %s INTO final_version WHERE %s = doc_id;
  RETURN final_version;
END;
$function$;

`,
		fn.QualifiedName(), strings.Join(fn.Signature(), ", "),
		table.QualifiedName(), strings.Join(cols, ", "),
		strings.Join(values, ", "),
		mapping.IDColumn, strings.Join(updates, ", "), guard,
		mapping.VersionColumn, table.QualifiedName(), mapping.IDColumn,
	)
	return err
}

// WriteHilo emits the mt_hilo table and the mt_get_next_hi function. The
// function returns -1 when a concurrent caller advanced the same row first;
// callers retry.
func WriteHilo(w io.Writer, schemaName string) error {
	if schemaName == "" {
		schemaName = mapping.DefaultSchemaName
	}
	table := schemaName + "." + mapping.HiloTable
	_, err := fmt.Fprintf(w, `CREATE TABLE IF NOT EXISTS %s (
    entity_name varchar CONSTRAINT pk_%s PRIMARY KEY,
    hi_value bigint DEFAULT 0
);

CREATE OR REPLACE FUNCTION %s.%s(entity varchar) RETURNS bigint LANGUAGE plpgsql AS $function$
DECLARE
  current_value bigint;
  next_value bigint;
BEGIN
  SELECT hi_value INTO current_value FROM %s WHERE entity_name = entity;
  IF current_value IS NULL THEN
    INSERT INTO %s (entity_name, hi_value) VALUES (entity, 0) ON CONFLICT DO NOTHING;
    IF NOT FOUND THEN
      RETURN -1;
    END IF;
    next_value := 0;
  ELSE
    next_value := current_value + 1;
    UPDATE %s SET hi_value = next_value WHERE entity_name = entity AND hi_value = current_value;
    IF NOT FOUND THEN
      RETURN -1;
    END IF;
  END IF;
  RETURN next_value;
END;
$function$;

`, table, mapping.HiloTable, schemaName, mapping.HiloFunction, table, table, table)
	return err
}
