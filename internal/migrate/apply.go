package migrate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/hurou927/docmap/internal/ddl"
	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	schema.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Planner computes and applies the patches for a set of mappings.
type Planner struct {
	db      DB
	verbose bool
	dryRun  bool
}

// New creates a Planner. With dryRun set, Apply only writes the statements.
func New(db DB, verbose, dryRun bool) *Planner {
	return &Planner{db: db, verbose: verbose, dryRun: dryRun}
}

// Plan introspects the schemas the mappings live in and diffs every mapping,
// referenced tables first. The first patch creates missing schemas and the
// hilo support objects when needed.
func (p *Planner) Plan(ctx context.Context, hiloSchema string, mappings []*mapping.DocumentMapping) ([]*Patch, error) {
	schemaSet := map[string]bool{hiloSchema: true}
	for _, m := range mappings {
		schemaSet[m.DatabaseSchemaName()] = true
	}
	schemas := make([]string, 0, len(schemaSet))
	for s := range schemaSet {
		schemas = append(schemas, s)
	}
	sort.Strings(schemas)

	tables, err := schema.Introspect(ctx, p.db, schemas, "mt_")
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}

	var patches []*Patch
	setup, err := p.setupPatch(ctx, hiloSchema, schemas, tables, mappings)
	if err != nil {
		return nil, err
	}
	if !setup.Empty() {
		patches = append(patches, setup)
	}

	ordered, deferred := ddl.Order(mappings)
	var late []*Patch
	for _, m := range ordered {
		name := m.TableName()
		existing := tables[name.QualifiedName()]
		var upsert []string
		if existing != nil {
			upsert, err = schema.FunctionArguments(ctx, p.db, m.UpsertFunctionName())
			if err != nil {
				return nil, fmt.Errorf("checking %s: %w", m.UpsertFunctionName(), err)
			}
		}
		patch, err := Diff(m, existing, upsert)
		if err != nil {
			return nil, err
		}
		if deferred[m] {
			if fks := splitForeignKeys(patch, m); !fks.Empty() {
				late = append(late, fks)
			}
		}
		for _, w := range patch.Warnings {
			log.Printf("WARNING: %s", w)
		}
		if !patch.Empty() {
			patches = append(patches, patch)
		}
	}
	return append(patches, late...), nil
}

// splitForeignKeys moves the foreign key statements of patch into a patch of
// their own.
func splitForeignKeys(patch *Patch, m *mapping.DocumentMapping) *Patch {
	fkStmts := make(map[string]bool)
	for _, fk := range m.ForeignKeys() {
		fkStmts[fk.ToDDL()] = true
	}
	fks := &Patch{Table: patch.Table}
	kept := patch.Statements[:0]
	for _, stmt := range patch.Statements {
		if fkStmts[stmt] {
			fks.Statements = append(fks.Statements, stmt)
			continue
		}
		kept = append(kept, stmt)
	}
	patch.Statements = kept
	return fks
}

func (p *Planner) setupPatch(ctx context.Context, hiloSchema string, schemas []string,
	tables map[string]*schema.Table, mappings []*mapping.DocumentMapping) (*Patch, error) {
	setup := &Patch{Table: schema.TableName{Schema: hiloSchema, Name: mapping.HiloTable}}
	for _, s := range schemas {
		if s != mapping.DefaultSchemaName {
			setup.Statements = append(setup.Statements, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", s))
		}
	}

	usesHilo := false
	for _, m := range mappings {
		usesHilo = usesHilo || m.UsesHilo()
	}
	if !usesHilo {
		return setup, nil
	}
	fn := schema.TableName{Schema: hiloSchema, Name: mapping.HiloFunction}
	exists, err := schema.FunctionExists(ctx, p.db, fn)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", fn, err)
	}
	if _, ok := tables[hiloSchema+"."+mapping.HiloTable]; ok && exists {
		return setup, nil
	}
	var buf bytes.Buffer
	if err := ddl.WriteHilo(&buf, hiloSchema); err != nil {
		return nil, err
	}
	setup.Statements = append(setup.Statements, buf.String())
	return setup, nil
}

// Apply runs all patches in one transaction. In dry-run mode the statements
// are written to w instead.
func (p *Planner) Apply(ctx context.Context, w io.Writer, patches []*Patch) error {
	if p.dryRun {
		for _, patch := range patches {
			if _, err := fmt.Fprintf(w, "-- %s\n", patch.Table); err != nil {
				return err
			}
			for _, stmt := range patch.Statements {
				if _, err := fmt.Fprintln(w, stmt); err != nil {
					return err
				}
			}
			fmt.Fprintln(w)
		}
		return nil
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, patch := range patches {
		for _, stmt := range patch.Statements {
			if p.verbose {
				fmt.Fprintf(os.Stderr, "[apply] %s: %s\n", patch.Table, stmt)
			}
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("applying %s: %w", patch.Table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
