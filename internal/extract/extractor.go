// Package extract exports a consistent subset of stored documents: the rows of
// root document tables matching a filter, plus every document that references
// them through a foreign key, in dependency order.
package extract

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/hurou927/docmap/internal/graph"
	"github.com/hurou927/docmap/internal/output"
	"github.com/hurou927/docmap/internal/schema"
)

// Extractor orchestrates the subset extraction process.
type Extractor struct {
	db      schema.Querier
	g       *graph.Graph
	roots   map[string]string
	verbose bool
	dryRun  bool

	// collected holds extracted rows per table (qualified name → rows)
	collected map[string][][]any
	// collectedIDs holds document ids per table for child lookups
	collectedIDs map[string][]any
}

// New creates an Extractor over the given document tables. roots maps the
// qualified name of each root table to its WHERE clause, which may be empty.
func New(db schema.Querier, tables []*schema.Table, roots map[string]string, verbose, dryRun bool) *Extractor {
	return &Extractor{
		db:           db,
		g:            graph.Build(tables),
		roots:        roots,
		verbose:      verbose,
		dryRun:       dryRun,
		collected:    make(map[string][][]any),
		collectedIDs: make(map[string][]any),
	}
}

// Extract performs the extraction and writes the output. In dry-run mode nothing
// is executed and the root queries are written to w; child queries depend on
// fetched ids and are skipped.
func (e *Extractor) Extract(ctx context.Context, w io.Writer) error {
	for name := range e.roots {
		if _, ok := e.g.Tables[name]; !ok {
			return fmt.Errorf("root table %s is not a mapped document table", name)
		}
	}

	topo := graph.TopoSortAll(e.g)
	order := topo.Order
	if topo.HasCycle {
		log.Printf("WARNING: Circular dependencies detected: %v", topo.CycleTables)
		log.Printf("Tables in cycles will be loaded with session_replication_role = 'replica'")
		order = append(order, topo.CycleTables...)
	}

	for _, name := range order {
		tbl := e.g.Tables[name]

		if where, isRoot := e.roots[name]; isRoot {
			if err := e.extractRoot(ctx, w, tbl, where); err != nil {
				return fmt.Errorf("extracting root %s: %w", name, err)
			}
		} else if len(e.g.Parents[name]) > 0 {
			if err := e.extractChild(ctx, w, tbl); err != nil {
				return fmt.Errorf("extracting child %s: %w", name, err)
			}
		}

		if selfRefs := e.g.SelfRefs[name]; len(selfRefs) > 0 {
			if err := e.extractSelfRef(ctx, w, tbl, selfRefs); err != nil {
				return fmt.Errorf("extracting self-ref %s: %w", name, err)
			}
		}
	}

	if e.dryRun {
		return nil
	}

	cw := output.NewWriter(w)
	if err := cw.WriteHeader(topo.HasCycle); err != nil {
		return err
	}
	for _, name := range order {
		tbl := e.g.Tables[name]
		if err := cw.WriteTableData(tbl.TableName(), tbl.ColumnNames(), e.collected[name]); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return cw.WriteFooter(topo.HasCycle)
}

func (e *Extractor) extractRoot(ctx context.Context, w io.Writer, table *schema.Table, where string) error {
	query := buildRootQuery(table, where)
	e.trace(w, "root", table, query, nil)
	if e.dryRun {
		return nil
	}
	return e.run(ctx, table, query, nil)
}

func (e *Extractor) extractChild(ctx context.Context, w io.Writer, table *schema.Table) error {
	query, args := buildChildQuery(table, e.collectedIDs)
	if query == "" {
		return nil
	}
	e.trace(w, "child", table, query, args)
	if e.dryRun {
		return nil
	}
	return e.run(ctx, table, query, args)
}

func (e *Extractor) extractSelfRef(ctx context.Context, w io.Writer, table *schema.Table, selfRefs []schema.ForeignKey) error {
	name := table.QualifiedName()
	idx := idIndex(table)
	if idx < 0 {
		return fmt.Errorf("%s has no single-column primary key", name)
	}
	for _, fk := range selfRefs {
		seeds := e.collectedIDs[name]
		if len(seeds) == 0 {
			return nil
		}
		query, args := buildSelfRefQuery(table, fk, seeds)
		e.trace(w, "self-ref", table, query, args)
		if e.dryRun {
			continue
		}

		rows, err := fetchRows(ctx, e.db, query, args)
		if err != nil {
			return fmt.Errorf("self-ref query for %s: %w", name, err)
		}
		existing := e.idSet(table)
		for _, row := range rows {
			key := fmt.Sprintf("%v", row[idx])
			if !existing[key] {
				e.addRow(table, row)
				existing[key] = true
			}
		}

		if e.verbose {
			fmt.Fprintf(os.Stderr, "  [self-ref] %s: total %d rows after recursive\n", name, len(e.collected[name]))
		}
	}
	return nil
}

func (e *Extractor) run(ctx context.Context, table *schema.Table, query string, args []any) error {
	rows, err := fetchRows(ctx, e.db, query, args)
	if err != nil {
		return err
	}
	for _, row := range rows {
		e.addRow(table, row)
	}
	if e.verbose {
		fmt.Fprintf(os.Stderr, "  -> %d rows\n", len(e.collected[table.QualifiedName()]))
	}
	return nil
}

func (e *Extractor) trace(w io.Writer, kind string, table *schema.Table, query string, args []any) {
	switch {
	case e.dryRun:
		fmt.Fprintf(w, "-- [%s] %s\n%s;\n", kind, table.QualifiedName(), query)
		if len(args) > 0 {
			fmt.Fprintf(w, "--   args: %v\n", args)
		}
	case e.verbose:
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", kind, table.QualifiedName(), query)
	}
}

func (e *Extractor) addRow(table *schema.Table, values []any) {
	name := table.QualifiedName()
	e.collected[name] = append(e.collected[name], values)
	if i := idIndex(table); i >= 0 && i < len(values) {
		e.collectedIDs[name] = append(e.collectedIDs[name], values[i])
	}
}

func (e *Extractor) idSet(table *schema.Table) map[string]bool {
	set := make(map[string]bool)
	for _, id := range e.collectedIDs[table.QualifiedName()] {
		set[fmt.Sprintf("%v", id)] = true
	}
	return set
}

// idIndex returns the position of the single primary key column, or -1.
func idIndex(table *schema.Table) int {
	pk := table.PKColumnNames()
	if len(pk) != 1 {
		return -1
	}
	for i, c := range table.Columns {
		if c.Name == pk[0] {
			return i
		}
	}
	return -1
}

// CollectedSummary returns a summary of collected rows for reporting.
func (e *Extractor) CollectedSummary() []string {
	keys := make([]string, 0, len(e.collected))
	for k := range e.collected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %d rows", k, len(e.collected[k])))
	}
	return lines
}
