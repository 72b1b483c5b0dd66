package graph

import (
	"sort"

	"github.com/hurou927/docmap/internal/schema"
)

// Edge represents a directed edge from a referencing document table to the
// table it references (FK direction).
type Edge struct {
	FK          schema.ForeignKey
	ChildTable  string // schema.table
	ParentTable string // schema.table
}

// Graph is a directed graph built from document foreign keys.
type Graph struct {
	// Tables maps qualified name -> table
	Tables map[string]*schema.Table

	// Edges are non-self-referential FK edges (child → parent)
	Edges []Edge

	// SelfRefs holds self-referential FKs, keyed by qualified table name
	SelfRefs map[string][]schema.ForeignKey

	// Children maps parent name → referencing table names
	Children map[string][]string

	// Parents maps child name → referenced table names
	Parents map[string][]string

	// Dangling holds FKs whose referenced table is not part of the graph
	Dangling []schema.ForeignKey

	// adjacency for undirected connectivity
	Adjacency map[string]map[string]bool
}

// Build constructs a directed graph from document tables. Tables are keyed by
// their qualified name; a later table with the same name replaces an earlier one.
func Build(tables []*schema.Table) *Graph {
	g := &Graph{
		Tables:    make(map[string]*schema.Table),
		SelfRefs:  make(map[string][]schema.ForeignKey),
		Children:  make(map[string][]string),
		Parents:   make(map[string][]string),
		Adjacency: make(map[string]map[string]bool),
	}

	for _, tbl := range tables {
		name := tbl.QualifiedName()
		g.Tables[name] = tbl
		g.Adjacency[name] = make(map[string]bool)
	}

	for _, name := range g.names() {
		tbl := g.Tables[name]
		for _, fk := range tbl.ForeignKeys {
			parentKey := fk.ParentSchema + "." + fk.ParentTable
			if _, ok := g.Tables[parentKey]; !ok {
				g.Dangling = append(g.Dangling, fk)
				continue
			}

			if fk.IsSelfRef || parentKey == name {
				g.SelfRefs[name] = append(g.SelfRefs[name], fk)
				continue
			}

			g.Edges = append(g.Edges, Edge{
				FK:          fk,
				ChildTable:  name,
				ParentTable: parentKey,
			})
			g.Children[parentKey] = append(g.Children[parentKey], name)
			g.Parents[name] = append(g.Parents[name], parentKey)
			g.Adjacency[name][parentKey] = true
			g.Adjacency[parentKey][name] = true
		}
	}

	return g
}

// names returns the table names in sorted order.
func (g *Graph) names() []string {
	names := make([]string, 0, len(g.Tables))
	for name := range g.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Roots returns tables that reference no other table.
func (g *Graph) Roots() []string {
	var roots []string
	for _, name := range g.names() {
		if len(g.Parents[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}
