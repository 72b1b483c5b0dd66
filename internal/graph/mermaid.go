package graph

import (
	"fmt"
	"io"
	"strings"
)

// WriteMermaid writes the graph in Mermaid format to w.
// Each connected component is a subgraph.
func WriteMermaid(w io.Writer, g *Graph) error {
	components := FindComponents(g)

	if _, err := fmt.Fprintln(w, "graph TD"); err != nil {
		return err
	}

	for i, comp := range components {
		fmt.Fprintf(w, "    subgraph component_%d\n", i+1)

		tableSet := make(map[string]bool, len(comp.Tables))
		for _, t := range comp.Tables {
			tableSet[t] = true
		}

		edgesWritten := make(map[string]bool)
		for _, edge := range g.Edges {
			if !tableSet[edge.ChildTable] {
				continue
			}
			label := strings.Join(edge.FK.ChildColumns, ", ")
			edgeKey := fmt.Sprintf("%s-->%s:%s", mermaidID(edge.ChildTable), mermaidID(edge.ParentTable), label)
			if edgesWritten[edgeKey] {
				continue
			}
			edgesWritten[edgeKey] = true
			fmt.Fprintf(w, "        %s -->|%s| %s\n",
				mermaidID(edge.ChildTable), label, mermaidID(edge.ParentTable))
		}

		for _, t := range comp.Tables {
			for _, fk := range g.SelfRefs[t] {
				label := strings.Join(fk.ChildColumns, ", ")
				fmt.Fprintf(w, "        %s -->|%s| %s\n", mermaidID(t), label, mermaidID(t))
			}
		}

		// standalone documents
		for _, t := range comp.Tables {
			if !hasEdge(g, t, tableSet) {
				fmt.Fprintf(w, "        %s\n", mermaidID(t))
			}
		}

		fmt.Fprintln(w, "    end")
		if i < len(components)-1 {
			fmt.Fprintln(w)
		}
	}

	return nil
}

// WriteText writes a text summary of the document graph to w.
func WriteText(w io.Writer, g *Graph) error {
	components := FindComponents(g)

	if _, err := fmt.Fprintf(w, "Documents: %d\n", len(g.Tables)); err != nil {
		return err
	}
	fmt.Fprintf(w, "Foreign Keys: %d\n", len(g.Edges)+countSelfRefs(g))
	fmt.Fprintf(w, "Connected Components: %d\n\n", len(components))

	topoResult := TopoSortAll(g)
	if topoResult.HasCycle {
		fmt.Fprintf(w, "WARNING: Circular dependencies detected: %v\n\n", topoResult.CycleTables)
	}

	if len(g.Dangling) > 0 {
		var names []string
		for _, fk := range g.Dangling {
			names = append(names, fmt.Sprintf("%s -> %s.%s", fk.Name, fk.ParentSchema, fk.ParentTable))
		}
		fmt.Fprintf(w, "WARNING: Foreign keys to unmapped tables: %v\n\n", names)
	}

	if len(g.SelfRefs) > 0 {
		var selfRefTables []string
		for _, t := range g.names() {
			if len(g.SelfRefs[t]) > 0 {
				selfRefTables = append(selfRefTables, t)
			}
		}
		fmt.Fprintf(w, "Self-referencing documents: %v\n\n", selfRefTables)
	}

	fmt.Fprintf(w, "Root documents (no references): %v\n\n", g.Roots())

	for i, comp := range components {
		fmt.Fprintf(w, "=== Component %d (%d documents) ===\n", i+1, len(comp.Tables))

		topoComp := TopoSort(g, comp.Tables)
		if topoComp.HasCycle {
			fmt.Fprintf(w, "  Creation order (partial, has cycle):\n")
		} else {
			fmt.Fprintf(w, "  Creation order:\n")
		}
		for j, t := range topoComp.Order {
			tbl := g.Tables[t]
			fkCount := 0
			for _, fk := range tbl.ForeignKeys {
				if !fk.IsSelfRef {
					fkCount++
				}
			}
			fmt.Fprintf(w, "    %d. %s (%d cols, %d duplicated, %d FKs)\n",
				j+1, t, len(tbl.Columns), duplicatedColumns(tbl.ColumnNames()), fkCount)
		}
		if topoComp.HasCycle {
			fmt.Fprintf(w, "  Cycle documents: %v\n", topoComp.CycleTables)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// duplicatedColumns counts columns that are not part of the fixed document layout.
func duplicatedColumns(cols []string) int {
	n := 0
	for _, c := range cols {
		switch c {
		case "id", "data", "mt_last_modified", "mt_version", "mt_dotnet_type", "mt_doc_type":
		default:
			n++
		}
	}
	return n
}

// mermaidID converts a schema.table name to a Mermaid-safe node ID.
func mermaidID(fullName string) string {
	return strings.ReplaceAll(fullName, ".", "_")
}

func hasEdge(g *Graph, table string, componentTables map[string]bool) bool {
	for _, edge := range g.Edges {
		if edge.ChildTable == table && componentTables[edge.ParentTable] {
			return true
		}
		if edge.ParentTable == table && componentTables[edge.ChildTable] {
			return true
		}
	}
	_, ok := g.SelfRefs[table]
	return ok
}

func countSelfRefs(g *Graph) int {
	count := 0
	for _, fks := range g.SelfRefs {
		count += len(fks)
	}
	return count
}
