package extract

import (
	"fmt"
	"log"
	"strings"

	"github.com/hurou927/docmap/internal/schema"
)

// maxIDsPerQuery bounds the IN list of a single child query.
const maxIDsPerQuery = 10000

// selectList names the columns in table order; jsonb columns are read as text
// so payloads are exported byte for byte.
func selectList(table *schema.Table, alias string) string {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		col := c.Name
		if alias != "" {
			col = alias + "." + col
		}
		if c.DataType == "jsonb" {
			col += "::text"
		}
		cols[i] = col
	}
	return strings.Join(cols, ", ")
}

// buildRootQuery builds a SELECT query for a root table with a WHERE clause.
func buildRootQuery(table *schema.Table, where string) string {
	q := fmt.Sprintf("SELECT %s FROM %s", selectList(table, ""), table.QualifiedName())
	if where != "" {
		q += " WHERE " + where
	}
	return q + " ORDER BY id"
}

// buildChildQuery selects the documents of table referencing any collected
// parent document. parentIDs maps parent qualified name → collected ids.
func buildChildQuery(table *schema.Table, parentIDs map[string][]any) (string, []any) {
	var conditions []string
	var args []any
	argIdx := 1

	for _, fk := range table.ForeignKeys {
		if fk.IsSelfRef || len(fk.ChildColumns) != 1 {
			continue
		}
		ids := parentIDs[fk.ParentSchema+"."+fk.ParentTable]
		if len(ids) == 0 {
			continue
		}
		cond, newArgs, next := buildSingleColumnIN(table, fk.ChildColumns[0], ids, argIdx)
		conditions = append(conditions, cond)
		args = append(args, newArgs...)
		argIdx = next
	}

	if len(conditions) == 0 {
		return "", nil
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id",
		selectList(table, ""), table.QualifiedName(), strings.Join(conditions, " OR "))
	return q, args
}

func buildSingleColumnIN(table *schema.Table, col string, ids []any, argIdx int) (string, []any, int) {
	if len(ids) > maxIDsPerQuery {
		log.Printf("WARNING: %s.%s: only the first %d of %d referenced ids are followed",
			table.QualifiedName(), col, maxIDsPerQuery, len(ids))
		ids = ids[:maxIDsPerQuery]
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", argIdx)
		args[i] = id
		argIdx++
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args, argIdx
}

// buildSelfRefQuery builds a recursive CTE that walks from the seed documents
// up to every document they reference through fk.
func buildSelfRefQuery(table *schema.Table, fk schema.ForeignKey, seedIDs []any) (string, []any) {
	if len(seedIDs) == 0 || len(fk.ChildColumns) != 1 {
		return "", nil
	}

	cond, args, _ := buildSingleColumnIN(table, "t.id", seedIDs, 1)
	q := fmt.Sprintf(`WITH RECURSIVE tree AS (
  SELECT t.* FROM %s t WHERE %s
  UNION
  SELECT t.* FROM %s t JOIN tree r ON t.%s = r.%s
)
SELECT %s FROM tree t ORDER BY t.id`,
		table.QualifiedName(), cond,
		table.QualifiedName(), fk.ParentColumns[0], fk.ChildColumns[0],
		selectList(table, "t"))
	return q, args
}
