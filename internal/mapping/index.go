package mapping

import (
	"fmt"
	"slices"
	"strings"
)

// IndexMethod is the PostgreSQL index access method.
type IndexMethod string

const (
	BTree IndexMethod = "btree"
	Hash  IndexMethod = "hash"
	Gin   IndexMethod = "gin"
	Gist  IndexMethod = "gist"
	Brin  IndexMethod = "brin"
)

// IndexDefinition is an index on a mapping's table.
type IndexDefinition struct {
	parent *DocumentMapping

	Columns      []string
	Method       IndexMethod
	IsUnique     bool
	IsConcurrent bool
	// Modifier follows the column list, e.g. jsonb_path_ops for gin indexes.
	Modifier string
	// Name overrides the derived <table>_idx_<columns> name.
	Name string
}

// IndexName returns the index name, derived from the current table name.
func (i *IndexDefinition) IndexName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.parent.TableName().Name + "_idx_" + strings.Join(i.Columns, "_")
}

// ToDDL renders the CREATE INDEX statement.
func (i *IndexDefinition) ToDDL() string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if i.IsUnique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if i.IsConcurrent {
		b.WriteString("CONCURRENTLY ")
	}
	fmt.Fprintf(&b, "IF NOT EXISTS %s ON %s", i.IndexName(), i.parent.TableName().QualifiedName())
	if i.Method != "" && i.Method != BTree {
		fmt.Fprintf(&b, " USING %s", i.Method)
	}
	cols := strings.Join(i.Columns, ", ")
	if i.Modifier != "" {
		cols += " " + i.Modifier
	}
	fmt.Fprintf(&b, " (%s);", cols)
	return b.String()
}

// AddIndex adds a btree index over the given columns, or returns the existing
// index on exactly those columns.
func (m *DocumentMapping) AddIndex(columns ...string) *IndexDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addIndex(columns, BTree, "")
}

// AddGinIndexToData indexes the payload for containment queries.
func (m *DocumentMapping) AddGinIndexToData() *IndexDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addIndex([]string{DataColumn}, Gin, "jsonb_path_ops")
}

func (m *DocumentMapping) addIndex(columns []string, method IndexMethod, modifier string) *IndexDefinition {
	for _, idx := range m.indexes {
		if slices.Equal(idx.Columns, columns) {
			return idx
		}
	}
	idx := &IndexDefinition{
		parent:   m,
		Columns:  append([]string(nil), columns...),
		Method:   method,
		Modifier: modifier,
	}
	m.indexes = append(m.indexes, idx)
	return idx
}

// Indexes returns the index definitions in the order they were added.
func (m *DocumentMapping) Indexes() []*IndexDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*IndexDefinition(nil), m.indexes...)
}
