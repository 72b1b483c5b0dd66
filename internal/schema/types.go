package schema

import (
	"fmt"
	"strings"
)

// TableName is a schema-qualified relation or routine name.
type TableName struct {
	Schema string
	Name   string
}

// QualifiedName returns schema.name.
func (n TableName) QualifiedName() string {
	return n.Schema + "." + n.Name
}

func (n TableName) String() string {
	return n.QualifiedName()
}

// Column represents a database column.
type Column struct {
	Name     string
	DataType string // PostgreSQL type name (e.g. "uuid", "jsonb", "varchar")
	Nullable bool
	OrdPos   int // ordinal position (1-based)
	// Directive is the trailing constraint/default clause used when rendering DDL.
	Directive string
}

// DDL renders the column as it appears inside CREATE TABLE.
func (c Column) DDL() string {
	if c.Directive == "" {
		return fmt.Sprintf("%s %s", c.Name, c.DataType)
	}
	return fmt.Sprintf("%s %s %s", c.Name, c.DataType, c.Directive)
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Columns []string
}

// ForeignKey represents a foreign key constraint found in the database.
type ForeignKey struct {
	Name          string
	ChildSchema   string
	ChildTable    string
	ChildColumns  []string
	ParentSchema  string
	ParentTable   string
	ParentColumns []string
	IsSelfRef     bool
}

// Table represents a database table with its columns, PK, and FKs.
type Table struct {
	Schema      string
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	ForeignKeys []ForeignKey
	// Indexes holds index names; only introspected tables fill it.
	Indexes []string
}

// TableName returns the table's qualified name parts.
func (t *Table) TableName() TableName {
	return TableName{Schema: t.Schema, Name: t.Name}
}

// QualifiedName returns schema-qualified table name.
func (t *Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// ColumnNames returns all column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// HasForeignKey reports whether a constraint with this name exists.
func (t *Table) HasForeignKey(name string) bool {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return true
		}
	}
	return false
}

// HasIndex reports whether an index with this name exists.
func (t *Table) HasIndex(name string) bool {
	for _, idx := range t.Indexes {
		if idx == name {
			return true
		}
	}
	return false
}

// PKColumnNames returns the primary key column names, or nil if no PK.
func (t *Table) PKColumnNames() []string {
	if t.PrimaryKey == nil {
		return nil
	}
	return t.PrimaryKey.Columns
}
