package mapping

import (
	"fmt"
	"strings"

	"github.com/hurou927/docmap/internal/schema"
)

// UpsertArgument binds one upsert function argument to a table column.
type UpsertArgument struct {
	Arg    string
	Column string
	PgType string
}

// UpsertFunction is the insert-or-update routine of a mapping. Its arguments
// mirror the table columns except the server-managed mt_last_modified.
type UpsertFunction struct {
	schema.TableName
	Table     schema.TableName
	Arguments []UpsertArgument

	concurrency *UpsertArgument
}

// ConcurrencyArgument is the expected-version guard, present only with
// optimistic concurrency. It is passed after the column arguments.
func (f *UpsertFunction) ConcurrencyArgument() *UpsertArgument {
	return f.concurrency
}

// Columns returns the table columns written by the function, in argument order.
func (f *UpsertFunction) Columns() []string {
	cols := make([]string, len(f.Arguments))
	for i, a := range f.Arguments {
		cols[i] = a.Column
	}
	return cols
}

// Signature lists every declared argument with its type.
func (f *UpsertFunction) Signature() []string {
	args := make([]string, 0, len(f.Arguments)+1)
	for _, a := range f.Arguments {
		args = append(args, a.Arg+" "+a.PgType)
	}
	if f.concurrency != nil {
		args = append(args, f.concurrency.Arg+" "+f.concurrency.PgType)
	}
	return args
}

// CallSQL renders the statement sessions execute: SELECT schema.fn($1, ...).
func (f *UpsertFunction) CallSQL() string {
	n := len(f.Arguments)
	if f.concurrency != nil {
		n++
	}
	return fmt.Sprintf("SELECT %s(%s)", f.QualifiedName(), placeholders(1, n))
}

// BulkInsertSQL is the plain INSERT used by bulk-load paths.
func (f *UpsertFunction) BulkInsertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		f.Table.QualifiedName(), strings.Join(f.Columns(), ", "), placeholders(1, len(f.Arguments)))
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

// UpsertFunction derives the upsert routine from the current table layout.
func (m *DocumentMapping) UpsertFunction() *UpsertFunction {
	m.mu.RLock()
	table := m.table()
	optimistic := m.optimistic
	m.mu.RUnlock()

	f := &UpsertFunction{
		TableName: schema.TableName{
			Schema: table.Schema,
			Name:   UpsertPrefix + strings.TrimPrefix(table.Name, TablePrefix),
		},
		Table: table.TableName(),
	}
	for _, col := range table.Columns {
		if col.Name == LastModifiedColumn {
			continue
		}
		f.Arguments = append(f.Arguments, UpsertArgument{
			Arg:    argumentName(col.Name),
			Column: col.Name,
			PgType: col.DataType,
		})
	}
	if optimistic {
		f.concurrency = &UpsertArgument{Arg: "current_version", Column: VersionColumn, PgType: "uuid"}
	}
	return f
}

func argumentName(column string) string {
	switch column {
	case IDColumn:
		return "doc_id"
	case DataColumn:
		return "doc"
	case VersionColumn:
		return "doc_version"
	case DotNetTypeColumn:
		return "doc_dotnet_type"
	case DocumentTypeColumn:
		return "doc_type"
	}
	return "arg_" + column
}
