package mapping

import (
	"fmt"

	"github.com/hurou927/docmap/internal/schema"
)

// Table returns the storage table computed from the current fields and
// subclasses: id, data, mt_last_modified, mt_version, mt_dotnet_type, the
// duplicated columns, then mt_doc_type for hierarchies.
func (m *DocumentMapping) Table() *schema.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table()
}

// table builds the storage table. Callers hold the read lock.
func (m *DocumentMapping) table() *schema.Table {
	name := m.tableName()
	columns := []schema.Column{
		{Name: IDColumn, DataType: PgTypeFor(m.idMember.Type), Directive: "PRIMARY KEY"},
		{Name: DataColumn, DataType: "jsonb", Directive: "NOT NULL"},
		{Name: LastModifiedColumn, DataType: "timestamp with time zone", Nullable: true,
			Directive: "DEFAULT transaction_timestamp()"},
		{Name: VersionColumn, DataType: "uuid",
			Directive: "NOT NULL DEFAULT (md5(random()::text || clock_timestamp()::text)::uuid)"},
		{Name: DotNetTypeColumn, DataType: "varchar", Nullable: true},
	}
	for _, dup := range m.duplicatedFields() {
		columns = append(columns, schema.Column{Name: dup.column, DataType: dup.pgType, Nullable: true})
	}
	if m.isHierarchy() {
		columns = append(columns, schema.Column{
			Name:      DocumentTypeColumn,
			DataType:  "varchar",
			Nullable:  true,
			Directive: fmt.Sprintf("DEFAULT %s", quoteLiteral(BaseDocumentType)),
		})
	}
	for i := range columns {
		columns[i].OrdPos = i + 1
	}

	table := &schema.Table{
		Schema:     name.Schema,
		Name:       name.Name,
		Columns:    columns,
		PrimaryKey: &schema.PrimaryKey{Columns: []string{IDColumn}},
	}
	for _, fk := range m.foreignKeys {
		table.ForeignKeys = append(table.ForeignKeys, fk.schemaForeignKey(name))
	}
	return table
}

// SelectFields lists the columns read back to rebuild a document.
func (m *DocumentMapping) SelectFields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields := []string{DataColumn, IDColumn}
	if m.isHierarchy() {
		fields = append(fields, DocumentTypeColumn)
	}
	return append(fields, VersionColumn)
}
