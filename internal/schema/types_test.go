package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnDDL(t *testing.T) {
	assert.Equal(t, "first_name varchar", Column{Name: "first_name", DataType: "varchar"}.DDL())
	assert.Equal(t, "id uuid PRIMARY KEY", Column{Name: "id", DataType: "uuid", Directive: "PRIMARY KEY"}.DDL())
}

func TestTableHelpers(t *testing.T) {
	tbl := &Table{
		Schema: "crm",
		Name:   "mt_doc_user",
		Columns: []Column{
			{Name: "id", DataType: "uuid"},
			{Name: "data", DataType: "jsonb"},
		},
		PrimaryKey:  &PrimaryKey{Columns: []string{"id"}},
		ForeignKeys: []ForeignKey{{Name: "mt_doc_user_team_id_fkey"}},
		Indexes:     []string{"mt_doc_user_idx_team_id"},
	}

	assert.Equal(t, "crm.mt_doc_user", tbl.QualifiedName())
	assert.Equal(t, TableName{Schema: "crm", Name: "mt_doc_user"}, tbl.TableName())
	assert.Equal(t, "crm.mt_doc_user", tbl.TableName().String())
	assert.Equal(t, []string{"id", "data"}, tbl.ColumnNames())
	assert.Equal(t, []string{"id"}, tbl.PKColumnNames())

	col, ok := tbl.Column("DATA")
	assert.True(t, ok)
	assert.Equal(t, "jsonb", col.DataType)
	_, ok = tbl.Column("missing")
	assert.False(t, ok)

	assert.True(t, tbl.HasForeignKey("mt_doc_user_team_id_fkey"))
	assert.False(t, tbl.HasForeignKey("other"))
	assert.True(t, tbl.HasIndex("mt_doc_user_idx_team_id"))
	assert.False(t, tbl.HasIndex("other"))

	assert.Nil(t, (&Table{}).PKColumnNames())
}
