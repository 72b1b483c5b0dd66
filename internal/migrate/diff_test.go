package migrate

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

type User struct {
	ID        uuid.UUID
	FirstName string
	Age       int
}

type Issue struct {
	ID         uuid.UUID
	AssigneeID uuid.UUID
}

// existingTable returns the table as the catalog would report it for a mapping
// created before any field was duplicated.
func existingTable(name string, extra ...schema.Column) *schema.Table {
	cols := []schema.Column{
		{Name: "id", DataType: "uuid"},
		{Name: "data", DataType: "jsonb"},
		{Name: "mt_last_modified", DataType: "timestamp with time zone"},
		{Name: "mt_version", DataType: "uuid"},
		{Name: "mt_dotnet_type", DataType: "character varying"},
	}
	return &schema.Table{
		Schema:     "public",
		Name:       name,
		Columns:    append(cols, extra...),
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}
}

// userUpsert is the argument list the catalog reports for the upsert function
// of a User mapping without duplicated fields.
const userUpsert = "doc_id uuid, doc jsonb, doc_version uuid, doc_dotnet_type character varying"

func TestDiffNewTable(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)

	p, err := Diff(m, nil, nil)
	require.NoError(t, err)
	require.Len(t, p.Statements, 1)
	assert.Contains(t, p.Statements[0], "CREATE TABLE public.mt_doc_user")
	assert.Contains(t, p.Statements[0], "CREATE OR REPLACE FUNCTION public.mt_upsert_user")
	assert.Equal(t, "public.mt_doc_user", p.Table.QualifiedName())
}

func TestDiffUpToDate(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)

	p, err := Diff(m, existingTable("mt_doc_user"), []string{userUpsert})
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Empty(t, p.Warnings)
}

func TestDiffAddsDuplicatedColumn(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	_, err = m.DuplicateField("FirstName")
	require.NoError(t, err)
	m.AddIndex("first_name")

	p, err := Diff(m, existingTable("mt_doc_user"), []string{userUpsert})
	require.NoError(t, err)
	require.Len(t, p.Statements, 5)
	assert.Equal(t, "ALTER TABLE public.mt_doc_user ADD COLUMN first_name varchar;", p.Statements[0])
	assert.Equal(t, "UPDATE public.mt_doc_user AS d SET first_name = d.data ->> 'FirstName';", p.Statements[1])
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS mt_doc_user_idx_first_name ON public.mt_doc_user (first_name);", p.Statements[2])
	assert.Equal(t, "DROP FUNCTION IF EXISTS public.mt_upsert_user;", p.Statements[3])
	assert.True(t, strings.HasPrefix(p.Statements[4], "CREATE OR REPLACE FUNCTION public.mt_upsert_user("))
	assert.Contains(t, p.Statements[4], "arg_first_name varchar")
}

func TestDiffBackfillCastsTypedValues(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	_, err = m.DuplicateField("Age")
	require.NoError(t, err)

	p, err := Diff(m, existingTable("mt_doc_user"), []string{userUpsert})
	require.NoError(t, err)
	assert.Contains(t, p.Statements, "UPDATE public.mt_doc_user AS d SET age = CAST(d.data ->> 'Age' as bigint);")
}

func TestDiffWarnings(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	_, err = m.DuplicateField("FirstName")
	require.NoError(t, err)

	existing := existingTable("mt_doc_user",
		schema.Column{Name: "first_name", DataType: "text"},
		schema.Column{Name: "legacy", DataType: "integer"},
	)
	p, err := Diff(m, existing, []string{userUpsert + ", arg_first_name character varying"})
	require.NoError(t, err)
	assert.True(t, p.Empty())
	require.Len(t, p.Warnings, 2)
	assert.Contains(t, p.Warnings[0], "first_name is text but the mapping expects varchar")
	assert.Contains(t, p.Warnings[1], "legacy is not mapped")
}

func TestDiffSkipsExistingIndexesAndForeignKeys(t *testing.T) {
	users, err := mapping.For[User]()
	require.NoError(t, err)
	issues, err := mapping.For[Issue]()
	require.NoError(t, err)
	_, err = issues.AddForeignKey("AssigneeID", users)
	require.NoError(t, err)

	existing := existingTable("mt_doc_issue", schema.Column{Name: "assignee_id", DataType: "uuid"})
	upsert := []string{userUpsert + ", arg_assignee_id uuid"}
	p, err := Diff(issues, existing, upsert)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE INDEX IF NOT EXISTS mt_doc_issue_idx_assignee_id ON public.mt_doc_issue (assignee_id);",
		"ALTER TABLE public.mt_doc_issue ADD CONSTRAINT mt_doc_issue_assignee_id_fkey FOREIGN KEY (assignee_id) REFERENCES public.mt_doc_user (id);",
	}, p.Statements)

	existing.Indexes = []string{"mt_doc_issue_idx_assignee_id"}
	existing.ForeignKeys = []schema.ForeignKey{{Name: "mt_doc_issue_assignee_id_fkey"}}
	p, err = Diff(issues, existing, upsert)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestDiffRebuildsUpsertOnSignatureChange(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	existing := existingTable("mt_doc_user")

	p, err := Diff(m, existing, nil)
	require.NoError(t, err)
	require.Len(t, p.Statements, 2)
	assert.Equal(t, "DROP FUNCTION IF EXISTS public.mt_upsert_user;", p.Statements[0])

	m.SetUseOptimisticConcurrency(true)
	p, err = Diff(m, existing, []string{userUpsert})
	require.NoError(t, err)
	require.Len(t, p.Statements, 2)
	assert.Equal(t, "DROP FUNCTION IF EXISTS public.mt_upsert_user;", p.Statements[0])
	assert.Contains(t, p.Statements[1], "current_version uuid")

	p, err = Diff(m, existing, []string{userUpsert, userUpsert + ", current_version uuid"})
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestHasSignature(t *testing.T) {
	want := []string{"doc_id uuid", "doc_dotnet_type varchar", "arg_at timestamptz"}
	assert.True(t, hasSignature([]string{"doc_id uuid, doc_dotnet_type character varying, arg_at timestamp with time zone"}, want))
	assert.False(t, hasSignature([]string{"doc_id uuid, doc_dotnet_type character varying"}, want))
	assert.False(t, hasSignature([]string{"id uuid, doc_dotnet_type character varying, arg_at timestamp with time zone"}, want))
	assert.False(t, hasSignature(nil, want))
	assert.True(t, hasSignature([]string{""}, nil))
}

func TestSplitForeignKeys(t *testing.T) {
	users, err := mapping.For[User]()
	require.NoError(t, err)
	issues, err := mapping.For[Issue]()
	require.NoError(t, err)
	_, err = issues.AddForeignKey("AssigneeID", users)
	require.NoError(t, err)

	p, err := Diff(issues, nil, nil)
	require.NoError(t, err)
	require.Len(t, p.Statements, 2)

	fks := splitForeignKeys(p, issues)
	require.Len(t, p.Statements, 1)
	assert.NotContains(t, p.Statements[0], "ADD CONSTRAINT")
	assert.Equal(t, []string{
		"ALTER TABLE public.mt_doc_issue ADD CONSTRAINT mt_doc_issue_assignee_id_fkey FOREIGN KEY (assignee_id) REFERENCES public.mt_doc_user (id);",
	}, fks.Statements)
}

func TestNormalizeType(t *testing.T) {
	for in, want := range map[string]string{
		"character varying":        "varchar",
		"character varying(255)":   "varchar",
		"VARCHAR":                  "varchar",
		"int4":                     "integer",
		"numeric(10,2)":            "numeric",
		"timestamptz":              "timestamp with time zone",
		"timestamp with time zone": "timestamp with time zone",
		"jsonb":                    "jsonb",
	} {
		assert.Equal(t, want, NormalizeType(in), in)
	}
}

func TestApplyDryRun(t *testing.T) {
	p := New(nil, false, true)
	patches := []*Patch{{
		Table:      schema.TableName{Schema: "public", Name: "mt_doc_user"},
		Statements: []string{"ALTER TABLE public.mt_doc_user ADD COLUMN first_name varchar;"},
	}}

	var buf bytes.Buffer
	require.NoError(t, p.Apply(context.Background(), &buf, patches))
	assert.Equal(t, "-- public.mt_doc_user\nALTER TABLE public.mt_doc_user ADD COLUMN first_name varchar;\n\n", buf.String())
}
