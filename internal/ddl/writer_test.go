package ddl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/mapping"
)

type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
}

type Admin struct {
	ID uuid.UUID
}

type Issue struct {
	ID         uuid.UUID
	AssigneeID uuid.UUID
	Title      string
}

type Account struct {
	_ struct{} `doc:"optimistic"`

	ID int64
}

type Team struct {
	ID       uuid.UUID
	LeaderID uuid.UUID
}

type Member struct {
	ID     uuid.UUID
	TeamID uuid.UUID
}

func write(t *testing.T, m *mapping.DocumentMapping) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	return buf.String()
}

func TestWriteUserWithDuplicatedField(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	_, err = m.DuplicateField("FirstName")
	require.NoError(t, err)

	assert.Contains(t, m.Table().ColumnNames(), "first_name")

	out := write(t, m)
	assert.Contains(t, out, "CREATE TABLE public.mt_doc_user")
	assert.Contains(t, out, "    first_name varchar")
	assert.Contains(t, out, "CREATE OR REPLACE FUNCTION public.mt_upsert_user(")

	fnLine := out[strings.Index(out, "CREATE OR REPLACE FUNCTION"):]
	fnLine = fnLine[:strings.Index(fnLine, "\n")]
	assert.Contains(t, fnLine, "first_name")
	assert.Contains(t, out, "-- bulk insert: INSERT INTO public.mt_doc_user (id, data, mt_version, mt_dotnet_type, first_name) VALUES ($1, $2, $3, $4, $5);")
}

func TestWriteTableLayout(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)

	out := write(t, m)
	want := `CREATE TABLE public.mt_doc_user (
    id uuid PRIMARY KEY,
    data jsonb NOT NULL,
    mt_last_modified timestamp with time zone DEFAULT transaction_timestamp(),
    mt_version uuid NOT NULL DEFAULT (md5(random()::text || clock_timestamp()::text)::uuid),
    mt_dotnet_type varchar
);
`
	assert.True(t, strings.HasPrefix(out, want), out)
	assert.Contains(t, out, "ON CONFLICT (id) DO UPDATE SET data = doc, mt_version = doc_version, mt_dotnet_type = doc_dotnet_type, mt_last_modified = transaction_timestamp();")
	assert.NotContains(t, out, "current_version")
}

func TestWriteOrderOfSections(t *testing.T) {
	users, err := mapping.For[User]()
	require.NoError(t, err)
	issues, err := mapping.For[Issue]()
	require.NoError(t, err)
	_, err = issues.AddForeignKey("AssigneeID", users)
	require.NoError(t, err)

	out := write(t, issues)
	table := strings.Index(out, "CREATE TABLE public.mt_doc_issue")
	index := strings.Index(out, "CREATE INDEX IF NOT EXISTS mt_doc_issue_idx_assignee_id")
	fk := strings.Index(out, "ALTER TABLE public.mt_doc_issue ADD CONSTRAINT mt_doc_issue_assignee_id_fkey")
	fn := strings.Index(out, "CREATE OR REPLACE FUNCTION public.mt_upsert_issue")
	bulk := strings.Index(out, "-- bulk insert: INSERT INTO public.mt_doc_issue")

	for _, pos := range []int{table, index, fk, fn, bulk} {
		require.GreaterOrEqual(t, pos, 0, out)
	}
	assert.Less(t, table, index)
	assert.Less(t, index, fk)
	assert.Less(t, fk, fn)
	assert.Less(t, fn, bulk)
}

func TestWriteHierarchy(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)
	require.NoError(t, m.AddSubClass(doctype.MustOf[Admin]()))

	out := write(t, m)
	assert.Contains(t, out, "    mt_dotnet_type varchar,\n    mt_doc_type varchar DEFAULT 'BASE'\n);")
	assert.Contains(t, out, "doc_dotnet_type varchar, doc_type varchar)")
}

func TestWriteOptimisticConcurrency(t *testing.T) {
	m, err := mapping.For[Account]()
	require.NoError(t, err)

	out := write(t, m)
	assert.Contains(t, out, "CREATE TABLE public.mt_doc_account (\n    id bigint PRIMARY KEY,")
	assert.Contains(t, out, "doc_dotnet_type varchar, current_version uuid)")
	assert.Contains(t, out, "WHERE current_version IS NULL OR mt_doc_account.mt_version = current_version;")
}

func TestWriteUsesNamesAtWriteTime(t *testing.T) {
	m, err := mapping.For[User]()
	require.NoError(t, err)

	m.SetDatabaseSchemaName("crm")
	m.SetAlias("People")

	out := write(t, m)
	assert.Contains(t, out, "CREATE TABLE crm.mt_doc_people")
	assert.Contains(t, out, "CREATE OR REPLACE FUNCTION crm.mt_upsert_people(")
	assert.NotContains(t, out, "public.")
}

func TestWriteAll(t *testing.T) {
	r := mapping.NewRegistry()
	issues, err := mapping.MappingOf[Issue](r)
	require.NoError(t, err)
	users, err := mapping.MappingOf[User](r)
	require.NoError(t, err)
	_, err = issues.AddForeignKey("AssigneeID", users)
	require.NoError(t, err)
	accounts, err := mapping.MappingOf[Account](r)
	require.NoError(t, err)
	accounts.SetDatabaseSchemaName("billing")

	var buf bytes.Buffer
	require.NoError(t, WriteAll(&buf, r))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "CREATE SCHEMA IF NOT EXISTS billing;\n"), out)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS public.mt_hilo (")
	assert.Contains(t, out, "CREATE OR REPLACE FUNCTION public.mt_get_next_hi(entity varchar)")

	userPos := strings.Index(out, "CREATE TABLE public.mt_doc_user")
	issuePos := strings.Index(out, "CREATE TABLE public.mt_doc_issue")
	require.GreaterOrEqual(t, userPos, 0)
	assert.Less(t, userPos, issuePos)
	assert.Contains(t, out, "CREATE TABLE billing.mt_doc_account")
}

func TestWriteAllWithoutHilo(t *testing.T) {
	r := mapping.NewRegistry()
	_, err := mapping.MappingOf[User](r)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteAll(&buf, r))
	assert.NotContains(t, buf.String(), "mt_hilo")
	assert.NotContains(t, buf.String(), "CREATE SCHEMA")
}

func TestOrderDefersCycles(t *testing.T) {
	teams, err := mapping.For[Team]()
	require.NoError(t, err)
	members, err := mapping.For[Member]()
	require.NoError(t, err)
	_, err = teams.AddForeignKey("LeaderID", members)
	require.NoError(t, err)
	_, err = members.AddForeignKey("TeamID", teams)
	require.NoError(t, err)

	ordered, deferred := Order([]*mapping.DocumentMapping{teams, members})
	require.Len(t, ordered, 2)
	assert.True(t, deferred[teams])
	assert.True(t, deferred[members])

	var buf bytes.Buffer
	require.NoError(t, WriteMappings(&buf, "public", []*mapping.DocumentMapping{teams, members}))
	out := buf.String()

	lastTable := strings.LastIndex(out, "CREATE TABLE")
	fk := strings.Index(out, "ALTER TABLE")
	require.GreaterOrEqual(t, fk, 0)
	assert.Greater(t, fk, lastTable)
}
