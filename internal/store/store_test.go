package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/config"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/mapping"
)

const sample = `
schema: app
documents:
  - name: Issue
    members:
      - name: ID
        type: long
      - name: Title
      - name: AssigneeID
        type: uuid
    hilo:
      max_lo: 25
    duplicates:
      - member: Title
        column: issue_title
        pgtype: text
    foreign_keys:
      - member: AssigneeID
        references: User
    indexes:
      - columns: [issue_title]
        method: hash
        name: issue_title_lookup
    subclasses:
      - name: Bug
        alias: bugs
  - name: User
    schema: crm
    optimistic: true
    members:
      - name: ID
        type: uuid
      - name: UserName
        duplicate: true
    gin_index_data: true
events:
  - name: IssueOpened
aggregates:
  - document: Issue
    alias: issue_stream
`

func open(t *testing.T, yaml string) *Store {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	s, err := Open(cfg)
	require.NoError(t, err)
	return s
}

func TestOpen(t *testing.T) {
	s := open(t, sample)

	issues, err := s.Mapping("issue")
	require.NoError(t, err)
	users, err := s.Mapping("User")
	require.NoError(t, err)
	assert.Equal(t, []*mapping.DocumentMapping{issues, users}, s.Mappings())

	assert.Equal(t, "app.mt_doc_issue", issues.TableName().QualifiedName())
	assert.Equal(t, "crm.mt_doc_user", users.TableName().QualifiedName())
	assert.True(t, users.UseOptimisticConcurrency())

	hilo, ok := issues.IDStrategy().(*identity.HiloStrategy)
	require.True(t, ok)
	assert.Equal(t, int64(25), hilo.Settings.MaxLo)
	assert.Equal(t, identity.DefaultHiloSettings().MaxAdvanceToNextHiAttempts, hilo.Settings.MaxAdvanceToNextHiAttempts)

	var cols []string
	for _, c := range issues.Table().Columns {
		cols = append(cols, c.Name+" "+c.DataType)
	}
	assert.Equal(t, []string{
		"id bigint", "data jsonb", "mt_last_modified timestamp with time zone", "mt_version uuid",
		"mt_dotnet_type varchar", "issue_title text", "assignee_id uuid", "mt_doc_type varchar",
	}, cols)

	fks := issues.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Same(t, users, fks[0].Reference())

	idx := issues.Indexes()
	require.Len(t, idx, 2)
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS issue_title_lookup ON app.mt_doc_issue USING hash (issue_title);", idx[0].ToDDL())
	assert.Equal(t, "mt_doc_issue_idx_assignee_id", idx[1].IndexName())

	require.Len(t, users.Indexes(), 1)
	assert.Equal(t, mapping.Gin, users.Indexes()[0].Method)

	bug, err := s.SubClass("Issue", "bug")
	require.NoError(t, err)
	alias, err := issues.DocumentTypeFor(bug)
	require.NoError(t, err)
	assert.Equal(t, "bugs", alias)

	none, err := s.SubClass("Issue", "")
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = s.SubClass("Issue", "Feature")
	assert.Error(t, err)
	_, err = s.Mapping("Nope")
	assert.Error(t, err)

	_, ok = s.Events.EventMappingByName("issue_opened")
	assert.True(t, ok)
	agg, ok := s.Events.AggregateTypeFor("issue_stream")
	require.True(t, ok)
	assert.Equal(t, "Issue", agg.Name)
	assert.Equal(t, "app", s.Events.DatabaseSchemaName())
}

func TestOpenDefaultIDStrategy(t *testing.T) {
	s := open(t, `
id_strategy: comb
documents:
  - name: Order
    members:
      - name: ID
        type: uuid
        field: true
`)
	m, err := s.Mapping("Order")
	require.NoError(t, err)
	assert.IsType(t, &identity.CombGuidStrategy{}, m.IDStrategy())
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no id member", "documents:\n  - name: A\n    members:\n      - name: Title\n"},
		{"hilo on guid", "documents:\n  - name: A\n    members:\n      - name: ID\n        type: uuid\n    hilo:\n      max_lo: 5\n"},
		{"unknown duplicate", "documents:\n  - name: A\n    members:\n      - name: ID\n        type: uuid\n    duplicates:\n      - member: Nope\n"},
		{"bad index method", "documents:\n  - name: A\n    members:\n      - name: ID\n        type: uuid\n    indexes:\n      - columns: [data]\n        method: rtree\n"},
		{"fk type mismatch", "documents:\n  - name: A\n    members:\n      - name: ID\n        type: uuid\n      - name: BID\n        type: string\n    foreign_keys:\n      - member: BID\n        references: B\n  - name: B\n    members:\n      - name: ID\n        type: uuid\n"},
		{"reserved duplicate column", "documents:\n  - name: A\n    members:\n      - name: ID\n        type: uuid\n      - name: Title\n    duplicates:\n      - member: Title\n        column: data\n"},
		{"alias conflict", "documents:\n  - name: A\n    alias: same\n    members:\n      - name: ID\n        type: uuid\n  - name: B\n    alias: same\n    members:\n      - name: ID\n        type: uuid\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = Open(cfg)
			assert.Error(t, err)
		})
	}
}

func TestOpenRejectsUnknownIDStrategy(t *testing.T) {
	_, err := Open(&config.Config{Schema: "public", IDStrategy: "snowflake"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id_strategy")
}
