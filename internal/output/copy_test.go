package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/schema"
)

func TestEscapeCopyValue(t *testing.T) {
	id := uuid.MustParse("0190f3c4-5b1a-7c3e-8a52-1f0e2d3c4b5a")
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, `\N`},
		{"true", true, "t"},
		{"false", false, "f"},
		{"uuid", id, "0190f3c4-5b1a-7c3e-8a52-1f0e2d3c4b5a"},
		{"jsonb", json.RawMessage(`{"Name":"a\tb"}`), `{"Name":"a\\tb"}`},
		{"bytea", []byte{0xde, 0xad}, `\\xdead`},
		{"time", ts, "2024-03-01 12:30:00+00"},
		{"float", 1.5, "1.5"},
		{"large float", 12345678.0, "12345678"},
		{"string escapes", "a\\b\nc\td\re", `a\\b\nc\td\re`},
		{"int", int64(42), "42"},
		{"object", map[string]any{"a": 1.0}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeCopyValue(tt.in))
		})
	}
}

func TestWriteTableData(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader(false))
	require.NoError(t, w.WriteTableData(
		schema.TableName{Schema: "public", Name: "mt_doc_user"},
		[]string{"id", "data", "first_name"},
		[][]any{
			{"u1", json.RawMessage(`{"FirstName":"Ann"}`), "Ann"},
			{"u2", json.RawMessage(`{}`), nil},
		},
	))
	require.NoError(t, w.WriteFooter(false))

	want := "BEGIN;\n\n" +
		"COPY public.mt_doc_user (id, data, first_name) FROM stdin;\n" +
		"u1\t{\"FirstName\":\"Ann\"}\tAnn\n" +
		"u2\t{}\t\\N\n" +
		"\\.\n\n" +
		"COMMIT;\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTableDataReplicaAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader(true))
	require.NoError(t, w.WriteTableData(schema.TableName{Schema: "public", Name: "mt_doc_user"}, []string{"id"}, nil))
	require.NoError(t, w.WriteFooter(true))

	assert.Equal(t, "BEGIN;\nSET session_replication_role = 'replica';\n\nSET session_replication_role = 'origin';\nCOMMIT;\n", buf.String())
}

func TestWriteTableDataRejectsShortRows(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	err := w.WriteTableData(schema.TableName{Schema: "public", Name: "t"}, []string{"id", "data"}, [][]any{{"only"}})
	assert.Error(t, err)
}
