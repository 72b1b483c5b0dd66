package mapping

import (
	"fmt"
	"strings"

	"github.com/hurou927/docmap/internal/doctype"
)

// Field locates a logical member of a document in SQL.
type Field interface {
	// Name is the dotted member path, e.g. "Address.City".
	Name() string
	Members() []doctype.Member
	// ColumnName is the snake-cased column the field has, or would have if duplicated.
	ColumnName() string
	PgType() string
	SQLLocator() string
}

// PgTypeFor returns the column type used for a member value type.
func PgTypeFor(v doctype.ValueType) string {
	switch v {
	case doctype.ValueUUID:
		return "uuid"
	case doctype.ValueInt32:
		return "integer"
	case doctype.ValueInt64:
		return "bigint"
	case doctype.ValueString:
		return "varchar"
	case doctype.ValueBool:
		return "boolean"
	case doctype.ValueDouble:
		return "double precision"
	case doctype.ValueDecimal:
		return "numeric"
	case doctype.ValueTimestamp:
		return "timestamp with time zone"
	}
	return "jsonb"
}

// IDField is the identity member, stored in the id column.
type IDField struct {
	member doctype.Member
}

func (f *IDField) Name() string              { return f.member.Name }
func (f *IDField) Members() []doctype.Member { return []doctype.Member{f.member} }
func (f *IDField) ColumnName() string        { return IDColumn }
func (f *IDField) PgType() string            { return PgTypeFor(f.member.Type) }
func (f *IDField) SQLLocator() string        { return "d." + IDColumn }

// JSONLocatorField is read out of the jsonb payload.
type JSONLocatorField struct {
	members []doctype.Member
	locator string
}

func newJSONLocatorField(members []doctype.Member) *JSONLocatorField {
	return &JSONLocatorField{
		members: members,
		locator: jsonLocator(members),
	}
}

func (f *JSONLocatorField) Name() string              { return memberPath(f.members) }
func (f *JSONLocatorField) Members() []doctype.Member { return f.members }
func (f *JSONLocatorField) ColumnName() string        { return columnNameFor(f.members) }
func (f *JSONLocatorField) SQLLocator() string        { return f.locator }

func (f *JSONLocatorField) PgType() string {
	return PgTypeFor(f.members[len(f.members)-1].Type)
}

// DuplicatedField is copied out of the payload into its own column.
type DuplicatedField struct {
	members  []doctype.Member
	column   string
	pgType   string
	explicit bool
}

func newDuplicatedField(members []doctype.Member, column, pgType string, explicit bool) *DuplicatedField {
	last := members[len(members)-1]
	if column == "" {
		column = last.Column
	}
	if column == "" {
		column = columnNameFor(members)
	}
	if pgType == "" {
		pgType = last.PgType
	}
	if pgType == "" {
		pgType = PgTypeFor(last.Type)
	}
	return &DuplicatedField{
		members:  members,
		column:   column,
		pgType:   pgType,
		explicit: explicit,
	}
}

func (f *DuplicatedField) Name() string              { return memberPath(f.members) }
func (f *DuplicatedField) Members() []doctype.Member { return f.members }
func (f *DuplicatedField) ColumnName() string        { return f.column }
func (f *DuplicatedField) PgType() string            { return f.pgType }
func (f *DuplicatedField) SQLLocator() string        { return "d." + f.column }

// IsExplicit reports whether the field was duplicated on request rather than
// promoted by the searching mode. Explicit duplicates survive mode changes.
func (f *DuplicatedField) IsExplicit() bool { return f.explicit }

// JSONLocator reads the value out of the payload instead of the column, for
// backfilling the column from existing rows.
func (f *DuplicatedField) JSONLocator() string { return jsonLocator(f.members) }

// JSONPath returns the payload keys leading to the value.
func (f *DuplicatedField) JSONPath() []string {
	keys := make([]string, len(f.members))
	for i, m := range f.members {
		keys[i] = m.Key()
	}
	return keys
}

func jsonLocator(members []doctype.Member) string {
	var b strings.Builder
	b.WriteString("d." + DataColumn)
	for _, m := range members[:len(members)-1] {
		fmt.Fprintf(&b, " -> %s", quoteLiteral(m.Key()))
	}

	last := members[len(members)-1]
	if !last.Type.IsScalar() {
		fmt.Fprintf(&b, " -> %s", quoteLiteral(last.Key()))
		return b.String()
	}

	fmt.Fprintf(&b, " ->> %s", quoteLiteral(last.Key()))
	if last.Type == doctype.ValueString {
		return b.String()
	}
	return fmt.Sprintf("CAST(%s as %s)", b.String(), PgTypeFor(last.Type))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
