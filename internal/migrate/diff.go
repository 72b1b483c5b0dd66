// Package migrate compares document mappings with an existing database and
// produces the statements that bring the database in line.
package migrate

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurou927/docmap/internal/ddl"
	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

// Patch is the change set for one document table.
type Patch struct {
	Table      schema.TableName
	Statements []string
	// Warnings describe differences that are reported but never changed
	// automatically, such as column type changes and unmapped columns.
	Warnings []string
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return len(p.Statements) == 0
}

// Diff compares the mapping with the table found in the database. A nil
// existing table yields the full DDL of the mapping. upsert holds the argument
// lists of the upsert function overloads found in the database. The function
// is rebuilt when the column set changes or no overload has the argument list
// the mapping calls it with.
func Diff(m *mapping.DocumentMapping, existing *schema.Table, upsert []string) (*Patch, error) {
	desired := m.Table()
	p := &Patch{Table: desired.TableName()}

	if existing == nil {
		var buf bytes.Buffer
		if err := ddl.WriteMapping(&buf, m, false); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", desired.QualifiedName(), err)
		}
		p.Statements = append(p.Statements, buf.String())
		for _, fk := range m.ForeignKeys() {
			p.Statements = append(p.Statements, fk.ToDDL())
		}
		return p, nil
	}

	dups := make(map[string]*mapping.DuplicatedField)
	for _, dup := range m.DuplicatedFields() {
		dups[dup.ColumnName()] = dup
	}

	columnsChanged := false
	for _, col := range desired.Columns {
		have, ok := existing.Column(col.Name)
		if !ok {
			columnsChanged = true
			p.Statements = append(p.Statements,
				fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", desired.QualifiedName(), col.DDL()))
			if dup, ok := dups[col.Name]; ok {
				p.Statements = append(p.Statements,
					fmt.Sprintf("UPDATE %s AS d SET %s = %s;", desired.QualifiedName(), col.Name, dup.JSONLocator()))
			}
			continue
		}
		if NormalizeType(have.DataType) != NormalizeType(col.DataType) {
			p.Warnings = append(p.Warnings, fmt.Sprintf("column %s.%s is %s but the mapping expects %s",
				desired.QualifiedName(), col.Name, have.DataType, col.DataType))
		}
	}
	for _, col := range existing.Columns {
		if _, ok := desired.Column(col.Name); !ok {
			p.Warnings = append(p.Warnings, fmt.Sprintf("column %s.%s is not mapped", desired.QualifiedName(), col.Name))
		}
	}

	for _, idx := range m.Indexes() {
		if !existing.HasIndex(idx.IndexName()) {
			p.Statements = append(p.Statements, idx.ToDDL())
		}
	}
	for _, fk := range m.ForeignKeys() {
		if !existing.HasForeignKey(fk.KeyName()) {
			p.Statements = append(p.Statements, fk.ToDDL())
		}
	}

	if columnsChanged || !hasSignature(upsert, m.UpsertFunction().Signature()) {
		stmts, err := upsertStatements(m)
		if err != nil {
			return nil, err
		}
		p.Statements = append(p.Statements, stmts...)
	}
	return p, nil
}

// upsertStatements drops every overload of the upsert function and recreates it.
func upsertStatements(m *mapping.DocumentMapping) ([]string, error) {
	var buf bytes.Buffer
	if err := ddl.WriteUpsert(&buf, m); err != nil {
		return nil, fmt.Errorf("rendering upsert of %s: %w", m.TableName(), err)
	}
	return []string{
		fmt.Sprintf("DROP FUNCTION IF EXISTS %s;", m.UpsertFunctionName().QualifiedName()),
		strings.TrimSpace(buf.String()),
	}, nil
}

// hasSignature reports whether one of the catalog argument lists matches want,
// comparing argument names and normalized types.
func hasSignature(overloads []string, want []string) bool {
	for _, o := range overloads {
		var have []string
		if strings.TrimSpace(o) != "" {
			have = strings.Split(o, ", ")
		}
		if len(have) != len(want) {
			continue
		}
		match := true
		for i := range want {
			if !sameArgument(have[i], want[i]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func sameArgument(have, want string) bool {
	haveName, haveType, _ := strings.Cut(strings.TrimSpace(have), " ")
	wantName, wantType, _ := strings.Cut(strings.TrimSpace(want), " ")
	return haveName == wantName && NormalizeType(haveType) == NormalizeType(wantType)
}

var typeModifier = regexp.MustCompile(`\(.*\)$`)

// NormalizeType maps catalog type names (format_type output) and the names used
// in generated DDL onto one spelling.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = typeModifier.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	switch t {
	case "character varying":
		return "varchar"
	case "int", "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "bool":
		return "boolean"
	case "float8":
		return "double precision"
	case "decimal":
		return "numeric"
	case "timestamptz":
		return "timestamp with time zone"
	}
	return t
}
