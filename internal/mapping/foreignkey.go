package mapping

import (
	"fmt"

	"github.com/hurou927/docmap/internal/schema"
)

// ForeignKeyDefinition links a duplicated column to another mapping's id.
type ForeignKeyDefinition struct {
	parent    *DocumentMapping
	reference *DocumentMapping

	ColumnName string
}

// KeyName returns <table>_<column>_fkey.
func (fk *ForeignKeyDefinition) KeyName() string {
	return fk.parent.TableName().Name + "_" + fk.ColumnName + "_fkey"
}

// Reference returns the referenced mapping.
func (fk *ForeignKeyDefinition) Reference() *DocumentMapping {
	return fk.reference
}

// ReferenceTable returns the referenced table name as of now.
func (fk *ForeignKeyDefinition) ReferenceTable() schema.TableName {
	return fk.reference.TableName()
}

// ToDDL renders the ALTER TABLE ... ADD CONSTRAINT statement.
func (fk *ForeignKeyDefinition) ToDDL() string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		fk.parent.TableName().QualifiedName(), fk.KeyName(), fk.ColumnName,
		fk.ReferenceTable().QualifiedName(), IDColumn)
}

// schemaForeignKey is called with the parent's read lock held; parent is the
// parent's table name computed under that lock.
func (fk *ForeignKeyDefinition) schemaForeignKey(parent schema.TableName) schema.ForeignKey {
	ref := parent
	if fk.reference != fk.parent {
		ref = fk.reference.TableName()
	}
	return schema.ForeignKey{
		Name:          parent.Name + "_" + fk.ColumnName + "_fkey",
		ChildSchema:   parent.Schema,
		ChildTable:    parent.Name,
		ChildColumns:  []string{fk.ColumnName},
		ParentSchema:  ref.Schema,
		ParentTable:   ref.Name,
		ParentColumns: []string{IDColumn},
		IsSelfRef:     fk.reference == fk.parent,
	}
}

// AddForeignKey duplicates the member at path, indexes it, and makes it
// reference the id of ref. The member type must match ref's id type.
func (m *DocumentMapping) AddForeignKey(path string, ref *DocumentMapping) (*ForeignKeyDefinition, error) {
	if ref == nil {
		return nil, configErrorf("foreign key %s of %s references nothing", path, m.docType.Name)
	}
	f, err := m.FieldFor(path)
	if err != nil {
		return nil, err
	}
	if f.PgType() != ref.IDPgType() {
		return nil, configErrorf("foreign key %s of %s is %s but %s ids are %s",
			path, m.docType.Name, f.PgType(), ref.docType.Name, ref.IDPgType())
	}
	dup, err := m.DuplicateField(path)
	if err != nil {
		return nil, err
	}
	m.AddIndex(dup.ColumnName())

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fk := range m.foreignKeys {
		if fk.ColumnName == dup.ColumnName() && fk.reference == ref {
			return fk, nil
		}
	}
	fk := &ForeignKeyDefinition{parent: m, reference: ref, ColumnName: dup.ColumnName()}
	m.foreignKeys = append(m.foreignKeys, fk)
	return fk, nil
}

// ForeignKeys returns the foreign key definitions in the order they were added.
func (m *DocumentMapping) ForeignKeys() []*ForeignKeyDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ForeignKeyDefinition(nil), m.foreignKeys...)
}
