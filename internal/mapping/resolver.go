package mapping

import (
	"github.com/hurou927/docmap/internal/doctype"
)

// FieldFor resolves a member name or dotted member path. Only members declared
// on the mapped type itself are addressable.
func (m *DocumentMapping) FieldFor(path string) (Field, error) {
	chain, err := m.docType.Path(path)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	key := memberPath(chain)

	m.mu.RLock()
	f, ok := m.fields[key]
	m.mu.RUnlock()
	if ok {
		return f, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fields[key]; ok {
		return f, nil
	}
	f = newJSONLocatorField(chain)
	m.putField(key, f)
	return f, nil
}

// DuplicateOption adjusts a duplicated column.
type DuplicateOption func(*duplicateOptions)

type duplicateOptions struct {
	column string
	pgType string
}

// WithColumnName overrides the derived column name.
func WithColumnName(name string) DuplicateOption {
	return func(o *duplicateOptions) { o.column = name }
}

// WithPgType overrides the derived column type.
func WithPgType(pgType string) DuplicateOption {
	return func(o *duplicateOptions) { o.pgType = pgType }
}

// DuplicateField promotes a member to its own column. Calling it again for the
// same member returns the existing field, now marked explicit.
func (m *DocumentMapping) DuplicateField(path string, opts ...DuplicateOption) (*DuplicatedField, error) {
	chain, err := m.docType.Path(path)
	if err != nil {
		return nil, configErrorf("cannot duplicate: %v", err)
	}
	var o duplicateOptions
	for _, opt := range opts {
		opt(&o)
	}
	key := memberPath(chain)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch existing := m.fields[key].(type) {
	case *IDField:
		return nil, configErrorf("cannot duplicate the id member %s of %s", key, m.docType.Name)
	case *DuplicatedField:
		if (o.column == "" || o.column == existing.column) && (o.pgType == "" || o.pgType == existing.pgType) {
			existing.explicit = true
			return existing, nil
		}
	}

	dup := newDuplicatedField(chain, o.column, o.pgType, true)
	if err := m.checkColumn(key, dup.column, nil); err != nil {
		return nil, err
	}
	m.putField(key, dup)
	return dup, nil
}

// DuplicatedFields returns the promoted fields in the order they were added.
func (m *DocumentMapping) DuplicatedFields() []*DuplicatedField {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.duplicatedFields()
}

func (m *DocumentMapping) duplicatedFields() []*DuplicatedField {
	var out []*DuplicatedField
	for _, key := range m.fieldOrder {
		if dup, ok := m.fields[key].(*DuplicatedField); ok {
			out = append(out, dup)
		}
	}
	return out
}

// IDMember returns the identity member.
func (m *DocumentMapping) IDMember() doctype.Member {
	return m.idMember
}

// IDPgType is the column type of the id column.
func (m *DocumentMapping) IDPgType() string {
	return PgTypeFor(m.idMember.Type)
}
