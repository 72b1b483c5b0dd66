package mapping

import (
	"github.com/hurou927/docmap/internal/doctype"
)

// SubClass is a concrete type stored in its root's table.
type SubClass struct {
	Type  *doctype.Type
	Alias string
}

// AddSubClass registers t as a subtype stored in this mapping's table. The alias
// is the discriminator value; it defaults to the type's alias. Registering the
// same type twice is a no-op.
func (m *DocumentMapping) AddSubClass(t *doctype.Type, alias ...string) error {
	if t == nil {
		return configErrorf("subclass of %s is nil", m.docType.Name)
	}
	if t.Key() == m.docType.Key() {
		return configErrorf("%s cannot be a subclass of itself", t.Name)
	}

	a := DefaultAlias(t)
	if len(alias) > 0 && alias[0] != "" {
		a = normalizeAlias(alias[0])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.subClasses {
		if sc.Type.Key() == t.Key() {
			return nil
		}
		if sc.Alias == a {
			return configErrorf("subclass alias %q of %s is already used by %s", a, m.docType.Name, sc.Type.Name)
		}
	}
	m.subClasses = append(m.subClasses, SubClass{Type: t, Alias: a})
	return nil
}

// SubClasses returns the registered subclasses in registration order.
func (m *DocumentMapping) SubClasses() []SubClass {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SubClass(nil), m.subClasses...)
}

// IsHierarchy reports whether rows need a discriminator: the type is abstract,
// an interface, or has subclasses.
func (m *DocumentMapping) IsHierarchy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHierarchy()
}

func (m *DocumentMapping) isHierarchy() bool {
	return m.docType.Kind != doctype.Concrete || len(m.subClasses) > 0
}

// DocumentTypeFor returns the discriminator value stored for t.
func (m *DocumentMapping) DocumentTypeFor(t *doctype.Type) (string, error) {
	if t == nil || t.Key() == m.docType.Key() {
		return BaseDocumentType, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sc := range m.subClasses {
		if sc.Type.Key() == t.Key() {
			return sc.Alias, nil
		}
	}
	return "", configErrorf("%s is not a subclass of %s", t.Name, m.docType.Name)
}

// TypeFor maps a discriminator value back to its type.
func (m *DocumentMapping) TypeFor(docType string) (*doctype.Type, bool) {
	if docType == BaseDocumentType || docType == "" {
		return m.docType, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sc := range m.subClasses {
		if sc.Alias == docType {
			return sc.Type, true
		}
	}
	return nil, false
}
