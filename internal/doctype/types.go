package doctype

import (
	"fmt"
	"strings"
)

// Kind tells whether a type can be stored directly.
type Kind int

const (
	Concrete  Kind = iota
	Abstract       // no concrete leaf, always stored as a hierarchy
	Interface      // interface root, always stored as a hierarchy
)

// MemberKind distinguishes property-style members from plain fields.
type MemberKind int

const (
	Property MemberKind = iota
	Field
)

func (k MemberKind) String() string {
	if k == Field {
		return "field"
	}
	return "property"
}

// ValueType is the storage-relevant shape of a member value.
type ValueType string

const (
	ValueUUID      ValueType = "uuid"
	ValueInt32     ValueType = "int32"
	ValueInt64     ValueType = "int64"
	ValueString    ValueType = "string"
	ValueBool      ValueType = "bool"
	ValueDouble    ValueType = "double"
	ValueDecimal   ValueType = "decimal"
	ValueTimestamp ValueType = "timestamp"
	ValueObject    ValueType = "object"
	ValueArray     ValueType = "array"
	ValueOther     ValueType = "other"
)

// IsScalar reports whether values of this type fit in a single relational column.
func (v ValueType) IsScalar() bool {
	switch v {
	case ValueObject, ValueArray, ValueOther:
		return false
	}
	return true
}

// ParseValueType maps the names used in configuration files onto a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uuid", "guid":
		return ValueUUID, nil
	case "int", "int32", "integer":
		return ValueInt32, nil
	case "int64", "long", "bigint":
		return ValueInt64, nil
	case "string", "text", "varchar":
		return ValueString, nil
	case "bool", "boolean":
		return ValueBool, nil
	case "double", "float", "float64", "float32":
		return ValueDouble, nil
	case "decimal", "numeric":
		return ValueDecimal, nil
	case "timestamp", "time", "datetime":
		return ValueTimestamp, nil
	case "object", "struct":
		return ValueObject, nil
	case "array", "list", "slice":
		return ValueArray, nil
	}
	return "", fmt.Errorf("unknown value type %q", s)
}

// Searching is the type-level property searching mode.
type Searching int

const (
	// SearchJSONLocatorOnly reads members out of the payload unless explicitly duplicated.
	SearchJSONLocatorOnly Searching = iota
	// SearchDuplicated promotes every top-level scalar member to its own column.
	SearchDuplicated
)

func (s Searching) String() string {
	if s == SearchDuplicated {
		return "duplicated"
	}
	return "json_locator_only"
}

// ParseSearching parses a searching mode name.
func ParseSearching(s string) (Searching, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json_locator_only", "jsonlocatoronly", "locator":
		return SearchJSONLocatorOnly, nil
	case "duplicated", "duplicate", "promote":
		return SearchDuplicated, nil
	}
	return 0, fmt.Errorf("unknown searching mode %q", s)
}

// Member describes one addressable member of a document type.
type Member struct {
	Name     string
	JSONName string
	Kind     MemberKind
	Type     ValueType

	// Duplicate requests promotion to a real column.
	Duplicate bool
	// Column overrides the derived column name of a duplicated member.
	Column string
	// PgType overrides the derived column type of a duplicated member.
	PgType string
	// ID marks the identity member explicitly.
	ID bool

	Members []Member
}

// Key returns the name the member has inside the JSON payload.
func (m Member) Key() string {
	if m.JSONName != "" {
		return m.JSONName
	}
	return m.Name
}

// Options are the type-level declarations.
type Options struct {
	Alias                 string
	Schema                string
	OptimisticConcurrency bool
	Searching             Searching
	// IDStrategy names an explicit identity strategy ("guid", "comb", "hilo", "string").
	IDStrategy string
}

// Type is the declarative description of a mapped document type.
type Type struct {
	Name    string
	PkgPath string
	// Host is the enclosing type name for types declared inside another type.
	Host string
	// TypeArgs is the type argument list of a generic instantiation, with
	// package paths, as reported by reflect.
	TypeArgs string
	Kind     Kind
	Members  []Member
	Options  Options
}

// Key identifies the type within a registry.
func (t *Type) Key() string {
	var b strings.Builder
	if t.PkgPath != "" {
		b.WriteString(t.PkgPath)
		b.WriteByte('.')
	}
	if t.Host != "" {
		b.WriteString(t.Host)
		b.WriteByte('.')
	}
	b.WriteString(t.Name)
	if t.TypeArgs != "" {
		b.WriteByte('[')
		b.WriteString(t.TypeArgs)
		b.WriteByte(']')
	}
	return b.String()
}

// FullName is the name stored in the type-tag column.
func (t *Type) FullName() string {
	return t.Key()
}

// Member looks up a top-level member by name. An exact match wins over a
// case-insensitive one.
func (t *Type) Member(name string) (Member, bool) {
	return findMember(t.Members, name)
}

func findMember(members []Member, name string) (Member, bool) {
	for _, m := range members {
		if m.Name == name {
			return m, true
		}
	}
	for _, m := range members {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Member{}, false
}

// Path resolves a dotted member path into the chain of members it walks.
func (t *Type) Path(path string) ([]Member, error) {
	if path == "" {
		return nil, fmt.Errorf("empty member path")
	}
	members := t.Members
	var chain []Member
	for _, part := range strings.Split(path, ".") {
		m, ok := findMember(members, part)
		if !ok {
			return nil, fmt.Errorf("type %s has no member %q", t.Name, path)
		}
		chain = append(chain, m)
		members = m.Members
	}
	return chain, nil
}
