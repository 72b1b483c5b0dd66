package config

import (
	"fmt"
	"strings"

	"github.com/hurou927/docmap/internal/doctype"
)

// ToType converts the declaration into a type descriptor.
func (d *TypeDecl) ToType() (*doctype.Type, error) {
	kind, err := parseKind(d.Kind)
	if err != nil {
		return nil, err
	}
	members, err := toMembers(d.Members)
	if err != nil {
		return nil, err
	}
	return &doctype.Type{
		Name:    d.Name,
		PkgPath: d.Package,
		Host:    d.Host,
		Kind:    kind,
		Members: members,
	}, nil
}

// ToType converts the declaration, including its type-level options.
func (d *Document) ToType() (*doctype.Type, error) {
	t, err := d.TypeDecl.ToType()
	if err != nil {
		return nil, err
	}
	searching, err := doctype.ParseSearching(d.Searching)
	if err != nil {
		return nil, err
	}
	t.Options = doctype.Options{
		Alias:                 d.Alias,
		Schema:                d.Schema,
		OptimisticConcurrency: d.Optimistic,
		Searching:             searching,
		IDStrategy:            d.IDStrategy,
	}
	return t, nil
}

func parseKind(s string) (doctype.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concrete", "struct":
		return doctype.Concrete, nil
	case "abstract":
		return doctype.Abstract, nil
	case "interface":
		return doctype.Interface, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func toMembers(decls []MemberDecl) ([]doctype.Member, error) {
	members := make([]doctype.Member, 0, len(decls))
	seen := make(map[string]bool, len(decls))
	for i, md := range decls {
		if md.Name == "" {
			return nil, fmt.Errorf("members[%d].name is required", i)
		}
		if seen[md.Name] {
			return nil, fmt.Errorf("member %s is declared twice", md.Name)
		}
		seen[md.Name] = true

		vt, err := memberType(md)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", md.Name, err)
		}
		nested, err := toMembers(md.Members)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", md.Name, err)
		}

		m := doctype.Member{
			Name:      md.Name,
			JSONName:  md.JSON,
			Type:      vt,
			Duplicate: md.Duplicate || md.Column != "",
			Column:    md.Column,
			PgType:    md.PgType,
			ID:        md.ID,
			Members:   nested,
		}
		if md.Field {
			m.Kind = doctype.Field
		}
		members = append(members, m)
	}
	return members, nil
}

// memberType defaults to object for members with nested members and string otherwise.
func memberType(md MemberDecl) (doctype.ValueType, error) {
	if md.Type == "" {
		if len(md.Members) > 0 {
			return doctype.ValueObject, nil
		}
		return doctype.ValueString, nil
	}
	return doctype.ParseValueType(md.Type)
}
