package doctype

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TagName is the struct tag key read by Reflect.
const TagName = "doc"

var (
	uuidType = reflect.TypeOf(uuid.UUID{})
	timeType = reflect.TypeOf(time.Time{})
)

// Of scans T into a Type.
func Of[T any]() (*Type, error) {
	return Reflect(reflect.TypeOf((*T)(nil)).Elem())
}

// MustOf is Of for package-level declarations and tests.
func MustOf[T any]() *Type {
	t, err := Of[T]()
	if err != nil {
		panic(err)
	}
	return t
}

// Reflect scans a struct or interface type once and returns its declarative
// description. Exported struct fields become property members unless tagged
// "field"; interface getters (no arguments, one result) become property members.
// Type-level options are read from a blank field:
//
//	_ struct{} `doc:"alias=users,schema=crm,optimistic,searching=duplicated"`
func Reflect(rt reflect.Type) (*Type, error) {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	t := &Type{
		Name:     sanitizeTypeName(rt.Name()),
		PkgPath:  rt.PkgPath(),
		TypeArgs: typeArgs(rt.Name()),
	}
	if t.Name == "" {
		return nil, fmt.Errorf("cannot map anonymous type %s", rt)
	}

	switch rt.Kind() {
	case reflect.Struct:
		seen := map[reflect.Type]bool{rt: true}
		members, err := structMembers(rt, seen)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", rt, err)
		}
		t.Members = members
		if err := applyTypeTag(t, rt); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", rt, err)
		}
	case reflect.Interface:
		t.Kind = Interface
		t.Members = interfaceMembers(rt)
	default:
		return nil, fmt.Errorf("cannot map %s: only structs and interfaces can be documents", rt)
	}

	return t, nil
}

func structMembers(rt reflect.Type, seen map[reflect.Type]bool) ([]Member, error) {
	var members []Member
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.Name == "_" || (!sf.IsExported() && !sf.Anonymous) {
			continue
		}
		tag, hasTag := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		jsonName, skip := jsonKey(sf)
		if skip {
			continue
		}

		ft := sf.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		// embedded structs are flattened the way encoding/json flattens them
		if sf.Anonymous && ft.Kind() == reflect.Struct && jsonName == "" && !hasTag {
			if seen[ft] {
				continue
			}
			seen[ft] = true
			inner, err := structMembers(ft, seen)
			delete(seen, ft)
			if err != nil {
				return nil, err
			}
			members = append(members, inner...)
			continue
		}
		if !sf.IsExported() {
			continue
		}

		m := Member{
			Name:     sf.Name,
			JSONName: jsonName,
			Kind:     Property,
			Type:     valueTypeOf(ft),
		}
		if err := applyMemberTag(&m, tag); err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if m.Type == ValueObject && ft.Kind() == reflect.Struct && !seen[ft] {
			seen[ft] = true
			nested, err := structMembers(ft, seen)
			delete(seen, ft)
			if err != nil {
				return nil, err
			}
			m.Members = nested
		}
		members = append(members, m)
	}
	return members, nil
}

func interfaceMembers(rt reflect.Type) []Member {
	var members []Member
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if method.Type.NumIn() != 0 || method.Type.NumOut() != 1 {
			continue
		}
		members = append(members, Member{
			Name: method.Name,
			Kind: Property,
			Type: valueTypeOf(method.Type.Out(0)),
		})
	}
	return members
}

func jsonKey(sf reflect.StructField) (string, bool) {
	tag, ok := sf.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return "", true
	}
	return name, false
}

func valueTypeOf(rt reflect.Type) ValueType {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	switch rt {
	case uuidType:
		return ValueUUID
	case timeType:
		return ValueTimestamp
	}
	switch rt.Kind() {
	case reflect.String:
		return ValueString
	case reflect.Bool:
		return ValueBool
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return ValueInt32
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return ValueInt64
	case reflect.Float32, reflect.Float64:
		return ValueDouble
	case reflect.Struct, reflect.Map:
		return ValueObject
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			return ValueString
		}
		return ValueArray
	}
	return ValueOther
}

// applyMemberTag reads `doc:"[column],duplicate,field,id,pgtype=<type>"`.
func applyMemberTag(m *Member, tag string) error {
	if tag == "" {
		return nil
	}
	parts := strings.Split(tag, ",")
	if col := strings.TrimSpace(parts[0]); col != "" {
		m.Column = col
		m.Duplicate = true
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "duplicate":
			m.Duplicate = true
		case "field":
			m.Kind = Field
		case "id":
			m.ID = true
		case "pgtype":
			m.PgType = value
		case "":
		default:
			return fmt.Errorf("unknown %s tag option %q", TagName, key)
		}
	}
	return nil
}

func applyTypeTag(t *Type, rt reflect.Type) error {
	var tag string
	for i := 0; i < rt.NumField(); i++ {
		if sf := rt.Field(i); sf.Name == "_" {
			tag = sf.Tag.Get(TagName)
			break
		}
	}
	if tag == "" {
		return nil
	}
	for _, opt := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "alias":
			t.Options.Alias = value
		case "schema":
			t.Options.Schema = value
		case "optimistic":
			t.Options.OptimisticConcurrency = true
		case "searching":
			s, err := ParseSearching(value)
			if err != nil {
				return err
			}
			t.Options.Searching = s
		case "abstract":
			t.Kind = Abstract
		case "host":
			t.Host = value
		case "idstrategy":
			t.Options.IDStrategy = value
		case "":
		default:
			return fmt.Errorf("unknown %s type option %q", TagName, key)
		}
	}
	return nil
}

// sanitizeTypeName turns generic instantiations like Pair[pkg.User,*other.Team]
// into Pair_User_Team.
func sanitizeTypeName(name string) string {
	i := strings.IndexByte(name, '[')
	if i < 0 {
		return name
	}
	parts := []string{name[:i]}
	for _, tok := range strings.FieldsFunc(name[i:], func(r rune) bool {
		return strings.ContainsRune("[]*, ", r)
	}) {
		if j := strings.LastIndexByte(tok, '.'); j >= 0 {
			tok = tok[j+1:]
		}
		if tok != "" {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, "_")
}

func typeArgs(name string) string {
	i := strings.IndexByte(name, '[')
	if i < 0 {
		return ""
	}
	return strings.TrimSuffix(name[i+1:], "]")
}
