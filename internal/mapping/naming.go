package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hurou927/docmap/internal/doctype"
)

// Fixed storage names. They are part of the database contract.
const (
	DefaultSchemaName = "public"

	TablePrefix  = "mt_doc_"
	UpsertPrefix = "mt_upsert_"

	IDColumn           = "id"
	DataColumn         = "data"
	LastModifiedColumn = "mt_last_modified"
	VersionColumn      = "mt_version"
	DotNetTypeColumn   = "mt_dotnet_type"
	DocumentTypeColumn = "mt_doc_type"

	// BaseDocumentType tags rows holding the hierarchy root itself.
	BaseDocumentType = "BASE"

	HiloTable    = "mt_hilo"
	HiloFunction = "mt_get_next_hi"
)

// DefaultAlias derives the alias of a type: its lower-cased name, qualified by
// the host type for nested declarations.
func DefaultAlias(t *doctype.Type) string {
	name := t.Name
	if t.Host != "" {
		name = t.Host + "_" + t.Name
	}
	return normalizeAlias(name)
}

// normalizeAlias lower-cases s and replaces anything that cannot appear in an
// unquoted identifier with an underscore.
func normalizeAlias(s string) string {
	s = toLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsDigit(r) || unicode.IsLower(r) {
			return r
		}
		return '_'
	}, s)
}

func normalizeSchema(s string) string {
	return toLower(strings.TrimSpace(s))
}

// toLower uses a fresh Caser per call; Casers are not safe for concurrent use.
func toLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// SnakeCase converts a Go member name to a column name: FirstName -> first_name,
// AssigneeID -> assignee_id, HTTPCode -> http_code.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 && runes[i-1] != '_' {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func columnNameFor(members []doctype.Member) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = SnakeCase(m.Name)
	}
	return strings.Join(parts, "_")
}

func memberPath(members []doctype.Member) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.Name
	}
	return strings.Join(parts, ".")
}
