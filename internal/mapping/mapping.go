package mapping

import (
	"strings"
	"sync"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/schema"
)

// DocumentMapping describes how one document type is stored: names, fields,
// identity strategy, hierarchy, indexes and foreign keys. Table and upsert
// function views are derived from the current state on every call.
type DocumentMapping struct {
	docType *doctype.Type

	mu sync.RWMutex

	alias          string
	defaultSchema  string
	ctorSchema     string
	schemaOverride string

	searching  doctype.Searching
	optimistic bool

	idMember   doctype.Member
	idStrategy identity.Strategy

	// fields is keyed by dotted member path; fieldOrder keeps first-seen order.
	fields     map[string]Field
	fieldOrder []string

	subClasses  []SubClass
	indexes     []*IndexDefinition
	foreignKeys []*ForeignKeyDefinition
}

// Option configures a mapping at construction.
type Option func(*options)

type options struct {
	schema        string
	defaultSchema string
	idStrategy    func(*DocumentMapping) identity.Strategy
}

// WithSchema places the mapping in a schema other than the store default.
func WithSchema(name string) Option {
	return func(o *options) { o.schema = name }
}

// WithDefaultSchema sets the store-wide default schema.
func WithDefaultSchema(name string) Option {
	return func(o *options) { o.defaultSchema = name }
}

// WithIDStrategy supplies the id strategy for mappings that do not declare one.
// Returning nil falls back to selection by id type.
func WithIDStrategy(fn func(*DocumentMapping) identity.Strategy) Option {
	return func(o *options) { o.idStrategy = fn }
}

// For scans T and builds its mapping.
func For[T any](opts ...Option) (*DocumentMapping, error) {
	t, err := doctype.Of[T]()
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	return New(t, opts...)
}

// New builds the mapping of t. Names are resolved first, then the id field and
// the declared duplicated fields, then the id strategy.
func New(t *doctype.Type, opts ...Option) (*DocumentMapping, error) {
	if t == nil {
		return nil, configErrorf("document type is nil")
	}
	o := options{defaultSchema: DefaultSchemaName}
	for _, opt := range opts {
		opt(&o)
	}

	m := &DocumentMapping{
		docType:        t,
		alias:          DefaultAlias(t),
		defaultSchema:  normalizeSchema(o.defaultSchema),
		ctorSchema:     normalizeSchema(o.schema),
		schemaOverride: normalizeSchema(t.Options.Schema),
		optimistic:     t.Options.OptimisticConcurrency,
		fields:         make(map[string]Field),
	}
	if t.Options.Alias != "" {
		m.alias = normalizeAlias(t.Options.Alias)
	}

	id, err := findIDMember(t)
	if err != nil {
		return nil, err
	}
	m.idMember = id
	m.putField(id.Name, &IDField{member: id})

	if err := m.scanDuplicates(nil, t.Members); err != nil {
		return nil, err
	}
	m.searching = t.Options.Searching
	if m.searching == doctype.SearchDuplicated {
		if err := m.promoteScalars(); err != nil {
			return nil, err
		}
	}

	override, err := identity.Parse(t.Options.IDStrategy)
	if err != nil {
		return nil, configErrorf("type %s: %v", t.Name, err)
	}
	if override == nil && o.idStrategy != nil {
		override = o.idStrategy(m)
	}
	strategy, err := identity.Select(id.Type, id.Kind, override)
	if err != nil {
		return nil, configErrorf("type %s: %v", t.Name, err)
	}
	if err := checkStrategy(strategy, id); err != nil {
		return nil, err
	}
	m.idStrategy = strategy

	return m, nil
}

// findIDMember prefers an explicitly flagged member, then a member named id
// (any casing), properties before fields.
func findIDMember(t *doctype.Type) (doctype.Member, error) {
	for _, mem := range t.Members {
		if mem.ID {
			return mem, nil
		}
	}
	var field *doctype.Member
	for i, mem := range t.Members {
		if !strings.EqualFold(mem.Name, IDColumn) {
			continue
		}
		if mem.Kind == doctype.Property {
			return mem, nil
		}
		if field == nil {
			field = &t.Members[i]
		}
	}
	if field != nil {
		return *field, nil
	}
	return doctype.Member{}, configErrorf("type %s has no id member", t.Name)
}

func (m *DocumentMapping) scanDuplicates(prefix []doctype.Member, members []doctype.Member) error {
	for _, mem := range members {
		chain := append(append([]doctype.Member(nil), prefix...), mem)
		if len(prefix) == 0 && mem.Name == m.idMember.Name {
			continue
		}
		if mem.Duplicate {
			key := memberPath(chain)
			dup := newDuplicatedField(chain, "", "", true)
			if err := m.checkColumn(key, dup.column, nil); err != nil {
				return err
			}
			m.putField(key, dup)
		}
		if len(mem.Members) > 0 {
			if err := m.scanDuplicates(chain, mem.Members); err != nil {
				return err
			}
		}
	}
	return nil
}

// reservedColumns are the fixed columns of every document table.
var reservedColumns = []string{
	IDColumn, DataColumn, LastModifiedColumn, VersionColumn, DotNetTypeColumn, DocumentTypeColumn,
}

// checkColumn rejects a duplicated column named like a fixed column or like
// the column of another duplicated field. pending holds fields about to be
// added. Callers hold the lock or own m exclusively.
func (m *DocumentMapping) checkColumn(key, column string, pending []*DuplicatedField) error {
	for _, c := range reservedColumns {
		if strings.EqualFold(c, column) {
			return configErrorf("duplicated field %s of %s cannot use the reserved column %s", key, m.docType.Name, c)
		}
	}
	others := append(m.duplicatedFields(), pending...)
	for _, other := range others {
		if other.Name() != key && strings.EqualFold(other.column, column) {
			return configErrorf("duplicated fields %s and %s of %s both map to column %s",
				other.Name(), key, m.docType.Name, column)
		}
	}
	return nil
}

// putField stores f, keeping the first-seen position of its key. Callers hold
// the write lock or own m exclusively.
func (m *DocumentMapping) putField(key string, f Field) {
	if _, ok := m.fields[key]; !ok {
		m.fieldOrder = append(m.fieldOrder, key)
	}
	m.fields[key] = f
}

// Type returns the declarative type the mapping was built from.
func (m *DocumentMapping) Type() *doctype.Type { return m.docType }

// Key returns the registry key of the mapped type.
func (m *DocumentMapping) Key() string { return m.docType.Key() }

// Alias returns the lower-case alias naming the table and upsert function.
func (m *DocumentMapping) Alias() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alias
}

// SetAlias overrides the alias; it is always stored lower-cased. An empty alias
// restores the default.
func (m *DocumentMapping) SetAlias(alias string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(alias) == "" {
		m.alias = DefaultAlias(m.docType)
		return
	}
	m.alias = normalizeAlias(alias)
}

// DatabaseSchemaName resolves the schema: mapping override, then the schema the
// mapping was constructed with, then the store default.
func (m *DocumentMapping) DatabaseSchemaName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schemaName()
}

func (m *DocumentMapping) schemaName() string {
	switch {
	case m.schemaOverride != "":
		return m.schemaOverride
	case m.ctorSchema != "":
		return m.ctorSchema
	case m.defaultSchema != "":
		return m.defaultSchema
	}
	return DefaultSchemaName
}

// SetDatabaseSchemaName overrides the schema of this mapping.
func (m *DocumentMapping) SetDatabaseSchemaName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemaOverride = normalizeSchema(name)
}

// TableName returns the qualified storage table name.
func (m *DocumentMapping) TableName() schema.TableName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tableName()
}

func (m *DocumentMapping) tableName() schema.TableName {
	return schema.TableName{Schema: m.schemaName(), Name: TablePrefix + m.alias}
}

// UpsertFunctionName returns the qualified upsert function name.
func (m *DocumentMapping) UpsertFunctionName() schema.TableName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upsertName()
}

func (m *DocumentMapping) upsertName() schema.TableName {
	return schema.TableName{Schema: m.schemaName(), Name: UpsertPrefix + m.alias}
}

// UseOptimisticConcurrency reports whether upserts are guarded by the expected version.
func (m *DocumentMapping) UseOptimisticConcurrency() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.optimistic
}

// SetUseOptimisticConcurrency turns the version guard on or off.
func (m *DocumentMapping) SetUseOptimisticConcurrency(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optimistic = on
}

// PropertySearching returns the current searching mode.
func (m *DocumentMapping) PropertySearching() doctype.Searching {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searching
}

// SetPropertySearching switches the searching mode. Locator-only mode demotes
// promoted fields but never touches explicitly duplicated ones; duplicated mode
// promotes every top-level scalar member, or none of them when a promoted
// column would collide with an existing one.
func (m *DocumentMapping) SetPropertySearching(mode doctype.Searching) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch mode {
	case doctype.SearchJSONLocatorOnly:
		for _, key := range m.fieldOrder {
			if dup, ok := m.fields[key].(*DuplicatedField); ok && !dup.explicit {
				m.fields[key] = newJSONLocatorField(dup.members)
			}
		}
	case doctype.SearchDuplicated:
		if err := m.promoteScalars(); err != nil {
			return err
		}
	}
	m.searching = mode
	return nil
}

func (m *DocumentMapping) promoteScalars() error {
	var promoted []*DuplicatedField
	for _, mem := range m.docType.Members {
		if mem.Name == m.idMember.Name || !mem.Type.IsScalar() {
			continue
		}
		if _, ok := m.fields[mem.Name].(*DuplicatedField); ok {
			continue
		}
		dup := newDuplicatedField([]doctype.Member{mem}, "", "", false)
		if err := m.checkColumn(mem.Name, dup.column, promoted); err != nil {
			return err
		}
		promoted = append(promoted, dup)
	}
	for _, dup := range promoted {
		m.putField(dup.Name(), dup)
	}
	return nil
}
