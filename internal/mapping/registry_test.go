package mapping

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/identity"
)

func TestRegistryReturnsSameMapping(t *testing.T) {
	r := NewRegistry()
	typ := doctype.MustOf[User]()

	results := make([]*DocumentMapping, 24)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.MappingFor(typ)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range results {
		assert.Same(t, results[0], m)
	}

	generic, err := MappingOf[User](r)
	require.NoError(t, err)
	assert.Same(t, results[0], generic)

	byKey, ok := r.Mapping(typ.Key())
	require.True(t, ok)
	assert.Same(t, generic, byKey)
	assert.Len(t, r.AllMappings(), 1)
}

type Envelope[T any] struct {
	ID   uuid.UUID
	Body T
}

func TestRegistryKeepsGenericInstantiationsApart(t *testing.T) {
	r := NewRegistry()
	a, err := MappingOf[Envelope[*bytes.Reader]](r)
	require.NoError(t, err)
	b, err := MappingOf[Envelope[*strings.Reader]](r)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "envelope_reader", a.Alias())
	assert.Len(t, r.AllMappings(), 2)
}

func TestRegistryDoesNotCacheFailures(t *testing.T) {
	r := NewRegistry()
	_, err := r.MappingFor(&doctype.Type{Name: "NoID"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, r.AllMappings())

	_, err = r.MappingFor(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistryDefaultSchema(t *testing.T) {
	r := NewRegistry(WithDefaultSchemaName("Other"))
	assert.Equal(t, "other", r.DatabaseSchemaName())

	m, err := MappingOf[User](r)
	require.NoError(t, err)
	assert.Equal(t, "other.mt_doc_user", m.TableName().QualifiedName())
}

func TestRegistryDefaultIDStrategy(t *testing.T) {
	custom := &identity.CustomStrategy{
		Name: "fixed",
		Keys: []doctype.ValueType{doctype.ValueString},
	}
	r := NewRegistry(WithDefaultIDStrategy(func(m *DocumentMapping) identity.Strategy {
		if m.IDMember().Type == doctype.ValueString {
			return custom
		}
		return nil
	}))

	s, err := MappingOf[StringDoc](r)
	require.NoError(t, err)
	assert.Same(t, custom, s.IDStrategy())

	u, err := MappingOf[User](r)
	require.NoError(t, err)
	assert.IsType(t, &identity.CombGuidStrategy{}, u.IDStrategy())
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	_, err := MappingOf[User](r)
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	a, err := MappingOf[AdminUser](r)
	require.NoError(t, err)
	a.SetAlias("user")
	s, err := MappingOf[SuperUser](r)
	require.NoError(t, err)
	s.SetAlias("user")

	err = r.Validate()
	require.Error(t, err)
	var conflict *NamingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "public", conflict.Schema)
	assert.Equal(t, "user", conflict.Alias)
	assert.Len(t, conflict.Types, 3)

	// same alias in another schema is fine
	s.SetDatabaseSchemaName("admin")
	a.SetDatabaseSchemaName("ops")
	assert.NoError(t, r.Validate())
}
