package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/doctype"
)

type fakeSequence struct {
	mu    sync.Mutex
	hi    int64
	calls int
}

func (s *fakeSequence) NextHi(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	hi := s.hi
	s.hi++
	return hi, nil
}

type fakeSource struct {
	seq      *fakeSequence
	settings HiloSettings
}

func (f *fakeSource) Hilo(settings HiloSettings) Sequence {
	f.settings = settings
	return f.seq
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name   string
		key    doctype.ValueType
		member doctype.MemberKind
		want   Strategy
	}{
		{"guid property", doctype.ValueUUID, doctype.Property, &CombGuidStrategy{}},
		{"guid field", doctype.ValueUUID, doctype.Field, &GuidStrategy{}},
		{"int", doctype.ValueInt32, doctype.Field, &HiloStrategy{}},
		{"long", doctype.ValueInt64, doctype.Property, &HiloStrategy{}},
		{"string", doctype.ValueString, doctype.Field, &StringStrategy{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.key, tt.member, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestSelectHiloUsesDefaultSettings(t *testing.T) {
	got, err := Select(doctype.ValueInt64, doctype.Field, nil)
	require.NoError(t, err)

	hilo, ok := got.(*HiloStrategy)
	require.True(t, ok)
	assert.Equal(t, int64(1000), hilo.MaxLo())
}

func TestSelectOverrideWins(t *testing.T) {
	custom := &CustomStrategy{Name: "mine"}
	got, err := Select(doctype.ValueInt64, doctype.Field, custom)
	require.NoError(t, err)
	assert.Same(t, custom, got)
}

func TestSelectUnsupportedType(t *testing.T) {
	_, err := Select(doctype.ValueBool, doctype.Property, nil)
	assert.ErrorIs(t, err, ErrUnsupportedIDType)
}

func TestParse(t *testing.T) {
	s, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Parse("HiLo")
	require.NoError(t, err)
	assert.IsType(t, &HiloStrategy{}, s)

	_, err = Parse("snowflake")
	assert.Error(t, err)
}

func TestGuidGenerator(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Strategy{&GuidStrategy{}, &CombGuidStrategy{}} {
		t.Run(s.String(), func(t *testing.T) {
			gen, err := s.Build(doctype.ValueUUID, nil)
			require.NoError(t, err)

			id, assigned, err := gen.Assign(ctx, uuid.Nil)
			require.NoError(t, err)
			assert.True(t, assigned)
			assert.NotEqual(t, uuid.Nil, id)

			existing := uuid.New()
			id, assigned, err = gen.Assign(ctx, existing)
			require.NoError(t, err)
			assert.False(t, assigned)
			assert.Equal(t, existing, id)

			id, assigned, err = gen.Assign(ctx, existing.String())
			require.NoError(t, err)
			assert.False(t, assigned)
			assert.Equal(t, existing, id)
		})
	}
}

func TestCombGuidIsTimeOrdered(t *testing.T) {
	gen, err := (&CombGuidStrategy{}).Build(doctype.ValueUUID, nil)
	require.NoError(t, err)

	first, _, err := gen.Assign(context.Background(), nil)
	require.NoError(t, err)
	second, _, err := gen.Assign(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, uuid.Version(7), first.(uuid.UUID).Version())
	assert.Less(t, first.(uuid.UUID).String(), second.(uuid.UUID).String())
}

func TestGuidStrategyRejectsIntKeys(t *testing.T) {
	_, err := (&GuidStrategy{}).Build(doctype.ValueInt32, nil)
	assert.ErrorIs(t, err, ErrUnsupportedIDType)
}

func TestHiloGenerator(t *testing.T) {
	seq := &fakeSequence{}
	src := &fakeSource{seq: seq}
	s := &HiloStrategy{Settings: HiloSettings{MaxLo: 3, SequenceName: "issue"}}

	gen, err := s.Build(doctype.ValueInt64, src)
	require.NoError(t, err)
	assert.Equal(t, "issue", src.settings.SequenceName)

	var ids []any
	for i := 0; i < 5; i++ {
		id, assigned, err := gen.Assign(context.Background(), int64(0))
		require.NoError(t, err)
		assert.True(t, assigned)
		ids = append(ids, id)
	}

	// hi 0 covers 1..3, hi 1 covers 4..6
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, ids)
	assert.Equal(t, 2, seq.calls)
}

func TestHiloGeneratorKeepsExistingAndTypesInt32(t *testing.T) {
	gen, err := (&HiloStrategy{Settings: HiloSettings{MaxLo: 10}}).Build(doctype.ValueInt32, &fakeSource{seq: &fakeSequence{}})
	require.NoError(t, err)

	id, assigned, err := gen.Assign(context.Background(), float64(42))
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, int32(42), id)

	id, assigned, err = gen.Assign(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, int32(1), id)
}

func TestHiloNeedsSequenceSource(t *testing.T) {
	_, err := (&HiloStrategy{}).Build(doctype.ValueInt64, nil)
	assert.Error(t, err)
}

func TestStringGenerator(t *testing.T) {
	gen, err := (&StringStrategy{}).Build(doctype.ValueString, nil)
	require.NoError(t, err)

	id, assigned, err := gen.Assign(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, "abc", id)

	_, _, err = gen.Assign(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestCustomStrategy(t *testing.T) {
	_, err := (&CustomStrategy{}).Build(doctype.ValueInt64, nil)
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)

	sentinel := errors.New("built")
	s := &CustomStrategy{
		Name: "snowflake",
		Builder: func(doctype.ValueType, SequenceSource) (Generator, error) {
			return nil, sentinel
		},
	}
	_, err = s.Build(doctype.ValueInt64, nil)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "snowflake", s.String())
}
