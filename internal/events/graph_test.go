package events

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/mapping"
)

type MembersJoined struct {
	Day     int
	Members []string
}

type QuestStarted struct {
	Name string
}

type QuestParty struct {
	ID      uuid.UUID
	Members []string
}

func TestEventMappingFor(t *testing.T) {
	g := NewGraph(mapping.NewRegistry())

	em, err := EventMappingOf[MembersJoined](g)
	require.NoError(t, err)
	assert.Equal(t, "members_joined", em.EventTypeName)

	again, err := g.EventMappingFor(doctype.MustOf[MembersJoined]())
	require.NoError(t, err)
	assert.Same(t, em, again)

	_, err = g.EventMappingFor(nil)
	assert.ErrorIs(t, err, mapping.ErrConfiguration)
}

func TestEventMappingForConcurrent(t *testing.T) {
	g := NewGraph(mapping.NewRegistry())
	typ := doctype.MustOf[QuestStarted]()

	results := make([]*EventMapping, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			em, err := g.EventMappingFor(typ)
			assert.NoError(t, err)
			results[i] = em
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Len(t, g.AllEvents(), 1)
}

func TestEventMappingByName(t *testing.T) {
	g := NewGraph(mapping.NewRegistry())

	_, ok := g.EventMappingByName("quest_started")
	assert.False(t, ok)

	require.NoError(t, g.AddEventTypes(doctype.MustOf[MembersJoined](), doctype.MustOf[QuestStarted]()))
	em, ok := g.EventMappingByName("quest_started")
	require.True(t, ok)
	assert.Equal(t, "QuestStarted", em.Type.Name)

	names := make([]string, 0, 2)
	for _, em := range g.AllEvents() {
		names = append(names, em.EventTypeName)
	}
	assert.ElementsMatch(t, []string{"members_joined", "quest_started"}, names)
}

func TestAggregates(t *testing.T) {
	reg := mapping.NewRegistry()
	g := NewGraph(reg)
	assert.False(t, g.IsActive())

	typ := doctype.MustOf[QuestParty]()
	a, err := g.AggregateFor(typ)
	require.NoError(t, err)
	assert.True(t, g.IsActive())
	assert.Equal(t, "quest_party", a.Alias)

	m, ok := reg.Mapping(typ.Key())
	require.True(t, ok, "aggregate types are mapped as documents")
	assert.Same(t, m, a.Mapping)
	assert.Equal(t, "mt_doc_questparty", m.TableName().Name)

	again, err := g.AggregateFor(typ)
	require.NoError(t, err)
	assert.Same(t, a, again)

	replaced, err := g.AddAggregate(typ, "party")
	require.NoError(t, err)
	assert.NotSame(t, a, replaced)

	found, ok := g.AggregateTypeFor("party")
	require.True(t, ok)
	assert.Equal(t, typ.Key(), found.Key())
	_, ok = g.AggregateTypeFor("quest_party")
	assert.False(t, ok)
	assert.Len(t, g.AllAggregates(), 1)
}

func TestDatabaseSchemaName(t *testing.T) {
	g := NewGraph(mapping.NewRegistry(mapping.WithDefaultSchemaName("Other")))
	assert.Equal(t, "other", g.DatabaseSchemaName())
	assert.Equal(t, "other.mt_streams", g.Table(StreamsTable).QualifiedName())

	g.SetDatabaseSchemaName("events")
	assert.Equal(t, "events.mt_event_progression", g.Table(ProgressionTable).QualifiedName())
}
