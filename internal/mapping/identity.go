package mapping

import (
	"slices"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/identity"
)

// IDStrategy returns the active identity strategy.
func (m *DocumentMapping) IDStrategy() identity.Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idStrategy
}

// SetIDStrategy replaces the identity strategy.
func (m *DocumentMapping) SetIDStrategy(s identity.Strategy) error {
	if s == nil {
		return configErrorf("id strategy of %s cannot be nil", m.docType.Name)
	}
	if err := checkStrategy(s, m.idMember); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idStrategy = s
	return nil
}

// HiloSettings replaces the Hi-Lo tunables. The mapping must already use Hi-Lo.
func (m *DocumentMapping) HiloSettings(settings identity.HiloSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idStrategy.(*identity.HiloStrategy); !ok {
		return configErrorf("%s uses the %s id strategy; hilo settings apply only to the hilo strategy",
			m.docType.Name, m.idStrategy)
	}
	m.idStrategy = &identity.HiloStrategy{Settings: settings}
	return nil
}

// IDGenerator builds the generator sessions use to assign ids. Hi-Lo sequences
// are named after the alias unless the settings name one.
func (m *DocumentMapping) IDGenerator(seqs identity.SequenceSource) (identity.Generator, error) {
	m.mu.RLock()
	strategy := m.idStrategy
	alias := m.alias
	m.mu.RUnlock()

	if hilo, ok := strategy.(*identity.HiloStrategy); ok && hilo.Settings.SequenceName == "" {
		settings := hilo.Settings
		settings.SequenceName = alias
		strategy = &identity.HiloStrategy{Settings: settings}
	}
	return strategy.Build(m.idMember.Type, seqs)
}

// UsesHilo reports whether ids come from a Hi-Lo sequence.
func (m *DocumentMapping) UsesHilo() bool {
	_, ok := m.IDStrategy().(*identity.HiloStrategy)
	return ok
}

// checkStrategy rejects strategies whose declared key types exclude the id type.
// Strategies declaring no key types are taken verbatim.
func checkStrategy(s identity.Strategy, id doctype.Member) error {
	keys := s.KeyTypes()
	if len(keys) == 0 || slices.Contains(keys, id.Type) {
		return nil
	}
	return configErrorf("id strategy %s cannot generate %s ids for member %s", s, id.Type, id.Name)
}
