package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/mapping"
	"github.com/hurou927/docmap/internal/schema"
)

// ErrHiloContention is returned when every attempt to reserve a hi value lost
// the race to another writer.
var ErrHiloContention = errors.New("hilo sequence could not be advanced")

// QueryRower is the subset of pgxpool.Pool the sequences use.
type QueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HiloSequences hands out database-backed hi values, one sequence per entity.
type HiloSequences struct {
	db     QueryRower
	schema string

	mu   sync.Mutex
	seqs map[string]*hiloSequence
}

// NewHiloSequences returns sequences served by the mt_get_next_hi function in schemaName.
func NewHiloSequences(db QueryRower, schemaName string) *HiloSequences {
	if schemaName == "" {
		schemaName = mapping.DefaultSchemaName
	}
	return &HiloSequences{db: db, schema: schemaName, seqs: make(map[string]*hiloSequence)}
}

// Hilo returns the sequence named by settings, shared by every caller asking
// for the same entity.
func (h *HiloSequences) Hilo(settings identity.HiloSettings) identity.Sequence {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq, ok := h.seqs[settings.SequenceName]; ok {
		return seq
	}
	seq := &hiloSequence{
		db:       h.db,
		sql:      fmt.Sprintf("SELECT %s($1)", schema.TableName{Schema: h.schema, Name: mapping.HiloFunction}.QualifiedName()),
		entity:   settings.SequenceName,
		attempts: max(settings.MaxAdvanceToNextHiAttempts, 1),
	}
	h.seqs[settings.SequenceName] = seq
	return seq
}

type hiloSequence struct {
	db       QueryRower
	sql      string
	entity   string
	attempts int
}

// NextHi calls the function until it reserves a value; it answers -1 when a
// concurrent writer advanced the row first.
func (s *hiloSequence) NextHi(ctx context.Context) (int64, error) {
	for i := 0; i < s.attempts; i++ {
		var hi int64
		if err := s.db.QueryRow(ctx, s.sql, s.entity).Scan(&hi); err != nil {
			return 0, fmt.Errorf("reserving hi for %s: %w", s.entity, err)
		}
		if hi >= 0 {
			return hi, nil
		}
	}
	return 0, fmt.Errorf("%w: %s after %d attempts", ErrHiloContention, s.entity, s.attempts)
}
