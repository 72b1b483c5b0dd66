package load

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/output"
)

// Mode selects how prepared rows reach the table.
type Mode string

const (
	// ModeCopy streams rows with COPY FROM. Fastest, fails on existing ids.
	ModeCopy Mode = "copy"
	// ModeInsert runs the plain bulk INSERT per row in one batch.
	ModeInsert Mode = "insert"
	// ModeUpsert calls the mapping's upsert function per row.
	ModeUpsert Mode = "upsert"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeCopy, ModeInsert, ModeUpsert:
		return m, nil
	}
	return "", fmt.Errorf("unknown load mode %q (want copy, insert or upsert)", s)
}

// DB is the subset of pgxpool.Pool and pgx.Tx the loader uses.
type DB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Loader writes documents of one mapping.
type Loader struct {
	db      DB
	prep    *Preparer
	mode    Mode
	verbose bool
	dryRun  bool
}

// New creates a loader. db may be nil in dry-run mode.
func New(db DB, prep *Preparer, mode Mode, verbose, dryRun bool) *Loader {
	return &Loader{db: db, prep: prep, mode: mode, verbose: verbose, dryRun: dryRun}
}

// Load prepares every document and writes them. In dry-run mode the rows are
// written to w as a COPY script instead. It returns the number of rows written.
func (l *Loader) Load(ctx context.Context, w io.Writer, docs []json.RawMessage, sub *doctype.Type) (int64, error) {
	rows := make([][]any, 0, len(docs))
	for i, raw := range docs {
		row, err := l.prep.Prepare(ctx, raw, sub)
		if err != nil {
			return 0, fmt.Errorf("document %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}

	fn := l.prep.Function()
	if l.verbose {
		fmt.Fprintf(os.Stderr, "[load] %s: %d documents (%s)\n", fn.Table.QualifiedName(), len(rows), l.mode)
	}

	if l.dryRun {
		ow := output.NewWriter(w)
		if err := ow.WriteHeader(false); err != nil {
			return 0, err
		}
		if err := ow.WriteTableData(fn.Table, fn.Columns(), rows); err != nil {
			return 0, err
		}
		return int64(len(rows)), ow.WriteFooter(false)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	switch l.mode {
	case ModeCopy:
		n, err := l.db.CopyFrom(ctx, pgx.Identifier{fn.Table.Schema, fn.Table.Name}, fn.Columns(), pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copying into %s: %w", fn.Table.QualifiedName(), err)
		}
		return n, nil
	case ModeInsert:
		return l.batch(ctx, fn.BulkInsertSQL(), rows)
	case ModeUpsert:
		sql := fn.CallSQL()
		if fn.ConcurrencyArgument() != nil {
			// no expected version: the guard only applies to existing rows
			for i := range rows {
				rows[i] = append(rows[i], nil)
			}
		}
		return l.batch(ctx, sql, rows)
	}
	return 0, fmt.Errorf("unknown load mode %q", l.mode)
}

func (l *Loader) batch(ctx context.Context, sql string, rows [][]any) (int64, error) {
	b := &pgx.Batch{}
	for _, row := range rows {
		b.Queue(sql, row...)
	}

	br := l.db.SendBatch(ctx, b)
	var n int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return n, fmt.Errorf("row %d: %w", i+1, err)
		}
		n += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return n, err
	}
	return n, nil
}
