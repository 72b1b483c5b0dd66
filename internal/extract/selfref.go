package extract

import (
	"context"

	"github.com/google/uuid"

	"github.com/hurou927/docmap/internal/schema"
)

// fetchRows runs query and returns every row's values.
func fetchRows(ctx context.Context, db schema.Querier, query string, args []any) ([][]any, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		result = append(result, normalize(values))
	}
	return result, rows.Err()
}

// normalize turns the raw [16]byte pgx returns for uuid columns into uuid.UUID,
// which both the COPY writer and query arguments understand.
func normalize(values []any) []any {
	for i, v := range values {
		if b, ok := v.([16]byte); ok {
			values[i] = uuid.UUID(b)
		}
	}
	return values
}
