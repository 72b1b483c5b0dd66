package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Introspect queries PostgreSQL catalogs and returns the tables whose name
// starts with prefix, with columns, PK, FKs and index names. An empty prefix
// returns every table of the schemas.
func Introspect(ctx context.Context, q Querier, schemas []string, prefix string) (map[string]*Table, error) {
	pattern := prefix + "%"

	tables, err := queryTablesAndColumns(ctx, q, schemas, pattern)
	if err != nil {
		return nil, fmt.Errorf("querying tables and columns: %w", err)
	}

	if err := queryPrimaryKeys(ctx, q, schemas, tables); err != nil {
		return nil, fmt.Errorf("querying primary keys: %w", err)
	}

	if err := queryForeignKeys(ctx, q, schemas, tables); err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}

	if err := queryIndexes(ctx, q, schemas, tables); err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}

	return tables, nil
}

func queryTablesAndColumns(ctx context.Context, q Querier, schemas []string, pattern string) (map[string]*Table, error) {
	query := `
		SELECT
			n.nspname AS schema_name,
			c.relname AS table_name,
			a.attname AS column_name,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			NOT a.attnotnull AS is_nullable,
			a.attnum AS ordinal_position
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid
		WHERE c.relkind = 'r'
			AND a.attnum > 0
			AND NOT a.attisdropped
			AND n.nspname = ANY($1)
			AND c.relname LIKE $2
		ORDER BY n.nspname, c.relname, a.attnum
	`

	rows, err := q.Query(ctx, query, schemas, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]*Table)
	for rows.Next() {
		var schemaName, tableName, colName, dataType string
		var nullable bool
		var ordPos int
		if err := rows.Scan(&schemaName, &tableName, &colName, &dataType, &nullable, &ordPos); err != nil {
			return nil, err
		}

		key := schemaName + "." + tableName
		tbl, ok := tables[key]
		if !ok {
			tbl = &Table{
				Schema: schemaName,
				Name:   tableName,
			}
			tables[key] = tbl
		}
		tbl.Columns = append(tbl.Columns, Column{
			Name:     colName,
			DataType: dataType,
			Nullable: nullable,
			OrdPos:   ordPos,
		})
	}

	return tables, rows.Err()
}

func queryPrimaryKeys(ctx context.Context, q Querier, schemas []string, tables map[string]*Table) error {
	query := `
		SELECT
			n.nspname AS schema_name,
			c.relname AS table_name,
			a.attname AS column_name,
			u.ord AS key_position
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = u.attnum
		WHERE con.contype = 'p'
			AND n.nspname = ANY($1)
		ORDER BY n.nspname, c.relname, u.ord
	`

	rows, err := q.Query(ctx, query, schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, colName string
		var keyPos int
		if err := rows.Scan(&schemaName, &tableName, &colName, &keyPos); err != nil {
			return err
		}

		tbl, ok := tables[schemaName+"."+tableName]
		if !ok {
			continue
		}
		if tbl.PrimaryKey == nil {
			tbl.PrimaryKey = &PrimaryKey{}
		}
		tbl.PrimaryKey.Columns = append(tbl.PrimaryKey.Columns, colName)
	}

	return rows.Err()
}

func queryForeignKeys(ctx context.Context, q Querier, schemas []string, tables map[string]*Table) error {
	query := `
		SELECT
			con.conname AS fk_name,
			cn.nspname AS child_schema,
			cc.relname AS child_table,
			ca.attname AS child_column,
			pn.nspname AS parent_schema,
			pc.relname AS parent_table,
			pa.attname AS parent_column,
			u.ord AS key_position
		FROM pg_constraint con
		JOIN pg_class cc ON cc.oid = con.conrelid
		JOIN pg_namespace cn ON cn.oid = cc.relnamespace
		JOIN pg_class pc ON pc.oid = con.confrelid
		JOIN pg_namespace pn ON pn.oid = pc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS u(child_attnum, parent_attnum, ord)
		JOIN pg_attribute ca ON ca.attrelid = cc.oid AND ca.attnum = u.child_attnum
		JOIN pg_attribute pa ON pa.attrelid = pc.oid AND pa.attnum = u.parent_attnum
		WHERE con.contype = 'f'
			AND cn.nspname = ANY($1)
		ORDER BY cn.nspname, cc.relname, con.conname, u.ord
	`

	rows, err := q.Query(ctx, query, schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	type fkEntry struct {
		name         string
		childSchema  string
		childTable   string
		childCol     string
		parentSchema string
		parentTable  string
		parentCol    string
	}

	// constraint names are unique per table, not per schema
	fksByKey := make(map[string][]fkEntry)
	var fkOrder []string

	for rows.Next() {
		var e fkEntry
		var keyPos int
		if err := rows.Scan(&e.name, &e.childSchema, &e.childTable, &e.childCol,
			&e.parentSchema, &e.parentTable, &e.parentCol, &keyPos); err != nil {
			return err
		}
		key := e.childSchema + "." + e.childTable + "." + e.name
		if _, exists := fksByKey[key]; !exists {
			fkOrder = append(fkOrder, key)
		}
		fksByKey[key] = append(fksByKey[key], e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range fkOrder {
		entries := fksByKey[key]
		first := entries[0]
		fk := ForeignKey{
			Name:         first.name,
			ChildSchema:  first.childSchema,
			ChildTable:   first.childTable,
			ParentSchema: first.parentSchema,
			ParentTable:  first.parentTable,
		}
		for _, e := range entries {
			fk.ChildColumns = append(fk.ChildColumns, e.childCol)
			fk.ParentColumns = append(fk.ParentColumns, e.parentCol)
		}
		fk.IsSelfRef = fk.ChildSchema == fk.ParentSchema && fk.ChildTable == fk.ParentTable

		if tbl, ok := tables[fk.ChildSchema+"."+fk.ChildTable]; ok {
			tbl.ForeignKeys = append(tbl.ForeignKeys, fk)
		}
	}

	return nil
}

func queryIndexes(ctx context.Context, q Querier, schemas []string, tables map[string]*Table) error {
	query := `
		SELECT schemaname, tablename, indexname
		FROM pg_indexes
		WHERE schemaname = ANY($1)
		ORDER BY schemaname, tablename, indexname
	`

	rows, err := q.Query(ctx, query, schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, indexName string
		if err := rows.Scan(&schemaName, &tableName, &indexName); err != nil {
			return err
		}
		if tbl, ok := tables[schemaName+"."+tableName]; ok {
			tbl.Indexes = append(tbl.Indexes, indexName)
		}
	}

	return rows.Err()
}

// FunctionExists reports whether a routine with this name exists.
func FunctionExists(ctx context.Context, q Querier, name TableName) (bool, error) {
	rows, err := q.Query(ctx, `
		SELECT 1
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.proname = $2
		LIMIT 1
	`, name.Schema, name.Name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

// FunctionArguments returns the identity argument list of every overload of
// the named routine, as pg_get_function_identity_arguments renders it. The
// result is empty when no routine exists.
func FunctionArguments(ctx context.Context, q Querier, name TableName) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT pg_get_function_identity_arguments(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.proname = $2
		ORDER BY 1
	`, name.Schema, name.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overloads []string
	for rows.Next() {
		var args string
		if err := rows.Scan(&args); err != nil {
			return nil, err
		}
		overloads = append(overloads, args)
	}
	return overloads, rows.Err()
}
