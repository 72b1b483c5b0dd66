package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/hurou927/docmap/internal/schema"
)

// Writer writes COPY-format SQL output.
type Writer struct {
	w io.Writer
}

// NewWriter creates a new COPY output writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader opens the transaction. With replica set, foreign key triggers
// are disabled until the footer, so tables on a reference cycle can load in
// any order.
func (cw *Writer) WriteHeader(replica bool) error {
	_, err := fmt.Fprintln(cw.w, "BEGIN;")
	if err != nil {
		return err
	}
	if replica {
		_, err = fmt.Fprintln(cw.w, "SET session_replication_role = 'replica';")
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(cw.w)
	return err
}

// WriteFooter resets the replication role when it was changed and commits.
func (cw *Writer) WriteFooter(replica bool) error {
	if replica {
		_, err := fmt.Fprintln(cw.w, "SET session_replication_role = 'origin';")
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(cw.w, "COMMIT;")
	return err
}

// WriteTableData writes a COPY block for the given columns of a table. Rows hold
// one value per column.
func (cw *Writer) WriteTableData(table schema.TableName, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := fmt.Fprintf(cw.w, "COPY %s (%s) FROM stdin;\n",
		table.QualifiedName(), strings.Join(columns, ", "))
	if err != nil {
		return err
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(columns))
		}
		vals := make([]string, len(row))
		for j, v := range row {
			vals[j] = EscapeCopyValue(v)
		}
		_, err := fmt.Fprintln(cw.w, strings.Join(vals, "\t"))
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(cw.w, `\.`)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cw.w)
	return err
}
