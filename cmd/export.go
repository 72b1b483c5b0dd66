package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/extract"
	"github.com/hurou927/docmap/internal/schema"
)

var (
	exportOutput string
	exportDryRun bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a document subset preserving FK dependencies",
	Long: `Exports the documents of the configured root documents matching their WHERE
clause, plus every document referencing them through a foreign key, in
dependency order as a pg_dump-compatible COPY script.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateForExport(); err != nil {
			return err
		}

		roots := make(map[string]string, len(cfg.Roots))
		for _, r := range cfg.Roots {
			m, err := st.Mapping(r.Document)
			if err != nil {
				return err
			}
			roots[m.TableName().QualifiedName()] = r.Where
		}
		mappings := st.Mappings()
		tables := make([]*schema.Table, len(mappings))
		for i, m := range mappings {
			tables[i] = m.Table()
		}

		ctx := context.Background()
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		outPath := exportOutput
		if exportDryRun {
			outPath = ""
		}
		w, closeFn, err := openOutput(outPath)
		if err != nil {
			return err
		}
		defer closeFn()

		extractor := extract.New(pool, tables, roots, verbose, exportDryRun)
		if err := extractor.Extract(ctx, w); err != nil {
			return err
		}

		if !exportDryRun {
			fmt.Fprintln(os.Stderr, "Export complete:")
			for _, line := range extractor.CollectedSummary() {
				fmt.Fprintln(os.Stderr, line)
			}
			if outPath != "" && outPath != "-" {
				fmt.Fprintf(os.Stderr, "Output written to: %s\n", outPath)
			}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file path (default stdout)")
	exportCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "show queries without executing")
	rootCmd.AddCommand(exportCmd)
}
