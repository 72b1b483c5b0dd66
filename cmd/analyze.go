package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/graph"
	"github.com/hurou927/docmap/internal/schema"
)

var (
	analyzeFormat string
	analyzeLive   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the FK dependency graph between document tables",
	Long: `Builds the FK dependency graph of the declared documents and outputs it in the
specified format. With --live the graph is built from the document tables found
in the database instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var tables []*schema.Table
		if analyzeLive {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			found, err := schema.Introspect(ctx, pool, documentSchemas(), "mt_doc_")
			if err != nil {
				return fmt.Errorf("introspecting schema: %w", err)
			}
			for _, t := range found {
				tables = append(tables, t)
			}
		} else {
			for _, m := range st.Mappings() {
				tables = append(tables, m.Table())
			}
		}

		g := graph.Build(tables)

		switch analyzeFormat {
		case "mermaid":
			return graph.WriteMermaid(os.Stdout, g)
		case "text":
			return graph.WriteText(os.Stdout, g)
		default:
			return fmt.Errorf("unknown format: %s (supported: mermaid, text)", analyzeFormat)
		}
	},
}

// documentSchemas lists the schemas the declared documents live in.
func documentSchemas() []string {
	set := map[string]bool{hiloSchema(): true}
	for _, m := range st.Mappings() {
		set[m.DatabaseSchemaName()] = true
	}
	schemas := make([]string, 0, len(set))
	for s := range set {
		schemas = append(schemas, s)
	}
	sort.Strings(schemas)
	return schemas
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "mermaid", "output format: mermaid or text")
	analyzeCmd.Flags().BoolVar(&analyzeLive, "live", false, "read the tables from the database")
	rootCmd.AddCommand(analyzeCmd)
}
