package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/migrate"
)

var applyDryRun bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Bring the database up to date with the declared documents",
	Long: `Introspects the document tables in the database, computes the statements
needed to match the declared documents (new tables, columns, indexes, foreign
keys and upsert functions) and runs them in a single transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		planner := migrate.New(pool, verbose, applyDryRun)
		patches, err := planner.Plan(ctx, hiloSchema(), st.Mappings())
		if err != nil {
			return err
		}
		if len(patches) == 0 {
			fmt.Fprintln(os.Stderr, "Database is up to date.")
			return nil
		}

		if err := planner.Apply(ctx, os.Stdout, patches); err != nil {
			return err
		}
		if !applyDryRun {
			fmt.Fprintf(os.Stderr, "Applied %d patches.\n", len(patches))
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "print the statements without executing them")
	rootCmd.AddCommand(applyCmd)
}
