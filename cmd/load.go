package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/db"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/load"
)

var (
	loadDocument string
	loadSubClass string
	loadFile     string
	loadMode     string
	loadDryRun   bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load JSON documents into a document table",
	Long: `Reads a JSON array or JSON lines of documents, assigns missing ids with the
document's id strategy, extracts the duplicated columns and writes the rows with
COPY, the bulk INSERT template or the upsert function.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		m, err := st.Mapping(loadDocument)
		if err != nil {
			return err
		}
		sub, err := st.SubClass(loadDocument, loadSubClass)
		if err != nil {
			return err
		}
		mode, err := load.ParseMode(loadMode)
		if err != nil {
			return err
		}

		docs, err := readInput(loadFile)
		if err != nil {
			return err
		}

		// Hi-Lo ids need the database even when nothing is written.
		var (
			dbConn load.DB
			seqs   identity.SequenceSource
		)
		if !loadDryRun || m.UsesHilo() {
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			dbConn = pool
			seqs = db.NewHiloSequences(pool, hiloSchema())
		}

		prep, err := load.NewPreparer(m, seqs)
		if err != nil {
			return err
		}
		n, err := load.New(dbConn, prep, mode, verbose, loadDryRun).Load(ctx, os.Stdout, docs, sub)
		if err != nil {
			return err
		}
		if !loadDryRun {
			fmt.Fprintf(os.Stderr, "Loaded %d documents into %s\n", n, m.TableName().QualifiedName())
		}
		return nil
	},
}

func readInput(path string) ([]json.RawMessage, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return load.ReadDocuments(r)
}

func init() {
	loadCmd.Flags().StringVar(&loadDocument, "document", "", "declared document to load (required)")
	loadCmd.Flags().StringVar(&loadSubClass, "subclass", "", "store the documents as this subclass")
	loadCmd.Flags().StringVar(&loadFile, "file", "-", "input file, - for stdin")
	loadCmd.Flags().StringVar(&loadMode, "mode", string(load.ModeUpsert), "copy, insert or upsert")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "print the rows as a COPY script instead of writing them")
	_ = loadCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(loadCmd)
}
