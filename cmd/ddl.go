package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/ddl"
	"github.com/hurou927/docmap/internal/mapping"
)

var (
	ddlOutput    string
	ddlDocuments []string
)

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print the DDL of the declared documents",
	Long: `Prints CREATE TABLE, index, foreign key and upsert function DDL for every
declared document, referenced documents first. The Hi-Lo support objects are
included when a document uses Hi-Lo ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mappings := st.Mappings()
		if len(ddlDocuments) > 0 {
			mappings = mappings[:0:0]
			for _, name := range ddlDocuments {
				m, err := st.Mapping(name)
				if err != nil {
					return err
				}
				mappings = append(mappings, m)
			}
		}
		if len(mappings) == 0 {
			return fmt.Errorf("no documents declared in %s", cfgPath)
		}

		w, closeFn, err := openOutput(ddlOutput)
		if err != nil {
			return err
		}
		defer closeFn()

		return ddl.WriteMappings(w, hiloSchema(), mappings)
	},
}

// hiloSchema is where the mt_hilo objects live: the store default schema.
func hiloSchema() string {
	if s := st.Registry.DatabaseSchemaName(); s != "" {
		return s
	}
	return mapping.DefaultSchemaName
}

func init() {
	ddlCmd.Flags().StringVar(&ddlOutput, "output", "", "output file path (default stdout)")
	ddlCmd.Flags().StringSliceVar(&ddlDocuments, "document", nil, "limit output to these documents")
	rootCmd.AddCommand(ddlCmd)
}
