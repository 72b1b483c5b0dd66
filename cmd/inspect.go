package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hurou927/docmap/internal/mapping"
)

var (
	inspectFormat   string
	inspectDocument string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show how declared documents are mapped",
	Long: `Shows the alias, table, id strategy, columns, upsert function, indexes,
foreign keys and subclasses of the declared documents, plus the registered event
types and aggregates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mappings := st.Mappings()
		if inspectDocument != "" {
			m, err := st.Mapping(inspectDocument)
			if err != nil {
				return err
			}
			mappings = []*mapping.DocumentMapping{m}
		}

		summaries := make([]documentSummary, len(mappings))
		for i, m := range mappings {
			summaries[i] = summarize(m)
		}
		report := inspectReport{Documents: summaries}
		if inspectDocument == "" {
			for _, em := range st.Events.AllEvents() {
				report.Events = append(report.Events, em.EventTypeName)
			}
			for _, a := range st.Events.AllAggregates() {
				report.Aggregates = append(report.Aggregates, a.Alias+" -> "+a.Mapping.TableName().QualifiedName())
			}
		}

		switch inspectFormat {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		case "dump":
			cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
			cfg.Fdump(os.Stdout, mappings)
			return nil
		case "text":
			return writeReport(os.Stdout, report)
		default:
			return fmt.Errorf("unknown format: %s (supported: text, yaml, dump)", inspectFormat)
		}
	},
}

type inspectReport struct {
	Documents  []documentSummary `yaml:"documents"`
	Events     []string          `yaml:"events,omitempty"`
	Aggregates []string          `yaml:"aggregates,omitempty"`
}

type documentSummary struct {
	Type        string   `yaml:"type"`
	Alias       string   `yaml:"alias"`
	Table       string   `yaml:"table"`
	IDMember    string   `yaml:"id_member"`
	IDStrategy  string   `yaml:"id_strategy"`
	Optimistic  bool     `yaml:"optimistic"`
	Searching   string   `yaml:"searching"`
	Columns     []string `yaml:"columns"`
	Upsert      string   `yaml:"upsert"`
	Indexes     []string `yaml:"indexes,omitempty"`
	ForeignKeys []string `yaml:"foreign_keys,omitempty"`
	SubClasses  []string `yaml:"subclasses,omitempty"`
}

func summarize(m *mapping.DocumentMapping) documentSummary {
	s := documentSummary{
		Type:       m.Type().FullName(),
		Alias:      m.Alias(),
		Table:      m.TableName().QualifiedName(),
		IDMember:   m.IDMember().Name,
		IDStrategy: m.IDStrategy().String(),
		Optimistic: m.UseOptimisticConcurrency(),
		Searching:  m.PropertySearching().String(),
	}
	for _, c := range m.Table().Columns {
		s.Columns = append(s.Columns, c.DDL())
	}
	fn := m.UpsertFunction()
	s.Upsert = fn.CallSQL()
	for _, idx := range m.Indexes() {
		s.Indexes = append(s.Indexes, idx.IndexName())
	}
	for _, fk := range m.ForeignKeys() {
		s.ForeignKeys = append(s.ForeignKeys, fk.KeyName()+" -> "+fk.ReferenceTable().QualifiedName())
	}
	for _, sc := range m.SubClasses() {
		s.SubClasses = append(s.SubClasses, sc.Alias+" ("+sc.Type.FullName()+")")
	}
	return s
}

func writeReport(w io.Writer, r inspectReport) error {
	for _, d := range r.Documents {
		fmt.Fprintf(w, "%s\n", d.Type)
		fmt.Fprintf(w, "  alias:       %s\n", d.Alias)
		fmt.Fprintf(w, "  table:       %s\n", d.Table)
		fmt.Fprintf(w, "  id:          %s (%s)\n", d.IDMember, d.IDStrategy)
		fmt.Fprintf(w, "  optimistic:  %t\n", d.Optimistic)
		fmt.Fprintf(w, "  searching:   %s\n", d.Searching)
		fmt.Fprintf(w, "  upsert:      %s\n", d.Upsert)
		writeList(w, "columns", d.Columns)
		writeList(w, "indexes", d.Indexes)
		writeList(w, "foreign keys", d.ForeignKeys)
		writeList(w, "subclasses", d.SubClasses)
		fmt.Fprintln(w)
	}
	if len(r.Events) > 0 {
		writeList(w, "events", r.Events)
	}
	if len(r.Aggregates) > 0 {
		writeList(w, "aggregates", r.Aggregates)
	}
	return nil
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "    - %s\n", it)
	}
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "output format: text, yaml or dump")
	inspectCmd.Flags().StringVar(&inspectDocument, "document", "", "only show this document")
	rootCmd.AddCommand(inspectCmd)
}
