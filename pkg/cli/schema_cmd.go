package cli

import (
	"github.com/spf13/cobra"

	"ppexec/internal/ddl"
	"ppexec/internal/table"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect DDL schemas",
	}
	cmd.AddCommand(newSchemaShowCmd(a), newSchemaParseCmd())
	return cmd
}

type fieldRow struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
	Native  string `json:"native"`
	NotNull bool   `json:"not_null,omitempty"`
}

func fieldRows(s ddl.Schema) ([]fieldRow, error) {
	out := make([]fieldRow, 0, len(s))
	for _, f := range s {
		t, err := ddl.DialectToNative(f.Dialect())
		if err != nil {
			return nil, err
		}
		out = append(out, fieldRow{Name: f.Name, Dialect: f.Dialect(), Native: t.String(), NotNull: f.NotNull})
	}
	return out, nil
}

func printFields(cmd *cobra.Command, rows []fieldRow, ddlText string) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), map[string]any{"ddl": ddlText, "fields": rows})
	}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		nn := ""
		if r.NotNull {
			nn = "NOT NULL"
		}
		cells = append(cells, []string{r.Name, r.Dialect, r.Native, nn})
	}
	PrintTable(cmd.OutOrStdout(), []string{"name", "dialect", "native", "constraint"}, cells)
	return nil
}

func newSchemaShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <storage> <path>",
		Short: "Show the schema of a stored table",
		Long: `Reads a stored table and derives its schema. <storage> is a root name
(local, shared, interproc) or one of the configured storage aliases.`,
		Example: `  ppexec schema show INTERPROCESSING output_data
  ppexec schema show local reports/daily -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := systemNames(a.cfg).StorageKind(args[0])
			if err != nil {
				return err
			}
			t, _, err := newStore(a.cfg, a.logger).ReadAny(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return showTableSchema(cmd, t)
		},
	}
}

func showTableSchema(cmd *cobra.Command, t *table.Table) error {
	s, err := t.Schema()
	if err != nil {
		return err
	}
	rows, err := fieldRows(s)
	if err != nil {
		return err
	}
	return printFields(cmd, rows, ddl.Format(s))
}

func newSchemaParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "parse <ddl>",
		Short:   "Parse a DDL string and show the native types it maps to",
		Example: "  ppexec schema parse '`a` LONG,`b` ARRAY<STRING>,`c` DECIMAL(10,2) NOT NULL'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ddl.Parse(args[0])
			if err != nil {
				return err
			}
			rows, err := fieldRows(s)
			if err != nil {
				return err
			}
			return printFields(cmd, rows, ddl.Format(s))
		},
	}
}
