package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ppexec/internal/domain"
	"ppexec/internal/pipeline"
	"ppexec/internal/table"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		format    string
		limit     int
		noJournal bool
	)
	cmd := &cobra.Command{
		Use:   "run <pipeline-file|->",
		Short: "Execute a pipeline",
		Long: `Executes the step list in the given JSON or YAML file ("-" reads stdin)
and prints the first rows of the resulting table. The command fails with
the index of the first failing step.`,
		Example: `  ppexec run pipeline.json
  ppexec run -o json steps.yaml
  cat steps.json | ppexec run -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := readSteps(cmd.InOrStdin(), args[0], format)
			if err != nil {
				return err
			}

			eng, err := a.newEngine(cmd.Context(), !noJournal)
			if err != nil {
				return err
			}
			defer eng.Close() //nolint:errcheck

			run, err := eng.exec.Execute(cmd.Context(), steps, domain.TriggerManual)
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), getOutputFormat(cmd), run, limit)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Step list format (json, yaml); default from the file extension")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Rows to print")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "Do not record the run in the journal")
	return cmd
}

func readSteps(stdin io.Reader, path, format string) ([]domain.Step, error) {
	f := pipeline.Format(format)
	switch f {
	case "", pipeline.FormatJSON, pipeline.FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported step format %q: use 'json' or 'yaml'", format)
	}
	if path != "-" {
		if f == "" {
			return pipeline.LoadSteps(path)
		}
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read steps: %w", err)
		}
		return pipeline.ParseSteps(data, f)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if f == "" {
		f = pipeline.FormatJSON
	}
	return pipeline.ParseSteps(data, f)
}

func printRun(w io.Writer, output string, run *pipeline.Run, limit int) error {
	t := run.Table()
	if output == "json" {
		out := map[string]any{
			"id":          run.ID(),
			"state":       run.State().String(),
			"duration_ms": run.FinishedAt().Sub(run.StartedAt()).Milliseconds(),
			"rows":        0,
		}
		if t != nil {
			out["rows"] = t.Len()
			out["columns"] = t.Frame().Names()
			if s, err := t.DDL(); err == nil {
				out["schema"] = s
			}
			out["preview"] = t.Frame().Head(limit).Records()
		}
		return PrintJSON(w, out)
	}

	if t == nil {
		_, _ = fmt.Fprintln(w, "(no table)")
		return nil
	}
	PrintTable(w, t.Frame().Names(), tableRows(t, limit))
	_, _ = fmt.Fprintf(w, "(%d rows)\n", t.Len())
	return nil
}

func tableRows(t *table.Table, limit int) [][]string {
	f := t.Frame().Head(limit)
	rows := make([][]string, f.Len())
	for i := range rows {
		vals := f.Row(i)
		row := make([]string, len(vals))
		for j, v := range vals {
			row[j] = formatCell(v)
		}
		rows[i] = row
	}
	return rows
}
