package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newCommandsCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the registered transformation units",
		Long: `Lists system units, builtins and the plugins found in the configured
plugin directory, with their argument rules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.newEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer eng.Close() //nolint:errcheck

			entries := eng.registry.Entries()
			if source != "" {
				kept := entries[:0]
				for _, e := range entries {
					if string(e.Source) == source {
						kept = append(kept, e)
					}
				}
				entries = kept
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), entries)
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rules := make([]string, 0, len(e.Syntax.Rules))
				for _, r := range e.Syntax.Rules {
					s := r.Name
					if r.Required {
						s += "!"
					}
					if r.Inf {
						s += "..."
					}
					if r.Type != "" && string(r.Type) != "arg" {
						s += ":" + string(r.Type)
					}
					rules = append(rules, s)
				}
				rows = append(rows, []string{e.Name, string(e.Source), e.Origin, strings.Join(rules, " ")})
			}
			PrintTable(cmd.OutOrStdout(), []string{"name", "source", "origin", "rules"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Only list units from this source (system, builtin, plugin)")
	return cmd
}
