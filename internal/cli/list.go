package cli

import (
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/internal/report"
	"github.com/fpt/go-trackeval/internal/scenario"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			if path == "" {
				path = settings.Scenarios.Path
			}

			entries, err := scenario.List(path)
			if err != nil {
				return err
			}

			reporter, err := opts.reporter()
			if err != nil {
				return err
			}

			items := make([]report.ScenarioEntry, 0, len(entries))
			for _, e := range entries {
				items = append(items, report.ScenarioEntry{Path: e.Dir, Scenario: e.Scenario})
			}
			return reporter.List(items)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "scenarios directory (settings default if empty)")
	return cmd
}
