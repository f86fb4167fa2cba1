package cli

import (
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/internal/scenario"
)

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <scenario-dir>",
		Short: "Show a scenario's prompt, outcomes and scoring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scenario.LoadFromDir(args[0])
			if err != nil {
				return err
			}

			reporter, err := opts.reporter()
			if err != nil {
				return err
			}
			return reporter.Show(s)
		},
	}
}
