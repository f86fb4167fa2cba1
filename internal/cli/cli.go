// Package cli wires the trackeval commands: run one scenario, run a batch,
// list and inspect scenarios.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/internal/config"
	"github.com/fpt/go-trackeval/internal/evaluate"
	"github.com/fpt/go-trackeval/internal/mock"
	"github.com/fpt/go-trackeval/internal/report"
	"github.com/fpt/go-trackeval/internal/runner"
	"github.com/fpt/go-trackeval/internal/scenario"
	"github.com/fpt/go-trackeval/internal/trackcmd"
	"github.com/fpt/go-trackeval/pkg/logger"
)

// ErrRunFailed marks scenarios that completed but did not pass. The results
// were already reported; main only needs the nonzero exit.
var ErrRunFailed = errors.New("run failed")

// rootOptions holds persistent flag state shared by all subcommands.
type rootOptions struct {
	settingsPath string
	output       string
	verbose      bool
}

// NewRootCommand builds the trackeval command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "trackeval",
		Short:         "Evaluate AI agents against mock issue-tracker scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "path to settings file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text or json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		newRunCommand(opts),
		newRunAllCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
	)

	return root
}

// loadSettings reads the settings file and applies the verbose flag to the
// global log level.
func (o *rootOptions) loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(o.settingsPath)
	if err != nil {
		return nil, err
	}

	level := settings.Harness.LogLevel
	if o.verbose {
		level = "debug"
	}
	logger.SetGlobalLogLevel(logger.LogLevel(level))

	return settings, nil
}

func (o *rootOptions) reporter() (*report.Reporter, error) {
	format, err := report.ParseFormat(o.output)
	if err != nil {
		return nil, err
	}
	return report.New(os.Stdout, format), nil
}

// buildStrategy selects the agent strategy for the configured provider.
func buildStrategy(settings *config.Settings) (runner.Strategy, error) {
	switch settings.Provider.Name {
	case "anthropic":
		return runner.NewAnthropicStrategy(os.Getenv("ANTHROPIC_API_KEY")), nil
	case "openai":
		return runner.NewOpenAIStrategy(os.Getenv("OPENAI_API_KEY")), nil
	case "claude-code":
		return &runner.ClaudeCodeStrategy{TrackBin: settings.Provider.TrackBin}, nil
	case "copilot":
		return &runner.CopilotStrategy{TrackBin: settings.Provider.TrackBin}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.Provider.Name)
	}
}

// runScenario executes one scenario end to end: reset the call log, run the
// agent, then score whatever the provider logged.
func runScenario(ctx context.Context, dir string, settings *config.Settings, verbose bool) (*evaluate.Result, *runner.Result, error) {
	s, err := scenario.LoadFromDir(dir)
	if err != nil {
		return nil, nil, err
	}

	if err := mock.ResetCallLog(dir); err != nil {
		return nil, nil, err
	}

	provider, err := mock.NewProvider(dir)
	if err != nil {
		return nil, nil, err
	}

	strategy, err := buildStrategy(settings)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}

	session := &runner.Session{
		Scenario:    s,
		ScenarioDir: dir,
		Executor:    trackcmd.NewExecutor(provider, provider, s.Setup.DefaultProject),
		Model:       settings.Provider.Model,
		MaxTurns:    settings.Harness.MaxTurns,
		Verbose:     verbose,
		Logger:      logger.NewComponentLogger("runner").WithScenario(s.Meta.Name),
	}

	sessionResult, runErr := strategy.Run(ctx, session)

	// The log must be flushed before scoring reads it.
	if err := provider.Close(); err != nil {
		return nil, nil, err
	}
	if runErr != nil {
		return nil, nil, runErr
	}

	calls, err := mock.ReadCallLog(dir)
	if err != nil {
		return nil, nil, err
	}

	evalResult := evaluate.New(s, evaluate.Options{
		MinScore: settings.Harness.MinScore,
		Strict:   settings.Harness.Strict,
	}).WithVocabulary(provider.Manifest().Methods()).Evaluate(calls)

	return evalResult, sessionResult, nil
}
