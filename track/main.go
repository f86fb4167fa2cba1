// Command track is the issue-tracker CLI handed to subprocess agents. It
// talks to the mock provider for the scenario directory named by
// TRACK_MOCK_DIR, so every command the agent runs lands in the call log.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fpt/go-trackeval/internal/mock"
	"github.com/fpt/go-trackeval/internal/runner"
	"github.com/fpt/go-trackeval/internal/scenario"
	"github.com/fpt/go-trackeval/internal/trackcmd"
)

func main() {
	os.Exit(run())
}

// run keeps deferred cleanup ahead of the exit code, so the call log is
// flushed even on command failure.
func run() int {
	scenarioDir := os.Getenv(runner.TrackMockDirEnv)
	if scenarioDir == "" {
		fmt.Fprintf(os.Stderr, "Error: %s is not set\n", runner.TrackMockDirEnv)
		return 1
	}

	provider, err := mock.NewProvider(scenarioDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer provider.Close()

	var defaultProject string
	if s, err := scenario.LoadFromDir(scenarioDir); err == nil {
		defaultProject = s.Setup.DefaultProject
	}

	executor := trackcmd.NewExecutor(provider, provider, defaultProject)
	output, isError := executor.Execute(context.Background(), os.Args[1:])

	if output != "" {
		fmt.Println(output)
	}
	if isError {
		return 1
	}
	return 0
}
