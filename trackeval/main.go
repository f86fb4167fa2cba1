package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/fpt/go-trackeval/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Failed runs already printed their results.
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
