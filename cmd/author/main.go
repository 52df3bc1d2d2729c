// Package main is the author CLI. Commands live in internal/cli; main maps
// their errors to exit codes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sakif/example-author/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// commands report their own errors; usage errors from cobra do not
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
