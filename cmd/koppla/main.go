// Command koppla loads, edits and persists access-control graphs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/koppla/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own failures; usage errors from cobra are not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
