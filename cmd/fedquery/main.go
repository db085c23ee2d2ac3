// Command fedquery answers SPARQL queries over a federation of endpoints.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/fedquery/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own errors; this covers flag and argument errors.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
