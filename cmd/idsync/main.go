// Package main provides the idsync CLI.
package main

import (
	"errors"
	"fmt"
	"os"
)

// errRowFailures signals that the run finished but some rows failed; the
// process exits with exitRowFailures so callers can distinguish "nothing to
// do" from "look at the report".
var errRowFailures = errors.New("some rows failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errRowFailures) {
			os.Exit(exitRowFailures)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}
