package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shuoer86/grants-stack-indexer/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	// Commands report their own failures. Anything else is a flag or
	// argument error from cobra, which every command silences.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
