// Command tslgraph edits, checks and compiles TSL shader graphs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/cli"
)

const version = "0.1.0"

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := &cli.BasicUi{Reader: os.Stdin, Writer: os.Stdout, ErrorWriter: os.Stderr}
	c := cli.NewCLI("tslgraph", version)
	c.Args = args
	c.Commands = commands(Meta{Ui: ui, Ctx: ctx})
	c.HelpWriter = os.Stdout

	code, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tslgraph: %v\n", err)
		return 1
	}
	return code
}
