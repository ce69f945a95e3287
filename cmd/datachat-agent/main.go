package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "datachat-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts := &Options{}
	if len(args) > 0 {
		opts.Init(args[0])
	}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(cmd flags.Commander, rest []string) error {
		if cmd == nil {
			return nil
		}
		if c, ok := cmd.(configured); ok {
			c.setConfigPath(opts.ConfigPath)
		}
		return cmd.Execute(rest)
	}
	_, err := parser.ParseArgs(args)
	return err
}
