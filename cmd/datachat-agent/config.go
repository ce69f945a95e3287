package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/floegence/datachat-agent/internal/config"
	"github.com/floegence/datachat-agent/internal/logging"
)

type ConfigCmd struct {
	Init *ConfigInitCmd `command:"init" description:"Write a config file with default values"`
}

type ConfigInitCmd struct {
	Force bool `long:"force" description:"overwrite an existing file"`

	Args struct {
		Path string `positional-arg-name:"PATH" required:"yes"`
	} `positional-args:"yes"`
}

func (c *ConfigInitCmd) Execute(_ []string) error {
	if !c.Force {
		if _, err := os.Stat(c.Args.Path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", c.Args.Path)
		}
	}
	if err := config.Save(c.Args.Path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", c.Args.Path)
	return nil
}

type VersionCmd struct{}

func (VersionCmd) Execute(_ []string) error {
	fmt.Fprintf(os.Stdout, "datachat-agent %s (%s)\n", Version, Commit)
	return nil
}

func loadRuntime(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}
