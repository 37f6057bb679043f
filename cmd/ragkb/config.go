package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/toml"
)

// Run executes the config init command.
func (c *ConfigInitCmd) Run(deps *Dependencies) error {
	path := deps.ConfigPath
	if _, err := os.Stat(path); err == nil && !c.Force {
		return ragkb.Errorf(ragkb.ECONFLICT, "%s already exists; use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	cfg := ragkb.DefaultConfig()
	cfg.Database.Path = deps.Config.Database.Path
	if err := toml.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Wrote %s\n", path)
	return nil
}
