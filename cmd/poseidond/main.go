// Command poseidond runs the Poseidon server: an HTTP listener over
// netcore, the async persistence daemon, and whatever servlets the
// process registers on startup.
package main

import (
	"context"
	"fmt"

	"github.com/scott-cotton/cli"

	"github.com/poseidon/poseidon/app"
	"github.com/poseidon/poseidon/config"
	"github.com/poseidon/poseidon/logging"
)

func main() {
	cli.MainContext(context.Background(), rootCommand())
}

type rootConfig struct {
	ConfigFile string
}

func rootCommand() *cli.Command {
	cfg := &rootConfig{}
	return cli.NewCommand("poseidond").
		WithSynopsis("poseidond [-config file.yaml]").
		WithDescription("poseidond runs the Poseidon HTTP/persistence server.").
		WithOpts(&cli.Opt{
			Name:        "config",
			Description: "path to a YAML config file layered under flags/env",
			Type:        cli.NamedFuncOpt(cfg.configOpt, "(path)"),
		}).
		WithRun(func(cc *cli.Context, args []string) error {
			return run(cfg)
		})
}

func (cfg *rootConfig) configOpt(cc *cli.Context, a string) (any, error) {
	cfg.ConfigFile = a
	return nil, nil
}

func run(cfg *rootConfig) error {
	httpCfg, mgr, err := config.Bootstrap(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("poseidond: config failed: %w", err)
	}
	logging.SetThreadTag("poseidond")

	mux := newMux(mgr)
	a, err := app.New(httpCfg, mgr, mux)
	if err != nil {
		return fmt.Errorf("poseidond: startup failed: %w", err)
	}
	return a.Run()
}
