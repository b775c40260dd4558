package main

import (
	"fmt"
	"io"

	"github.com/MrEthical07/hostauth/plugin"
	"github.com/urfave/cli/v2"
)

func checkCmd() *cli.Command {
	var common commonFlags
	return &cli.Command{
		Name:  "check",
		Usage: "Load the config, build every engine and print where each would be served",
		Flags: common.flags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := common.load()
			if err != nil {
				return err
			}
			st, err := newStack(ctx.Context, cfg, common.logger())
			if err != nil {
				return err
			}
			defer st.Close()
			printSummary(ctx.App.Writer, cfg, st.engines)
			return nil
		},
	}
}

func printSummary(w io.Writer, cfg *plugin.Config, res *plugin.Result) {
	fmt.Fprintf(w, "id type: %s\n", cfg.IDType)
	if !res.Multi() {
		opts := res.Engine.Options()
		fmt.Fprintf(w, "engine: %s cookie prefix %s\n", opts.BasePath, opts.Advanced.CookiePrefix)
		return
	}
	for _, name := range cfg.InstanceNames() {
		opts := res.Instances[name].Options()
		fmt.Fprintf(w, "instance %s: %s cookie prefix %s\n", name, opts.BasePath, opts.Advanced.CookiePrefix)
	}
}
