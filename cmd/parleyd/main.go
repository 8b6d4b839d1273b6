package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/matheus3301/parley/internal/daemon"
	"github.com/matheus3301/parley/internal/session"
)

func main() {
	flags := pflag.NewFlagSet("parleyd", pflag.ExitOnError)
	sessionFlag := flags.StringP("session", "s", "", "session name (overrides config default)")
	configFlag := flags.String("config", "", "config file (default ~/.parley/config.toml)")
	debugFlag := flags.Bool("debug", false, "log at debug level")
	quietFlag := flags.BoolP("quiet", "q", false, "log to the session log file only")
	_ = flags.Parse(os.Args[1:])

	sessionName, err := session.ResolveValid(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ConfigPath:  *configFlag,
			Debug:       *debugFlag,
			Quiet:       *quietFlag,
		}),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app.Run()
}
