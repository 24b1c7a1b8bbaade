package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ies-sculpt/backend/internal/config"
	"github.com/ies-sculpt/backend/internal/logging"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.AppConfig, args []string) error
}

var commands = []command{
	{"matrix", "build the contribution matrix from oracle results", runMatrix},
	{"optimize", "fit scale factors for a scene and write sculpted profiles", runOptimize},
	{"inspect", "print a parsed profile as JSON", runInspect},
	{"scale", "write a copy of a profile with scaled candela values", runScale},
	{"serve", "run the HTTP API", runServe},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: sculpt [-config path] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nGlobal flags:\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", config.DefaultFileName, "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == flag.Arg(0) {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LoggingOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, cfg, flag.Args()[1:]); err != nil {
		logging.Error().Err(err).Str("command", cmd.name).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}
