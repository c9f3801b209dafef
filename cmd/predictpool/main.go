// Command predictpool is the client daemon for the prediction pool: it polls
// rounds, keeps the wallet's predictions and submits signed ones, and stakes
// through the vault contract.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/otel"
)

const usage = `Usage: predictpool [-config file] <command> [args]

Commands:
  run                 poll rounds, show the terminal view and serve the local API
  predict up|down     submit a prediction for the round accepting predictions
  balance             show wallet and staked balance
  stake <amount>      stake MON in the vault
  withdraw <amount>   withdraw staked shares
  history             show the wallet's predictions with a per-epoch summary
  stats [-epoch N]    show the backend's stats for the wallet
  leaderboard [-epoch N]
  round <id>          show the up/down split of a round
  info                show backend health and vault figures
  encrypt-key -out FILE [-key HEX] [-passphrase P]
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("predictpool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML or TOML configuration file")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	setupLogging(cfg.Logging, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otel.InitTracer(cfg.Telemetry)
	defer shutdownTracer()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	if err := handler(ctx, cfg, cmdArgs, stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "%v\n\n", err)
			fs.Usage()
			return 2
		}
		logrus.WithError(err).WithField("command", cmd).Error("Command failed")
		return 1
	}
	return 0
}

// setupLogging configures logrus from the logging section.
func setupLogging(cfg config.LoggingConfig, out io.Writer) {
	logrus.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
