// Package main is the entrypoint for the usbackup scheduled backup
// orchestrator ("CLI"). Command-tree structure follows the base
// codebase's cmd/dbstash/main.go (urfave/cli/v3, one Command per mode,
// shared global flags, logger.Init at startup), generalized from
// per-engine subcommands to the daemon/run/configtest/stats contract.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/viperadnan-git/usbackup/internal/config"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/viperadnan-git/usbackup/internal/scheduler"
	"github.com/viperadnan-git/usbackup/internal/supervisor"
)

var version = "dev"

// exitConfigInvalid is the exit code for a configuration error.
const exitConfigInvalid = 2

func main() {
	app := &cli.Command{
		Name:    "usbackup",
		Usage:   "Scheduled, multi-source backup orchestrator",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML configuration file",
				Value:   "/etc/usbackup/config.yaml",
				Sources: cli.EnvVars("USBACKUP_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "Write logs to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "DEBUG, INFO, WARNING, ERROR, or CRITICAL",
				Value: "INFO",
			},
		},
		Commands: []*cli.Command{
			daemonCommand(),
			runCommand(),
			configtestCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		if model.Classify(err) == model.KindConfigInvalid {
			os.Exit(exitConfigInvalid)
		}
		os.Exit(1)
	}
}

func initLogging(cmd *cli.Command) error {
	var out *os.File = os.Stdout
	if path := cmd.String("log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file %q: %w", path, err)
		}
		out = f
	}
	logger.Init(cmd.String("log-level"), "text", out)
	return nil
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return config.Load(cmd.String("config"))
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Enter the scheduler loop",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := initLogging(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return supervisor.RunDaemon(cfg)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a one-shot job",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dest", Usage: "Destination storage name", Required: true},
			&cli.StringFlag{Name: "type", Usage: "backup or replication", Value: "backup"},
			&cli.StringFlag{Name: "replicate", Usage: "Replication source storage name"},
			&cli.StringSliceFlag{Name: "limit", Usage: "Restrict to these source names (repeatable)"},
			&cli.StringSliceFlag{Name: "exclude", Usage: "Exclude these source names (repeatable)"},
			&cli.StringFlag{Name: "retention-policy", Usage: "bucket=N,bucket=N,..."},
			&cli.StringFlag{Name: "notification-policy", Usage: "never, always, or on-failure"},
			&cli.IntFlag{Name: "concurrency", Usage: "Bounded fan-out size", Value: 1},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := initLogging(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			retention, err := model.ParseRetentionPolicy(cmd.String("retention-policy"))
			if err != nil {
				return err
			}

			opts := scheduler.RunOnceOpts{
				Dest:               cmd.String("dest"),
				Type:               model.JobType(cmd.String("type")),
				Replicate:          cmd.String("replicate"),
				Limit:              cmd.StringSlice("limit"),
				Exclude:            cmd.StringSlice("exclude"),
				RetentionPolicy:    retention,
				NotificationPolicy: model.NotificationPolicy(cmd.String("notification-policy")),
				Concurrency:        int(cmd.Int("concurrency")),
			}
			return supervisor.RunOnce(cfg, opts)
		},
	}
}

func configtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "configtest",
		Usage: "Parse and validate the configuration file",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := initLogging(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Fprintf(os.Stderr, "configuration invalid: %s\n", err)
				return err
			}
			fmt.Printf("configuration OK: %d sources, %d storages, %d jobs, %d notifiers\n",
				len(cfg.Sources), len(cfg.Storages), len(cfg.Jobs), len(cfg.Notifiers))
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print service state and last-backup records",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := initLogging(cmd); err != nil {
				return err
			}
			st, err := supervisor.ReadStats()
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				out, err := st.FormatJSON()
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			fmt.Print(st.FormatText())
			return nil
		},
	}
}
