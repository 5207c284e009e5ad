package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/programme-lv/unpacker/internal/batch"
	"github.com/programme-lv/unpacker/internal/gather"
	"github.com/programme-lv/unpacker/internal/gather/natsgath"
	"github.com/programme-lv/unpacker/internal/gather/termgath"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:      "unpacker",
		Usage:     "unpack, validate and grade a bundle of student submission archives",
		ArgsUsage: "<config> <bundle> [target]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Value:   1,
				Usage:   "number of submissions processed concurrently",
				Sources: cli.EnvVars("UNPACKER_JOBS"),
			},
			&cli.DurationFlag{
				Name:    "extract-timeout",
				Value:   2 * time.Minute,
				Usage:   "deadline for each external extractor invocation",
				Sources: cli.EnvVars("UNPACKER_EXTRACT_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "publish progress events to this NATS server",
				Sources: cli.EnvVars("UNPACKER_NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "nats-subject",
				Value:   "unpacker.progress",
				Sources: cli.EnvVars("UNPACKER_NATS_SUBJECT"),
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "suppress terminal progress output",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("batch run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("expected <config> <bundle> [target] arguments, got %d", cmd.Args().Len())
	}
	target := cmd.Args().Get(2)
	if target == "" {
		target = "x"
	}

	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var sinks gather.Multi
	if !cmd.Bool("quiet") {
		sinks = append(sinks, termgath.New())
	}
	if url := cmd.String("nats-url"); url != "" {
		nc, err := nats.Connect(url, nats.Name("unpacker"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() { _ = nc.Drain() }()
		sinks = append(sinks, natsgath.New(nc, cmd.String("nats-subject")))
	}

	return batch.Run(ctx, batch.Options{
		ConfigPath:     cmd.Args().Get(0),
		BundlePath:     cmd.Args().Get(1),
		TargetDir:      target,
		RunID:          runID,
		Jobs:           int(cmd.Int("jobs")),
		ExtractTimeout: cmd.Duration("extract-timeout"),
		Gatherer:       sinks,
		Logger:         logger,
	})
}
