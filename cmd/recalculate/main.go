// recalculate rescores every pending moderation task against the current
// scoring config. Run it after editing reason scores or item multipliers;
// checked-out and completed tasks are not touched.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/config"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/database"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/logging"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var taskType string
	var batchSize int
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("recalculate", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the queues YAML (default: $QUEUES_CONFIG_PATH)")
	flagSet.StringVar(&taskType, "task-type", "", "only rescore this task type (default: every queue)")
	flagSet.IntVar(&batchSize, "batch-size", services.DefaultRecalculationBatchSize, "tasks per committed batch")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Minute, "abort the run after this long")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	if configPath == "" {
		configPath = cfg.QueuesConfigPath
	}

	registry, err := queues.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if taskType != "" {
		if err := registry.Require(taskType); err != nil {
			return err
		}
	}

	if err := database.Connect(cfg); err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	recalculator := services.NewPriorityRecalculator(repository.NewGorm(database.DB), registry, clock.Real(), batchSize)
	result, err := recalculator.Recalculate(ctx, taskType)
	fmt.Printf("updated=%d errors=%d\n", result.Updated, result.Errors)
	if err != nil {
		return err
	}
	if result.Errors > 0 {
		return fmt.Errorf("%d tasks could not be rescored", result.Errors)
	}
	return nil
}
