package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roostlabs/roost/internal/setup"
	"github.com/roostlabs/roost/internal/worker/sweep"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// SweeperLogDir specifies where sweeper log files are stored.
const SweeperLogDir = "logs/sweeper_logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "sweeper",
		Usage: "Start the stale presence sweeper",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single sweep cycle and exit",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSweeper(ctx, c.Bool("once"))
		},
	}

	return app.Run(context.Background(), os.Args)
}

func runSweeper(ctx context.Context, once bool) error {
	app, err := setup.InitializeApp(ctx, setup.ServiceSweeper, SweeperLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	workerLogger := app.LogManager.GetWorkerLogger("sweep")
	worker := sweep.New(app, workerLogger)

	if once {
		swept, err := worker.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("sweep cycle failed: %w", err)
		}
		log.Printf("Swept %d stale presence records", swept)
		return nil
	}

	// Stop the worker loop on interrupt
	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runWorker(runCtx, worker, workerLogger)

	log.Println("Sweeper has finished. Exiting.")
	return nil
}

// runWorker runs the sweep worker in a loop with error recovery.
func runWorker(ctx context.Context, w *sweep.Worker, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping worker")
			return
		default:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Worker execution failed",
							zap.Any("panic", r),
						)
						logger.Info("Restarting worker in 5 seconds...")
						time.Sleep(5 * time.Second)
					}
				}()

				logger.Info("Starting worker")
				w.Start(ctx)
			}()
		}
	}
}
