package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/soltide/poolmgr/internal/lib/misc"
)

func GetDaemonCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the maintainer as a daemon",
		Before:  checkConfigured, // make sure the pool addresses are set
		Action:  runAsDaemon,
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:    "port",
				Usage:   "Port to serve prometheus metrics on",
				Value:   8923,
				Sources: cli.EnvVars("TIDE_METRICS_PORT"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often to poll the pool for maintenance when nothing is due",
				Value:   time.Minute,
				Sources: cli.EnvVars("TIDE_POLL_INTERVAL"),
			},
		},
	}
}

func runAsDaemon(ctx context.Context, cmd *cli.Command) error {
	var wg sync.WaitGroup

	if _, err := App.tideClient.LoadSnapshot(ctx); err != nil {
		return err
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(context.Background())

	newDaemon(int(cmd.Uint("port")), cmd.Duration("interval")).start(ctx, &wg)

	misc.Infof(App.logger, "exiting (%v)", <-errc) // wait for termination signal

	// Send cancellation signal to the goroutines.
	cancel()
	misc.Infof(App.logger, "waiting on background tasks..")
	wg.Wait()

	misc.Infof(App.logger, "exited")
	return nil
}
