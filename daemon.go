package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/repeat"

	"github.com/soltide/poolmgr/internal/lib/misc"
	"github.com/soltide/poolmgr/internal/lib/sol"
	"github.com/soltide/poolmgr/internal/lib/tide"
)

// Daemon provides a 'little' separation in that we initialize it with some data from the App global set up by
// the process startup, but the Daemon keeps to its own fields from there.
type Daemon struct {
	logger     *slog.Logger
	rpcClient  *rpc.Client
	tideClient *tide.Pool

	metricsPort  int
	pollInterval time.Duration

	// Only touched from the watcher goroutine.
	warnedNotInList bool

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	avgSlotTime time.Duration
}

func newDaemon(metricsPort int, pollInterval time.Duration) *Daemon {
	return &Daemon{
		logger:       App.logger,
		rpcClient:    App.rpcClient,
		tideClient:   App.tideClient,
		metricsPort:  metricsPort,
		pollInterval: pollInterval,
		avgSlotTime:  400 * time.Millisecond,
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting SolTide pool maintainer")
	if !d.tideClient.CanSign() {
		d.logger.Warn("no maintainer key loaded, running read-only (metrics only)")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.MaintenanceWatcher(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.serveMetrics(ctx)
	}()
}

// MaintenanceWatcher runs the maintenance cycle forever: take a fresh
// snapshot, decide whether it is our turn, perform at most one action, then
// sleep until there is a reason to look again. After performing an action it
// loops straight into another pass, one action often unblocks the next
// (merge first, then the balance update it shrank, and so on).
func (d *Daemon) MaintenanceWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting MaintenanceWatcher")
	d.logger.Info("Starting MaintenanceWatcher")

	// make sure avg slot time is set first
	d.setAverageSlotTime(ctx)
	lastSlotTimeRefresh := time.Now()

	for {
		sleepFor := d.maintenancePass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
		if time.Since(lastSlotTimeRefresh) > 30*time.Minute {
			d.setAverageSlotTime(ctx)
			lastSlotTimeRefresh = time.Now()
		}
	}
}

// maintenancePass does one cycle and returns how long to sleep before the
// next one. Zero means more work is likely already waiting.
func (d *Daemon) maintenancePass(ctx context.Context) time.Duration {
	snapshot, err := d.refetchSnapshot(ctx)
	if err != nil {
		misc.Warnf(d.logger, "giving up on snapshot refresh for now, error:%v", err)
		return d.pollInterval
	}

	if !d.tideClient.CanSign() {
		// Metrics-only mode, LoadSnapshot already published everything.
		return d.pollInterval
	}

	if wait := d.durationToNextDuty(snapshot); wait > 0 {
		return wait
	}

	output, err := d.tideClient.PerformMaintenance(ctx, snapshot)
	if err != nil {
		misc.Warnf(d.logger, "maintenance attempt failed, error:%v", err)
		return d.pollInterval
	}
	if output == nil {
		misc.Debugf(d.logger, "no maintenance needed for pool:%s", d.tideClient.PoolAddress)
		return d.pollInterval
	}
	misc.Infof(d.logger, "performed maintenance: %s", output)
	return 0
}

// durationToNextDuty returns how long to sit out because another maintainer
// holds the current duty window, or zero when we should act now. A
// maintainer missing from the maintainer list gets one warning and then acts
// anyway, the schedule is advisory and the program arbitrates.
func (d *Daemon) durationToNextDuty(s *tide.Snapshot) time.Duration {
	nextDutySlot, inList := s.NextMaintainerDutySlot(s.Maintainer)
	if !inList {
		if !d.warnedNotInList {
			misc.Warnf(d.logger, "maintainer %s is not in the pool's maintainer list, proceeding without duty rotation", s.Maintainer)
			d.warnedNotInList = true
		}
		return 0
	}
	if onDuty := s.CurrentMaintainerDuty(); onDuty != nil && onDuty.Equals(s.Maintainer) {
		return 0
	}

	// Someone else is on duty, or we're in a pause window. Sleep toward our
	// own window, capped at the poll interval so we keep metrics fresh.
	wait := durationUntilSlot(s.Clock.Slot, nextDutySlot, d.AverageSlotTime())
	if wait > d.pollInterval {
		wait = d.pollInterval
	}
	misc.Debugf(d.logger, "not on duty at slot:%d, next duty at slot:%d, sleeping %v", s.Clock.Slot, nextDutySlot, wait)
	return wait
}

// durationUntilSlot estimates the wall time until the cluster reaches the
// target slot, given the measured average slot time.
func durationUntilSlot(currentSlot, targetSlot uint64, slotTime time.Duration) time.Duration {
	if targetSlot <= currentSlot {
		return 0
	}
	return time.Duration(targetSlot-currentSlot) * slotTime
}

func (d *Daemon) refetchSnapshot(ctx context.Context) (*tide.Snapshot, error) {
	var snapshot *tide.Snapshot
	err := repeat.Repeat(
		repeat.Fn(func() error {
			var err error
			snapshot, err = d.tideClient.LoadSnapshot(ctx)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(10),
		repeat.FnOnError(func(err error) error {
			d.logger.Warn("retrying snapshot fetch", "error", err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 5 * time.Second,
				MaxDelay:  10 * time.Second,
			}).Set(),
		),
	)
	return snapshot, err
}

func (d *Daemon) AverageSlotTime() time.Duration {
	d.RLock()
	defer d.RUnlock()
	return d.avgSlotTime
}

func (d *Daemon) setAverageSlotTime(ctx context.Context) error {
	slotTime, err := sol.CalcSlotTime(ctx, d.rpcClient)
	if err != nil {
		return fmt.Errorf("unable to measure slot time: %w", err)
	}
	d.Lock()
	d.avgSlotTime = slotTime
	d.Unlock()
	misc.Infof(d.logger, "average slot time set to:%v", slotTime)
	return nil
}

func (d *Daemon) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", d.statusPage)

	server := &http.Server{
		Addr:         fmt.Sprintf("localhost:%d", d.metricsPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	misc.Infof(d.logger, "serving metrics on http://%s/metrics", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		misc.Errorf(d.logger, "metrics server stopped, error:%v", err)
	}
}

func (d *Daemon) statusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s := d.tideClient.Snapshot()
	if s == nil {
		fmt.Fprintln(w, "poolmgr: no snapshot loaded yet")
		return
	}
	fmt.Fprintf(w, "poolmgr %s\n\n", misc.GetVersionInfo())
	fmt.Fprintf(w, "pool:        %s\n", s.PoolAddress)
	fmt.Fprintf(w, "epoch:       %d (slot %d)\n", s.Clock.Epoch, s.Clock.Slot)
	fmt.Fprintf(w, "validators:  %d\n", len(s.Validators.Entries))
	fmt.Fprintf(w, "maintainers: %d\n", len(s.Maintainers.Entries))
	fmt.Fprintf(w, "reserve:     %s SOL\n", sol.FormattedSolAmount(s.ReserveBalance))
	fmt.Fprintf(w, "snapshot:    %s\n", s.ProducedAt.Format(time.RFC3339))
}
