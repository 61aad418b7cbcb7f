package main

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/version"
	"github.com/shishobooks/shelfscan/pkg/volumes"
	"github.com/shishobooks/shelfscan/pkg/worker"
	"github.com/urfave/cli/v2"
)

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run queued jobs, scheduled scans and device triggers until interrupted",
		Action: withApp(func(ctx context.Context, a *app, _ *cli.Context) error {
			log := logger.FromContext(ctx)
			log.Info("starting shelfscan daemon", logger.Data{"version": version.Version, "roots": a.config.ScanRoots})

			wrkr := worker.New(a.config, a.db, a.scanner)
			wrkr.Start()
			log.Info("worker started")

			scheduler, err := worker.NewScheduler(wrkr)
			if err != nil {
				wrkr.Shutdown()
				return err
			}
			scheduler.Start()
			log.Info("scheduler started", logger.Data{"schedule": a.config.ScanSchedule})

			if a.config.WatchDevices {
				monitor := volumes.NewMonitor(a.identifier, func(ctx context.Context) {
					wrkr.EnqueueScan(ctx, "device change")
				})
				if err := monitor.Start(ctx); err != nil {
					log.Err(err).Warn("device monitor unavailable")
				} else {
					defer monitor.Stop()
				}
			}

			if a.config.WatchRoots {
				rw, err := worker.NewRootWatcher(wrkr)
				if err != nil {
					log.Err(err).Warn("root watcher unavailable")
				} else {
					rw.Start(ctx)
					defer rw.Stop()
					log.Info("root watcher started", logger.Data{"interval": a.config.WatchInterval.String()})
				}
			}

			<-ctx.Done()
			log.Info("starting graceful shutdown")

			scheduler.Stop()
			log.Info("scheduler shutdown")

			wrkr.Shutdown()
			log.Info("worker shutdown")
			return nil
		}),
	}
}
