package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/jobs"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/registry"
	"github.com/urfave/cli/v2"
)

// withApp builds the app around a logger-carrying context that is
// cancelled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		log := logger.New()
		ctx, cancel := context.WithCancel(log.WithContext(c.Context))
		defer cancel()

		graceful := signals.Setup()
		go func() {
			select {
			case <-graceful:
				log.Info("interrupted; stopping")
				cancel()
			case <-ctx.Done():
			}
		}()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return fn(ctx, a, c)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "scan roots and reconcile the catalog",
		ArgsUsage: "[roots...]",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			roots, err := a.roots(c.Args().Slice())
			if err != nil {
				return err
			}

			progress, wait := watchProgress(logger.FromContext(ctx), os.Stderr)
			result, err := a.scanner.Scan(ctx, roots, progress)
			close(progress)
			wait()

			if result != nil {
				printResult(os.Stdout, result)
			}
			return err
		}),
	}
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "queue a scan for the daemon",
		ArgsUsage: "[roots...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "remove-dead", Usage: "queue dead location removal instead of a scan"},
		},
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			jobType := models.JobTypeScan
			if c.Bool("remove-dead") {
				jobType = models.JobTypeRemoveDead
			}

			job, created, err := jobs.NewService(a.db).EnqueueScan(ctx, jobType, c.Args().Slice())
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("Job %d is already pending\n", job.ID)
				return nil
			}
			fmt.Printf("Queued %s job %d\n", jobType, job.ID)
			return nil
		}),
	}
}

func volumesCommand() *cli.Command {
	return &cli.Command{
		Name:  "volumes",
		Usage: "list the storage volumes currently visible",
		Action: withApp(func(ctx context.Context, a *app, _ *cli.Context) error {
			if err := a.identifier.Refresh(ctx); err != nil {
				return err
			}
			vols := a.identifier.Volumes()
			rows := make([][]string, 0, len(vols))
			for _, v := range vols {
				rows = append(rows, []string{v.Designator, v.Serial})
			}
			fmt.Println(renderTable([]string{"Device", "Volume ID"}, rows))
			return nil
		}),
	}
}

func removeDeadCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove-dead",
		Usage:     "delete locations whose files are gone",
		ArgsUsage: "[roots...]",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			roots, err := a.roots(c.Args().Slice())
			if err != nil {
				return err
			}
			result, err := a.scanner.RemoveDeadLocations(ctx, roots)
			if result != nil {
				printResult(os.Stdout, result)
			}
			return err
		}),
	}
}

func cleanupOrphansCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup-orphans",
		Usage: "delete books that have no locations left",
		Action: withApp(func(ctx context.Context, a *app, _ *cli.Context) error {
			n, err := a.scanner.DeleteOrphanBooks(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d orphan books\n", n)
			return nil
		}),
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "print where a book can be read from right now",
		ArgsUsage: "<book-id>",
		Action: withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			id, err := strconv.Atoi(c.Args().First())
			if err != nil {
				return errors.Errorf("invalid book id %q", c.Args().First())
			}
			path, err := a.scanner.ResolveBookPath(ctx, id)
			if errors.Is(err, errcodes.NotFound("Location")) {
				printLocations(ctx, a, id)
			}
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		}),
	}
}

// printLocations shows every known copy of a book and whether its volume is
// attached, for when none can be read right now.
func printLocations(ctx context.Context, a *app, bookID int) {
	book, err := a.registry.RetrieveBook(ctx, registry.RetrieveBookOptions{ID: &bookID, IncludeLocations: true})
	if err != nil {
		return
	}
	rows := make([][]string, 0, len(book.Locations))
	for _, loc := range book.Locations {
		device := "not connected"
		if d, err := a.identifier.DesignatorFor(ctx, loc.VolumeID); err == nil {
			device = d
		}
		rows = append(rows, []string{loc.FullPath(), loc.VolumeID, device, loc.Status})
	}
	fmt.Fprintln(os.Stderr, renderTable([]string{"Path", "Volume ID", "Device", "Status"}, rows))
}
