package main

import (
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:    "shelfscan",
		Usage:   "keep a book catalog in line with the files on disk",
		Version: version.Version,
		Commands: []*cli.Command{
			scanCommand(),
			enqueueCommand(),
			daemonCommand(),
			volumesCommand(),
			removeDeadCommand(),
			cleanupOrphansCommand(),
			locateCommand(),
			migrateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}
