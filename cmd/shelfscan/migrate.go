package main

import (
	"fmt"
	"io"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

// withDB runs fn against the catalog without the automatic migration the
// other commands do.
func withDB(fn func(c *cli.Context, db *bun.DB) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		log := logger.New()
		c.Context = log.WithContext(c.Context)

		_, db, err := openDB()
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Err(err).Error("database close error")
			}
		}()
		return fn(c, db)
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the catalog schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Println("The catalog schema is up to date")
						return nil
					}
					fmt.Printf("Migrated to %s\n", group)
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "undo the last migration group",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					group, err := migrations.Rollback(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Println("Nothing to roll back")
						return nil
					}
					fmt.Printf("Rolled back %s\n", group)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "list migrations and whether they are applied",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					ms, err := migrations.Status(c.Context, db)
					if err != nil {
						return err
					}
					printMigrations(os.Stdout, ms)
					return nil
				}),
			},
		},
	}
}

func printMigrations(w io.Writer, ms migrate.MigrationSlice) {
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		group, applied := "", "pending"
		if m.IsApplied() {
			group = fmt.Sprint(m.GroupID)
			applied = m.MigratedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{m.Name, m.Comment, group, applied})
	}
	fmt.Fprintln(w, renderTable([]string{"Migration", "Name", "Group", "Applied"}, rows, 3))
}
