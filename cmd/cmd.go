// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the ledger database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent ledger migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles Google authorization.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google Photos authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize read-only access to your library with OAuth2",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the consent URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored token and whether it can be refreshed",
				Action: r.AuthStatus,
			},
		},
	}
}

// syncCommand downloads new media items for the configured date range.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download media items that are not yet in the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "start",
				Usage: "First capture date to include (YYYY-MM-DD), overrides backup.start_date",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Last capture date to include (YYYY-MM-DD), overrides backup.end_date",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Backup directory, overrides backup.directory",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show an interactive progress view",
			},
			&cli.BoolFlag{
				Name:  "no-organize",
				Usage: "Skip organizing files into dated folders after the sync",
			},
		},
		Action: r.Sync,
	}
}

// organizeCommand arranges downloaded files without touching the network.
func organizeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "organize",
		Usage: "Move downloads into YYYY-MM folders and link them into album folders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Backup directory, overrides backup.directory",
			},
		},
		Action: r.Organize,
	}
}

// verifyCommand checks ledger records against disk.
func verifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check that every recorded download is still on disk",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Backup directory, overrides backup.directory",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent checks",
				Value: 4,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Maximum file checks per second (0 for unlimited)",
			},
		},
		Action: r.Verify,
	}
}

// albumsCommand lists albums recorded in the ledger.
func albumsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "albums",
		Usage: "Album operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List albums with the number of backed up items",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AlbumsList,
			},
			{
				Name:   "browse",
				Usage:  "Browse albums interactively",
				Action: r.AlbumsBrowse,
			},
		},
	}
}

// statusCommand summarises the ledger.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show ledger counts, resume cursor and recent runs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.IntFlag{
				Name:  "runs",
				Usage: "Number of recent runs to show",
				Value: 5,
			},
		},
		Action: r.Status,
	}
}

// ledgerCommand holds ledger maintenance operations.
func ledgerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Ledger maintenance",
		Commands: []*cli.Command{
			{
				Name:   "reset-cursor",
				Usage:  "Forget the saved resume position so the next sync starts from the first page",
				Action: r.LedgerResetCursor,
			},
		},
	}
}

// exportCommand writes ledger contents to a file or stdout.
func exportCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, json or txt",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
		}
	}

	return &cli.Command{
		Name:  "export",
		Usage: "Export ledger contents",
		Commands: []*cli.Command{
			{
				Name:   "records",
				Usage:  "Export download records with their metadata and albums",
				Flags:  flags(),
				Action: r.ExportRecords,
			},
			{
				Name:   "albums",
				Usage:  "Export albums with their backed up item counts",
				Flags:  flags(),
				Action: r.ExportAlbums,
			},
		},
	}
}
