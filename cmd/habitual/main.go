package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/dukerupert/habitual/internal/config"
	"github.com/dukerupert/habitual/internal/database"
	"github.com/dukerupert/habitual/internal/logging"
)

var version = "dev"

// Globals are the flags every subcommand shares.
type Globals struct {
	DB      string     `help:"SQLite file path or postgres:// URL." default:"habitual.db" env:"HABITUAL_DB"`
	Log     config.Log `embed:"" prefix:"log-"`
	EnvFile string     `help:"Load environment variables from this file." default:".env" name:"env-file"`
}

// Env is what each command's Run receives.
type Env struct {
	Globals *Globals
	Logger  *slog.Logger
}

// OpenDB opens and migrates the configured database.
func (e *Env) OpenDB() (*database.DB, error) {
	db, err := database.Open(e.Globals.DB)
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("database ready", "dialect", db.Dialect())
	return db, nil
}

var CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print the version and exit."`

	Serve     ServeCmd     `cmd:"" help:"Run the web server." default:"1"`
	Migrate   MigrateCmd   `cmd:"" help:"Apply pending database migrations."`
	Heatmap   HeatmapCmd   `cmd:"" help:"Print a user's heatmap in the terminal."`
	VapidKeys VapidKeysCmd `cmd:"" name:"vapid-keys" help:"Generate a VAPID key pair for push reminders."`
	Backup    struct {
		Now   BackupNowCmd   `cmd:"" help:"Upload a snapshot now." default:"1"`
		List  BackupListCmd  `cmd:"" help:"List snapshots in the bucket."`
		Fetch BackupFetchCmd `cmd:"" help:"Download a snapshot, decrypting it when needed."`
	} `cmd:"" help:"Manage database snapshots in S3."`
}

func main() {
	// The env file has to be loaded before kong reads env: tags.
	if err := config.LoadEnvFile(envFileFromArgs(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := kong.Parse(&CLI,
		kong.Name("habitual"),
		kong.Description("Habit tracker with a 52-week heatmap."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": version},
	)

	logger, closer, err := logging.Setup(logging.Config{
		Level:  CLI.Log.Level,
		Format: CLI.Log.Format,
		File:   CLI.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(&Env{Globals: &CLI.Globals, Logger: logger})
	closeQuietly(closer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envFileFromArgs finds --env-file before kong has parsed anything.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return v
		}
	}
	return ".env"
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
