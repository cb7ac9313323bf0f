// ABOUTME: Entry point for the platam contact sync CLI
// ABOUTME: Loads configuration, opens the history store, and routes to commands
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jpchacon09/APOLLO/cli"
	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/db"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/platam/config.json)")
	dbPath := flag.String("db-path", "", "History database path (overrides config)")
	ledgerPath := flag.String("ledger", "", "Contact ledger CSV (overrides config)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("platam version %s\n", version)
		os.Exit(0)
	}

	// Get remaining args after flags
	args := flag.Args()

	// If no command specified, show usage
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *ledgerPath != "" {
		cfg.LedgerPath = *ledgerPath
	}

	// Config commands never touch the database
	if len(args) > 0 && args[0] == "config" {
		runConfigCommand(cfg, args[1:])
		return
	}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Handle init-only flag
	if *initOnly {
		log.Printf("History database initialized: %s", cfg.DBPath)
		return
	}

	// Route to top-level command
	command := args[0]
	commandArgs := args[1:]

	var run func(*config.Config, *sql.DB, []string) error
	switch command {
	case "sync":
		run = cli.SyncCommand
	case "status":
		run = cli.StatusCommand
	case "snapshot":
		run = cli.SnapshotCommand
	case "dashboard":
		run = cli.DashboardCommand
	case "import-events":
		run = cli.ImportEventsCommand
	case "reconcile":
		run = cli.ReconcileCommand
	case "campaigns":
		run = cli.CampaignsCommand
	case "tui":
		run = cli.TUICommand

	case "viz":
		if len(commandArgs) < 2 || commandArgs[0] != "graph" || commandArgs[1] != "pipeline" {
			fmt.Println("Error: viz requires a subcommand (graph pipeline)")
			printUsage()
			os.Exit(1)
		}
		run = cli.VizGraphPipelineCommand
		commandArgs = commandArgs[2:]

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := run(cfg, database, commandArgs); err != nil {
		database.Close()
		log.Fatalf("Error: %v", err)
	}
}

func runConfigCommand(cfg *config.Config, args []string) {
	if len(args) == 0 {
		fmt.Println("Error: config requires a subcommand (show, init)")
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "show":
		err = cli.ConfigShowCommand(cfg, args[1:])
	case "init":
		err = cli.ConfigInitCommand(args[1:])
	default:
		fmt.Printf("Unknown config command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`platam v%s - Contact sync and enrichment for Apollo.io

USAGE:
  platam [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/platam/config.json)
  --db-path <path>       History database (default: ~/.local/share/platam/platam.db)
  --ledger <path>        Contact ledger CSV (default: ~/.local/share/platam/contacts.csv)
  --init                 Initialize database and exit

ENVIRONMENT:
  APOLLO_API_KEY         Provider API key (required for sync and campaigns --refresh)
  APOLLO_BASE_URL        Provider API root
  PLATAM_LEDGER, PLATAM_DB, PLATAM_SNAPSHOT, PLATAM_BATCH_LIMIT,
  PLATAM_WORKERS, PLATAM_ENRICH, PLATAM_ENV
  A .env file in the working directory is read when present.

COMMANDS:
  platam sync                 Sync a batch of pending contacts
    --limit <n>                 Max contacts (default: batch_limit)
    --workers <n>               Concurrent contact workers
    --enrich                    Fill empty profile fields from people match
    --no-snapshot               Skip writing the reporting snapshot

  platam status               Show sync state, recent runs, and coverage
    --runs <n>                  Recent runs to show (default: 5)
    --json                      Print status as JSON
    --run <id>                  Show the per-contact attempts of one run

  platam snapshot             Write the reporting snapshot
    --output <file>             Snapshot file (default: snapshot_path)
    --stdout                    Print instead of writing

  platam dashboard            Render the pipeline dashboard
    --cached                    Use the last written snapshot

  platam import-events <file> Import a task export CSV into history
    --reconcile                 Reconcile the ledger afterwards

  platam reconcile            Apply stored history to the ledger

  platam campaigns            List cached campaign names
    --refresh                   Fetch campaign names from the provider first

  platam viz graph pipeline   Generate the pipeline funnel graph
    --output <file>             Output file (default: stdout)
    --contacts <n>              Contacts drawn per category (default: 5)
    --cached                    Use the last written snapshot

  platam tui                  Interactive pipeline browser and sync monitor
    --log <file>                Log file for sync runs started from the UI

  platam config show          Print the effective configuration
  platam config init          Write a default config file
    --path <file>               Config file to write
    --force                     Overwrite an existing file

EXAMPLES:
  # Sync 50 contacts with two workers and enrichment
  platam sync --limit 50 --workers 2 --enrich

  # Backfill history from an export and update the ledger
  platam import-events --reconcile tasks.csv

  # Render the funnel as an image
  platam viz graph pipeline --output pipeline.dot && dot -Tpng pipeline.dot -o pipeline.png

`, version)
}
