// ABOUTME: Entry point for the sfcrm record merge service and CLI
// ABOUTME: Loads config, opens the store, and routes to a subcommand
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/cli"
	"github.com/harperreed/sfcrm/config"
	"github.com/harperreed/sfcrm/tui"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.local/share/sfcrm/config.json)")
	dataDir := flag.String("data-dir", "", "Data directory for the local store and journal")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the config")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("sfcrm version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "sfcrm"})

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Fatal("failed to load env file", "err", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	logger = cfg.NewLogger(os.Stderr)

	command, commandArgs := args[0], args[1:]

	// config needs no store
	if command == "config" {
		if err := cli.ConfigCommand(cfg, *configPath, os.Stdout, commandArgs); err != nil {
			logger.Fatal("config failed", "err", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.Open(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}

	err = run(ctx, app, command, commandArgs)
	if cerr := app.Close(); cerr != nil {
		logger.Warn("close failed", "err", cerr)
	}
	if err != nil {
		logger.Error(command+" failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *cli.App, command string, args []string) error {
	switch command {
	case "merge":
		return cli.MergeCommand(ctx, app, os.Stdin, os.Stdout, args)
	case "list":
		return cli.ListCommand(ctx, app, os.Stdout, args)
	case "delete":
		return cli.DeleteCommand(ctx, app, os.Stdout, args)
	case "undo":
		return cli.UndoCommand(ctx, app, os.Stdin, os.Stdout, args)
	case "ingest":
		return cli.IngestCommand(ctx, app, os.Stdout, args)
	case "watch":
		return cli.WatchCommand(ctx, app, os.Stdout, args)
	case "journal":
		return cli.JournalCommand(ctx, app, os.Stdout, args)
	case "sync":
		return cli.SyncCommand(ctx, app, os.Stdout, args)
	case "serve":
		return cli.ServeCommand(ctx, app, os.Stdin, os.Stdout, args)
	case "mcp":
		return cli.MCPCommand(ctx, app, version)
	case "viz":
		return cli.VizCommand(ctx, app, os.Stdout, args)
	case "web":
		return cli.WebCommand(ctx, app, args)
	case "tui":
		return tui.Run(app.Query, app.Config.UndoWindow)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	return nil
}

func printUsage() {
	fmt.Printf(`sfcrm v%s - CRM record extraction merge service

USAGE:
  sfcrm [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.local/share/sfcrm/config.json)
  --data-dir <path>      Data directory for the local store and journal
  --env-file <path>      Dotenv file (default: .env)

RECORD COMMANDS:
  sfcrm merge              Merge one record (JSON from --json, --file or stdin)
    --type <type>            lead, contact, account, opportunity or task (required)

  sfcrm list               List stored records
    --type <type>            Object type (default: opportunity)
    --all                    Include soft-deleted records
    --limit <n>              Max results
    --format <fmt>           auto, table or json

  sfcrm delete             Soft-delete a record
    --type <type> --id <key>

  sfcrm undo               Restore a soft-deleted record
    --type <type> --id <key>     Restore the stored record
    --type <type> --json <rec>   Merge back a pre-delete snapshot

  sfcrm ingest --url <page url> <file.html>...
                           Scrape saved Lightning pages and merge their records

  sfcrm journal            Show recent merge decisions
    --type <type>            Restrict to one object type
    --id <key>               Full history of one record

SERVICES:
  sfcrm serve              Native messaging host on stdin/stdout
  sfcrm mcp                MCP server on stdio
  sfcrm tui                Interactive record browser
  sfcrm web                Read-only dashboard
    --addr <host:port>       Listen address (default: localhost:8080)
  sfcrm watch              Print a summary on every change
    --poll <duration>        Pull remote changes on this interval

VISUALIZATION:
  sfcrm viz [dashboard]    Pipeline, record counts and stale records
  sfcrm viz graph [account]
    --format <fmt>           dot or svg (default: dot)
    --output <file>          Write to a file instead of stdout
    --all                    Include soft-deleted records

SYNC & CONFIG:
  sfcrm sync now|status|wipe
  sfcrm config show|path|init

EXAMPLES:
  # Merge a scraped opportunity
  sfcrm merge --type opportunity --json '{"salesforceId":"006A","name":"Acme Deal"}'

  # Import a saved list view
  sfcrm ingest --url https://acme.lightning.force.com/lightning/o/Opportunity/list page.html

`, version)
}
