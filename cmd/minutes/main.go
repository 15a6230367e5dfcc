package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/db"
	"github.com/hpungsan/minutes/internal/ipc"
	"github.com/hpungsan/minutes/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"start": true, "stop": true, "status": true, "transcribe": true,
	"list": true, "show": true, "view": true, "search": true, "export": true,
	"summarize": true, "delete": true, "stats": true,
	"daemon": true, "config": true, "doctor": true,
	"mcp": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return isCharDevice(os.Stdin)
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
             _             _
   _ __ ___ (_)_ __  _   _| |_ ___  ___
  | '_ ' _ \| | '_ \| | | | __/ _ \/ __|
  | | | | | | | | | | |_| | ||  __/\__ \
  |_| |_| |_|_|_| |_|\__,_|\__\___||___/

  Local meeting recorder and transcriber

  Usage: minutes <command> [options]
         minutes --help

  MCP server mode requires piped input.`)
}

// baseDir is ~/.minutes unless MINUTES_HOME points elsewhere.
func baseDir() (string, error) {
	if dir := os.Getenv("MINUTES_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".minutes"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(&appEnv{})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	env := &appEnv{baseDir: dir, db: database, cfg: cfg}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'minutes --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runMCP serves the MCP tools on stdio. Unknown disabled_tools entries are
// reported on stderr, which MCP clients show as server output.
func runMCP(env *appEnv) error {
	if unknown := mcp.ValidateDisabledTools(env.cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown tools in disabled_tools: %v\n", unknown)
	}
	return mcp.Run(env.db, env.cfg, ipc.NewClient(env.cfg.Daemon.SocketPath), Version)
}
