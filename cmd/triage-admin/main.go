// ABOUTME: Admin CLI for inspecting and exporting stored triage conversations
// ABOUTME: Reads the client config to reach the durable store, snapshot cache and knowledge base

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/triage-chat/internal/config"
)

const banner = `
 _        _                                 _           _
| |_ _ __(_) __ _  __ _  ___       __ _  __| |_ __ ___ (_)_ __
| __| '__| |/ _' |/ _' |/ _ \_____/ _' |/ _' | '_ ' _ \| | '_ \
| |_| |  | | (_| | (_| |  __/_____| (_| | (_| | | | | | | | | | |
 \__|_|  |_|\__,_|\__, |\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
                  |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &admin{cfg: cfg, out: os.Stdout}
	switch cmd {
	case "rooms":
		err = a.cmdRooms(ctx)
	case "history":
		err = a.cmdHistory(ctx, args)
	case "export":
		err = a.cmdExport(ctx, args)
	case "cache":
		err = a.cmdCache(ctx, args)
	case "clear-cache":
		err = a.cmdClearCache(ctx, args)
	case "resolve":
		err = a.cmdResolve(ctx, args)
	case "citations":
		err = a.cmdCitations(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: triage-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  rooms                          List rooms with stored history")
	fmt.Println("  history <room>                 Print a room's stored messages")
	fmt.Println("  export <room> [--format html|md] [--out file]")
	fmt.Println("                                 Export a room transcript (default html to stdout)")
	fmt.Println("  cache <key>                    Show the cached snapshot for a room or session id")
	fmt.Println("  clear-cache <key>              Drop the cached snapshot for a room or session id")
	fmt.Println("  resolve <file> <chunk>...      Print the knowledge-base passages for a citation")
	fmt.Println("  citations <room>               Resolve every citation in a room's history")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  TRIAGE_CONFIG                  Config file (default ~/.config/triage/client.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  triage-admin rooms")
	fmt.Println("  triage-admin export room-42 --format md --out room-42.md")
	fmt.Println("  triage-admin resolve triage_guidelines.pdf 3 4")
	fmt.Println()
}

// loadConfig reads the default config file, or returns defaults when none
// exists. The admin commands never dial the backend.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}
