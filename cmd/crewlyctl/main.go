// Package main implements crewlyctl, a thin local inspection CLI for a
// running crewlyd daemon: queue history and scheduled-message listing. It
// talks to nothing but the shared sqlite database crewlyd itself writes
// to; it never reaches into crewlyd's in-memory state.
//
// One flag.NewFlagSet per subcommand, plain stdout tables, no cobra/cli
// framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/crewly/crewly/internal/audit"
	"github.com/crewly/crewly/internal/common/config"
	"github.com/crewly/crewly/internal/common/database"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "queue":
		runQueueCommand(os.Args[2:])
	case "scheduled":
		runScheduledCommand(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  crewlyctl queue history [--conversation ID] [--limit N]
  crewlyctl scheduled list`)
}

func openDatabase() (*database.DB, *logger.Logger, func()) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "warn", Format: "text"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	return db, log, func() { db.Close() }
}

func runQueueCommand(args []string) {
	if len(args) == 0 || args[0] != "history" {
		usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet("queue history", flag.ExitOnError)
	conversation := fs.String("conversation", "", "filter to one conversation ID")
	limit := fs.Int("limit", 50, "maximum entries to show")
	fs.Parse(args[1:])

	db, log, cleanup := openDatabase()
	defer cleanup()

	ctx := context.Background()
	auditLog, err := audit.New(ctx, db, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log: %v\n", err)
		os.Exit(1)
	}

	entries, err := auditLog.Recent(ctx, *conversation, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read audit log: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("(no entries)")
		return
	}

	for _, e := range entries {
		fmt.Printf("%s  %-12s %-10s conv=%-20s msg=%-36s retries=%d  %s\n",
			e.RecordedAt.Format("2006-01-02T15:04:05Z"), e.EventType, e.Status,
			e.ConversationID, e.MessageID, e.RetryCount, e.Detail)
	}
}

func runScheduledCommand(args []string) {
	if len(args) == 0 || args[0] != "list" {
		usage()
		os.Exit(1)
	}

	db, _, cleanup := openDatabase()
	defer cleanup()

	ctx := context.Background()
	store, err := scheduler.NewStore(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open scheduler store: %v\n", err)
		os.Exit(1)
	}

	messages, err := store.ListActive(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list scheduled messages: %v\n", err)
		os.Exit(1)
	}

	if len(messages) == 0 {
		fmt.Println("(no active scheduled messages)")
		return
	}

	for _, m := range messages {
		recurring := "one-shot"
		if m.IsRecurring {
			recurring = "recurring"
		}
		autoAssign := ""
		if m.AutoAssign {
			autoAssign = " auto-assign"
		}
		fmt.Printf("%-10s %-20s team=%-15s project=%-15s %s every=%d%s%s\n",
			m.ID, m.Name, m.TargetTeam, m.TargetProject, recurring, m.Delay.Amount, m.Delay.Unit, autoAssign)
	}
}
