package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/audit"
)

var (
	tailLines   int
	tailEvent   string
	tailCaller  string
	tailSubject string
	tailSince   time.Duration
	tailFormat  string
	auditSink   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.PersistentFlags().StringVar(&auditSink, "sink", "", "Sink type of the log: jsonl or sqlite (default audit.sink)")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().StringVar(&tailEvent, "event", "", "Only entries for this event kind")
	auditTailCmd.Flags().StringVar(&tailCaller, "caller", "", "Only entries written by this handler owner")
	auditTailCmd.Flags().StringVar(&tailSubject, "subject", "", "Only entries about this user ID")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only entries newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVar(&tailFormat, "format", "lines", "Output: lines, timeline, json or raw")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit trail of handler changes.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N matching entries from the audit log. Lines format prints\nthe console message of each entry; timeline and json add a summary.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

// auditTarget resolves the log path and sink type from args and config.
func auditTarget(cmd *cobra.Command, args []string) (string, string, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return "", "", err
	}
	path := cfg.Audit.Path
	if len(args) == 1 {
		path = args[0]
	}
	sink := cfg.Audit.Sink
	if auditSink != "" {
		sink = auditSink
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("open audit log: %w", err)
	}
	return path, sink, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, sink, err := auditTarget(cmd, args)
	if err != nil {
		return err
	}

	var result audit.VerifyResult
	if sink == "sqlite" {
		db, err := audit.OpenSQLite(path)
		if err != nil {
			return err
		}
		defer db.Close()
		result = db.Verify(cmdContext(cmd))
	} else {
		result = audit.Verify(path)
	}

	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	return fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, sink, err := auditTarget(cmd, args)
	if err != nil {
		return err
	}

	filter := audit.Filter{
		Event:   tailEvent,
		Caller:  tailCaller,
		Subject: tailSubject,
		Limit:   tailLines,
	}
	if tailSince > 0 {
		filter.Since = time.Now().Add(-tailSince)
	}

	var entries []audit.Entry
	if sink == "sqlite" {
		db, err := audit.OpenSQLite(path)
		if err != nil {
			return err
		}
		defer db.Close()
		entries, err = db.List(cmdContext(cmd), filter)
		if err != nil {
			return err
		}
	} else {
		entries, err = audit.Query(path, filter)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	switch tailFormat {
	case "timeline":
		fmt.Fprint(out, audit.FormatTimeline(entries))
	case "json":
		s, err := audit.FormatJSON(entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	case "raw":
		for _, e := range entries {
			data, _ := json.Marshal(e)
			fmt.Fprintln(out, string(data))
		}
	default:
		for _, e := range entries {
			fmt.Fprintf(out, "%s %s\n", e.Timestamp, e.Message)
		}
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
