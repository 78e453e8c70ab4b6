package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mcptick/internal/store"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tool-call audit log",
	}
	cmd.AddCommand(auditListCmd())
	cmd.AddCommand(auditStatsCmd())
	cmd.AddCommand(auditCleanupCmd())
	return cmd
}

func auditListCmd() *cobra.Command {
	var (
		jsonOutput bool
		server     string
		tool       string
		failedOnly bool
		hours      int
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audited tool invocations, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			filter := store.ToolCallFilter{
				Server: server,
				Tool:   tool,
				Limit:  limit,
			}
			if failedOnly {
				f := false
				filter.Success = &f
			}
			if hours > 0 {
				since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
				filter.Since = &since
			}

			entries, err := st.ListToolCalls(cmd.Context(), filter)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printAuditEntries(entries, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&server, "server", "", "restrict to one backend")
	cmd.Flags().StringVar(&tool, "tool", "", "restrict to one tool")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "failures only")
	cmd.Flags().IntVar(&hours, "hours", 0, "look back this many hours")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func auditStatsCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate audit statistics",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			var since *time.Time
			if hours > 0 {
				t := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
				since = &t
			}

			stats, err := st.ToolCallStats(cmd.Context(), since, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			servers, err := st.ServerStats(cmd.Context(), since, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			printJSON(map[string]any{"stats": stats, "servers": servers})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look back this many hours")
	return cmd
}

func auditCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit rows older than the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
			deleted, err := st.CleanupOldToolCalls(cmd.Context(), cutoff)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Deleted %d rows older than %d days\n", deleted, days)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "retention window in days")
	return cmd
}

func printAuditEntries(entries []store.AuditEntry, jsonOutput bool) {
	if jsonOutput {
		printJSON(entries)
		return
	}

	if len(entries) == 0 {
		fmt.Println("No tool calls recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "STARTED\tTARGET\tOK\tMS\tSOURCE\tERROR\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s.%s\t%v\t%d\t%s\t%s\n",
			e.StartedAt.Format(time.DateTime), e.ServerName, e.ToolName,
			e.Success, e.DurationMS, e.Source, e.ErrorMessage)
	}
	tw.Flush()
}
