package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mcptick/internal/store"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsAddCmd())
	cmd.AddCommand(jobsDeleteCmd())
	cmd.AddCommand(jobsToggleCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			jobs, err := st.ListJobs(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printJobs(jobs, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func jobsAddCmd() *cobra.Command {
	var (
		label    string
		server   string
		tool     string
		argsJSON string
		interval int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a job",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			job, err := st.UpsertJob(cmd.Context(), store.JobFields{
				Label:           label,
				Server:          server,
				Tool:            tool,
				Args:            argsJSON,
				IntervalSeconds: interval,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created job %s (%s)\n", job.ID, job.Label)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "job label")
	cmd.Flags().StringVar(&server, "server", "", "backend name")
	cmd.Flags().StringVar(&tool, "tool", "", "tool name")
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "tool arguments as JSON")
	cmd.Flags().IntVar(&interval, "interval", 60, "run interval in seconds")
	cmd.MarkFlagRequired("label")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("tool")
	return cmd
}

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [jobId]",
		Short: "Delete a job (run history is preserved)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			deleted, err := st.DeleteJob(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !deleted {
				fmt.Fprintf(os.Stderr, "Job %s not found\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("Deleted job %s\n", args[0])
		},
	}
}

func jobsToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [jobId] [true|false]",
		Short: "Enable or disable a job",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			enabled := args[1] == "true" || args[1] == "1" || args[1] == "on"

			st := openStore()
			defer st.Close()

			job, err := st.GetJob(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if job == nil {
				fmt.Fprintf(os.Stderr, "Job %s not found\n", args[0])
				os.Exit(1)
			}

			if _, err := st.UpsertJob(cmd.Context(), store.JobFields{
				ID:              job.ID,
				Enabled:         &enabled,
				Label:           job.Label,
				Server:          job.Server,
				Tool:            job.Tool,
				Args:            job.ArgsJSON,
				IntervalSeconds: job.IntervalSeconds,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Job %s enabled=%v\n", args[0], enabled)
		},
	}
}

func printJobs(jobs []store.Job, jsonOutput bool) {
	if jsonOutput {
		printJSON(jobs)
		return
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs configured.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tLABEL\tENABLED\tTARGET\tINTERVAL\tNEXT RUN\n")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s.%s\t%ds\t%s\n",
			shortID(j.ID), j.Label, j.Enabled, j.Server, j.Tool,
			j.IntervalSeconds, fmtInstant(j.NextRunAt))
	}
	tw.Flush()
}
