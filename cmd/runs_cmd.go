package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mcptick/internal/store"
)

func runsCmd() *cobra.Command {
	var (
		jsonOutput bool
		jobID      string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent job runs",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStore()
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit, jobID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printRuns(runs, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&jobID, "job", "", "restrict to one job id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func printRuns(runs []store.Run, jsonOutput bool) {
	if jsonOutput {
		printJSON(runs)
		return
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN\tJOB\tSTARTED\tOK\tERROR\n")
	for _, r := range runs {
		ok := "-"
		if r.OK != nil {
			ok = fmt.Sprintf("%v", *r.OK)
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), shortID(r.JobID),
			r.StartedAt.Format(time.DateTime), ok, errMsg)
	}
	tw.Flush()
}
