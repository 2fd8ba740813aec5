package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"Agentrix-Chat/sdk/go/agentrix"
)

func newSubmissionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"subs"},
		Short:   "Inspect wizard submission jobs",
	}
	cmd.AddCommand(newSubmissionsListCmd(root), newSubmissionsGetCmd(root))
	return cmd
}

func newSubmissionsListCmd(root *rootOptions) *cobra.Command {
	var (
		filter   agentrix.SubmissionFilter
		statuses string
		stats    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submission jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			if statuses != "" {
				filter.Statuses = strings.Split(statuses, ",")
			}
			out := cmd.OutOrStdout()
			if stats {
				summary, err := client.SubmissionStats(cmd.Context(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderStats(summary))
				return nil
			}
			subs, err := client.ListSubmissions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return renderSubmissions(out, subs)
		},
	}
	cmd.Flags().StringVar(&statuses, "status", "", "Comma separated statuses (pending,running,succeeded,failed)")
	cmd.Flags().StringVar(&filter.Wizard, "wizard", "", "Filter by wizard kind")
	cmd.Flags().StringVar(&filter.Session, "session", "", "Filter by conversation id")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Free text search over id, error and result")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "Maximum number of rows")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print aggregated counts instead of rows")
	return cmd
}

func newSubmissionsGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show one submission job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			sub, err := client.GetSubmission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSubmission(sub))
			return nil
		},
	}
}
