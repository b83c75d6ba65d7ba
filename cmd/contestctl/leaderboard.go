package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/Sternrassler/contesthub-client/pkg/contests"
	"github.com/spf13/cobra"
)

func newLeaderboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the public leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			entries, err := contests.New(a.client, nil).Leaderboard(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tNAME\tWINS\tPRIZE")
			for i, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\n", i+1, e.Name, e.Wins, e.TotalPrize)
			}
			return w.Flush()
		},
	}
}

func newRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <role>",
		Short: "Change a user's role (admin token required)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			api := contests.New(a.client, a.store())
			if err := api.UpdateUserRole(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], args[1])
			return nil
		},
	}
}
