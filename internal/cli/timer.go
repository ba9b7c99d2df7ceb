package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flowbar/backend/internal/model"
	"flowbar/backend/internal/tui"
)

func newControlCmd(opts *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().Control(cmd.Context(), action)
			if err != nil {
				return err
			}
			printTimer(cmd.OutOrStdout(), result)
			if result.ElapsedSeconds != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "focused for %s\n", model.FormatDuration(*result.ElapsedSeconds))
			}
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the timer and, with --domain, a site's flow score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			result, err := c.Timer(cmd.Context())
			if err != nil {
				return err
			}
			printTimer(cmd.OutOrStdout(), result)

			if strings.TrimSpace(domain) == "" {
				return nil
			}
			summary, err := c.Summary(cmd.Context(), domain)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flow %-3d [%s] %s\n", summary.Score, summary.Grade, summary.Summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "site to summarise")
	return cmd
}

func newAllowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "allow <site>",
		Short: "Let a distraction site through for a minute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grant, err := opts.client().Allow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s allowed until %s\n",
				grant.Site, time.UnixMilli(grant.ExpiresAt).Format("15:04:05"))
			return nil
		},
	}
}

func newPairCmd(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "pair <secret>",
		Short: "Exchange the pairing secret for a token",
		Long:  "Exchange the daemon's pairing secret for a bearer token. Export it as FLOWBAR_TOKEN.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := opts.client().Pair(cmd.Context(), name, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "client", "flowbarctl", "client name recorded in the token")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show a live countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunWatch(cmd.Context(), opts.client())
		},
	}
}
