// Package cli implements flowbarctl, the terminal remote for the daemon.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"flowbar/backend/internal/client"
)

type options struct {
	addr  string
	token string
}

// NewRootCmd builds the command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "flowbarctl",
		Short: "flowbarctl controls a running flowbar daemon",
		Long: `flowbarctl talks to the flowbar daemon over its local HTTP API.
Start, pause and stop focus sessions, grant a distraction site a minute,
or watch the countdown live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("FLOWBAR_URL", client.DefaultBaseURL), "daemon base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FLOWBAR_TOKEN"), "bearer token from flowbarctl pair")

	for _, control := range []struct{ action, short string }{
		{"start", "Start a focus session"},
		{"pause", "Pause the running phase"},
		{"resume", "Resume a paused phase"},
		{"reset", "Reset the timer to a full focus length"},
		{"stop", "Stop the timer and report focused time"},
		{"toggle", "Start, pause or resume depending on state"},
	} {
		root.AddCommand(newControlCmd(opts, control.action, control.short))
	}
	root.AddCommand(
		newStatusCmd(opts),
		newAllowCmd(opts),
		newPairCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// Execute runs flowbarctl with the process arguments.
func Execute() error {
	return NewRootCmd(os.Stdout).ExecuteContext(context.Background())
}

func (o *options) client() *client.Client {
	return client.New(o.addr, o.token)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func printTimer(out io.Writer, result *client.ControlResult) {
	state := string(result.TimerState)
	if result.OriginalTimerType != nil {
		state = fmt.Sprintf("%s (%s)", state, *result.OriginalTimerType)
	}
	fmt.Fprintf(out, "%-16s %s\n", state, result.Display)
}
