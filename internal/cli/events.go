package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/slonigiraf/slonledger/internal/events"
)

// EventsOptions holds flags for the events subcommands.
type EventsOptions struct {
	*RootOptions
}

// NewEventsCommand creates the events command and its subcommands.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and drain the scheduled-event queue",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List pending scheduled events",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsList(cmd, opts)
		},
	}

	drain := &cobra.Command{
		Use:           "drain",
		Short:         "Deliver every currently due event once and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsDrain(cmd, opts)
		},
	}

	cmd.AddCommand(list, drain)
	return cmd
}

func runEventsList(cmd *cobra.Command, opts *EventsOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	pending, err := app.Store.AllScheduledEvents(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "list events", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return formatter.Success(pending)
}

func runEventsDrain(cmd *cobra.Command, opts *EventsOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	queue := events.New(app.Store, app.Log)
	registerEventHandlers(queue, app)

	drained, err := queue.DrainDue(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "drain events", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return formatter.Successf("%d event(s) delivered", drained)
}
