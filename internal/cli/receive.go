package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/slonigiraf/slonledger/internal/exchange"
)

// ReceiveOptions holds flags for the receive command.
type ReceiveOptions struct {
	*RootOptions
	Peer string
}

// NewReceiveCommand creates the receive command.
func NewReceiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReceiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Attach to a sender's channel and apply what arrives",
		Long: `Attach to the channel named by --peer, wait for the envelope, and
fold its records into the local ledger.

Example:
  slonigd receive --peer 7f3c9e2a-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Peer, "peer", "", "peer id shared by the sender (required)")
	_ = cmd.MarkFlagRequired("peer")

	return cmd
}

func runReceive(cmd *cobra.Command, opts *ReceiveOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}

	kp, err := app.Identity(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "load identity", err)
	}

	transport := exchange.NewWSTransport(app.Config.Relay.URL, app.Log)
	receiver := exchange.NewReceiver(transport, app.Engine, kp.Public, app.Log)
	receiver.SetWindow(app.Config.ReceiveWindow())

	decoded, report, err := receiver.ReceiveAndApply(ctx, opts.Peer)
	switch {
	case exchange.IsPeerTimeout(err):
		return WrapExitError(ExitFailure, "peer did not send in time, ask them to keep the page open and retry", err)
	case exchange.IsPeerInitialization(err):
		return WrapExitError(ExitCommandError, "could not reach the sender's channel", err)
	case exchange.IsTargetMismatch(err):
		return WrapExitError(ExitFailure, "this transfer is addressed to a different identity", err)
	case err != nil:
		return WrapExitError(ExitFailure, "receive", err)
	}

	return formatter.Success(map[string]any{
		"action":   decoded.Action.String(),
		"sender":   decoded.SenderName,
		"accepted": report.Accepted,
		"rejected": report.Rejected,
	})
}
