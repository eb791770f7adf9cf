package cli

import (
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/slonigiraf/slonledger/internal/exchange"
	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/wire"
)

// SendOptions holds flags shared by the send subcommands.
type SendOptions struct {
	*RootOptions
	To     string
	Amount string
}

// NewSendCommand creates the send command and its subcommands.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a channel and hand records to a peer",
		Long: `Publish an ephemeral channel, print its peer id for the other
device to scan, and deliver one envelope when the peer attaches.`,
	}

	cmd.PersistentFlags().StringVar(&opts.To, "to", "", "recipient public key (hex)")

	transfer := &cobra.Command{
		Use:           "transfer",
		Short:         "Send a transfer-of-value intent",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendTransfer(cmd, opts)
		},
	}
	transfer.Flags().StringVar(&opts.Amount, "amount", "", "amount to transfer (required)")
	_ = transfer.MarkFlagRequired("amount")
	_ = transfer.MarkFlagRequired("to")

	insurances := &cobra.Command{
		Use:           "insurances",
		Short:         "Offer the recipient your co-signed diplomas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendInsurances(cmd, opts)
		},
	}
	_ = insurances.MarkFlagRequired("to")

	identity := &cobra.Command{
		Use:           "identity",
		Short:         "Announce your identity to a peer",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendIdentity(cmd, opts)
		},
	}

	cmd.AddCommand(transfer, insurances, identity)
	return cmd
}

func runSendTransfer(cmd *cobra.Command, opts *SendOptions) error {
	recipient, err := record.ParsePublicKey(opts.To)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse recipient key", err)
	}
	amount, ok := new(big.Int).SetString(opts.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return NewExitError(ExitCommandError, "amount must be a positive decimal integer")
	}
	return deliver(cmd, opts, wire.TransferOfValue{Recipient: recipient, Amount: amount})
}

func runSendInsurances(cmd *cobra.Command, opts *SendOptions) error {
	recipient, err := record.ParsePublicKey(opts.To)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse recipient key", err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	kp, err := app.Identity(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "load identity", err)
	}
	ins, err := app.Store.InsurancesByEmployerAndWorker(ctx, recipient, kp.Public)
	if err != nil {
		return WrapExitError(ExitCommandError, "load insurances", err)
	}
	if len(ins) == 0 {
		return NewExitError(ExitFailure, "no insurances co-signed for that employer")
	}
	return deliverWith(cmd, opts, app, kp, wire.AddInsurances{Recipient: recipient, Insurances: ins})
}

func runSendIdentity(cmd *cobra.Command, opts *SendOptions) error {
	return deliver(cmd, opts, wire.TeacherIdentity{})
}

// deliver opens the app itself and hands off to deliverWith.
func deliver(cmd *cobra.Command, opts *SendOptions, msg wire.Message) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	kp, err := app.Identity(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "load identity", err)
	}
	return deliverWith(cmd, opts, app, kp, msg)
}

func deliverWith(cmd *cobra.Command, opts *SendOptions, app *App, kp *record.Keypair, msg wire.Message) error {
	ctx := cmd.Context()
	formatter := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}

	transport := exchange.NewWSTransport(app.Config.Relay.URL, app.Log)
	sender := exchange.NewSender(transport, app.Log)

	identity := wire.Identity{Name: app.Config.Name, Key: kp.Public}
	err := sender.Send(ctx, msg, identity, func(peerID string) {
		fmt.Fprintf(os.Stderr, "share this peer id with the receiver: %s\n", peerID)
	})
	if err != nil {
		if exchange.IsPeerInitialization(err) {
			return WrapExitError(ExitCommandError, "relay unreachable", err)
		}
		return WrapExitError(ExitFailure, "send", err)
	}
	return formatter.Successf("envelope delivered")
}
