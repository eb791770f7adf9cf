package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slonigiraf/slonledger/internal/events"
	"github.com/slonigiraf/slonledger/internal/exchange"
	"github.com/slonigiraf/slonledger/internal/record"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoRelay bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event drain loop and the rendezvous relay",
		Long: `Run the daemon: drains scheduled events as they come due and,
unless --no-relay is given, serves the websocket rendezvous relay that
pairs senders with receivers.

Example:
  slonigd serve --config slonig.yaml
  slonigd serve --db ./ledger.db --no-relay`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoRelay, "no-relay", false, "do not serve the rendezvous relay")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := events.New(app.Store, app.Log)
	queue.SetRetryInterval(app.Config.RetryInterval())
	registerEventHandlers(queue, app)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := queue.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if !opts.NoRelay {
		relay := exchange.NewRelay(app.Log)
		g.Go(func() error {
			return relay.Serve(ctx, app.Config.Relay.Listen)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitCommandError, "serve", err)
	}
	app.Log.Info("shutdown complete")
	return nil
}

// banPayload is the data carried by BAN events: an insurance to revoke
// once its grace deadline passes.
type banPayload struct {
	WorkerSign record.Signature `json:"worker_sign"`
}

func registerEventHandlers(queue *events.Queue, app *App) {
	queue.Handle(record.EventTypeLog, func(ctx context.Context, ev record.ScheduledEvent) error {
		app.Log.Info("scheduled log event", zap.Int64("id", ev.ID), zap.String("data", ev.Data))
		return nil
	})
	queue.Handle(record.EventTypeBan, func(ctx context.Context, ev record.ScheduledEvent) error {
		var p banPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			// Unparseable payloads would retry forever; log and let
			// the ack drop them.
			app.Log.Error("malformed ban event", zap.Int64("id", ev.ID), zap.Error(err))
			return nil
		}
		if err := app.Engine.CancelInsurance(ctx, p.WorkerSign, ev.Deadline); err != nil {
			return fmt.Errorf("ban event %d: %w", ev.ID, err)
		}
		app.Log.Info("ban applied", zap.Int64("id", ev.ID), zap.String("worker_sign", string(p.WorkerSign)))
		return nil
	})
}
