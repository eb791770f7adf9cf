package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/ledger"
	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/wire"
)

// Receiver attaches to published channels and applies what arrives to
// the local ledger.
type Receiver struct {
	transport Transport
	engine    *ledger.Engine
	local     record.PublicKey
	window    time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewReceiver creates a receiver for the local identity. The receive
// window defaults to DefaultReceiveWindow.
func NewReceiver(transport Transport, engine *ledger.Engine, local record.PublicKey, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{
		transport: transport,
		engine:    engine,
		local:     local,
		window:    DefaultReceiveWindow,
		log:       log,
		now:       time.Now,
	}
}

// SetWindow overrides the receive window.
func (r *Receiver) SetWindow(d time.Duration) { r.window = d }

// SetNow overrides the clock, for tests.
func (r *Receiver) SetNow(now func() time.Time) { r.now = now }

// Receive attaches to peerID's channel and waits one window for the
// envelope. Connection failures surface as PeerInitializationError,
// an expired window as PeerTimeoutError, and an envelope addressed to
// someone else as TargetMismatchError. No local state changes on any
// of these paths.
func (r *Receiver) Receive(ctx context.Context, peerID string) (*wire.Decoded, error) {
	recvCtx, cancel := context.WithTimeout(ctx, r.window)
	defer cancel()

	conn, err := r.transport.Connect(recvCtx, peerID)
	if err != nil {
		// A channel that exists but whose peer never engages within
		// the window is a timeout, not an initialization failure.
		if recvCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &PeerTimeoutError{Wait: r.window}
		}
		return nil, &PeerInitializationError{Cause: err}
	}
	defer conn.Close()

	payload, err := conn.Receive(recvCtx)
	if err != nil {
		if recvCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &PeerTimeoutError{Wait: r.window}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PeerInitializationError{Cause: err}
	}

	decoded, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	if decoded.Recipient != "" && decoded.Recipient != r.local {
		return nil, &TargetMismatchError{Want: r.local, Got: decoded.Recipient}
	}

	r.log.Info("envelope received",
		zap.String("peer", peerID),
		zap.Stringer("action", decoded.Action),
		zap.String("from", decoded.SenderName))
	return decoded, nil
}

// Apply folds a received envelope into the local ledger: record
// batches go through foreign-record ingestion, and the sender's
// display name refreshes the pseudonym cache. Actions that carry no
// records (identity announcements, transfer intents that settle
// elsewhere) only update the pseudonym.
func (r *Receiver) Apply(ctx context.Context, d *wire.Decoded) (ledger.Report, error) {
	var batch ledger.Batch
	switch msg := d.Msg.(type) {
	case wire.AddInsurances:
		batch.Insurances = msg.Insurances
	case wire.LessonResult:
		batch.Letters = msg.Letters
		batch.Insurances = msg.Insurances
	}

	report, err := r.engine.IngestForeignRecords(ctx, batch, r.local)
	if err != nil {
		return report, err
	}

	if d.SenderName != "" {
		err := r.engine.Store().UpsertPseudonym(ctx, record.Pseudonym{
			PublicKey: d.Sender,
			Name:      d.SenderName,
			Updated:   r.now(),
		})
		if err != nil {
			r.log.Warn("pseudonym update failed", zap.Error(err))
		}
	}
	return report, nil
}

// ReceiveAndApply is the one-call path used by the CLI.
func (r *Receiver) ReceiveAndApply(ctx context.Context, peerID string) (*wire.Decoded, ledger.Report, error) {
	decoded, err := r.Receive(ctx, peerID)
	if err != nil {
		return nil, ledger.Report{}, err
	}
	report, err := r.Apply(ctx, decoded)
	if err != nil {
		return decoded, report, err
	}
	return decoded, report, nil
}
