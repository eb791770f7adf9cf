// Package exchange runs one-shot hand-offs between two devices over an
// ephemeral channel. The sender publishes a channel, shares its peer id
// out of band (QR code or link), fires a single envelope once the peer
// attaches, and tears the channel down. The receiver attaches, waits a
// bounded wall-clock window for the envelope, and applies it to the
// local ledger. Nothing is retried and nothing survives the session.
package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/wire"
)

// Sender publishes channels and pushes envelopes through them.
type Sender struct {
	transport Transport
	log       *zap.Logger
}

// NewSender creates a sender over a transport.
func NewSender(transport Transport, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{transport: transport, log: log}
}

// Offer is an open channel awaiting its peer. PeerID is what the
// sender shares out of band.
type Offer struct {
	listener Listener
	payload  []byte
	log      *zap.Logger
}

// PeerID names the published channel.
func (o *Offer) PeerID() string { return o.listener.PeerID() }

// Close abandons the offer without sending.
func (o *Offer) Close() error { return o.listener.Close() }

// Open encodes the message and publishes a fresh channel for it. The
// returned offer must be completed with Deliver or abandoned with
// Close.
func (s *Sender) Open(ctx context.Context, msg wire.Message, sender wire.Identity) (*Offer, error) {
	payload, err := wire.Encode(msg, sender)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	listener, err := s.transport.CreateChannel(ctx)
	if err != nil {
		return nil, &PeerInitializationError{Cause: err}
	}
	s.log.Info("channel published", zap.String("peer", listener.PeerID()))
	return &Offer{listener: listener, payload: payload, log: s.log}, nil
}

// Deliver waits for the peer to attach, sends the envelope once, and
// closes the channel. Fire and forget: a successful return means the
// payload was handed to the transport, not that the peer applied it.
func (o *Offer) Deliver(ctx context.Context) error {
	defer o.listener.Close()

	conn, err := o.listener.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PeerInitializationError{Cause: err}
	}
	defer conn.Close()

	if err := conn.Send(ctx, o.payload); err != nil {
		return fmt.Errorf("deliver envelope: %w", err)
	}
	o.log.Info("envelope delivered", zap.String("peer", o.listener.PeerID()), zap.Int("bytes", len(o.payload)))
	return nil
}

// Send is the one-call path: publish, report the peer id through
// onOffer, then deliver. onOffer runs before blocking on the peer so
// the caller can surface the id to the user.
func (s *Sender) Send(ctx context.Context, msg wire.Message, sender wire.Identity, onOffer func(peerID string)) error {
	offer, err := s.Open(ctx, msg, sender)
	if err != nil {
		return err
	}
	if onOffer != nil {
		onOffer(offer.PeerID())
	}
	return offer.Deliver(ctx)
}

// DefaultReceiveWindow bounds how long a receiver waits for the
// envelope after attaching to a channel.
const DefaultReceiveWindow = 30 * time.Second
