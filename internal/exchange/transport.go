package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Conn is one end of an established duplex channel carrying opaque
// UTF-8 payloads.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Listener is a published channel awaiting its single peer.
type Listener interface {
	// PeerID is the ephemeral id carried out-of-band (QR code / URL).
	PeerID() string
	// Accept blocks until a peer connects or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Transport creates and connects ephemeral peer channels. The real
// deployment uses a rendezvous relay; tests use the in-memory
// implementation. Either way the channel is unauthenticated at the
// transport level.
type Transport interface {
	CreateChannel(ctx context.Context) (Listener, error)
	Connect(ctx context.Context, peerID string) (Conn, error)
}

// MemoryTransport pairs peers inside one process.
type MemoryTransport struct {
	mu       sync.Mutex
	channels map[string]chan Conn
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{channels: make(map[string]chan Conn)}
}

// CreateChannel implements Transport.
func (t *MemoryTransport) CreateChannel(ctx context.Context) (Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	accept := make(chan Conn)

	t.mu.Lock()
	t.channels[id] = accept
	t.mu.Unlock()

	return &memListener{transport: t, id: id, accept: accept}, nil
}

// Connect implements Transport.
func (t *MemoryTransport) Connect(ctx context.Context, peerID string) (Conn, error) {
	t.mu.Lock()
	accept, ok := t.channels[peerID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no channel published for peer %s", peerID)
	}

	local, remote := newMemConnPair()
	select {
	case accept <- remote:
		return local, nil
	case <-ctx.Done():
		local.Close()
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) drop(id string) {
	t.mu.Lock()
	delete(t.channels, id)
	t.mu.Unlock()
}

type memListener struct {
	transport *MemoryTransport
	id        string
	accept    chan Conn

	closeOnce sync.Once
}

func (l *memListener) PeerID() string { return l.id }

func (l *memListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.accept:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Close() error {
	l.closeOnce.Do(func() {
		l.transport.drop(l.id)
	})
	return nil
}

// memConn is one side of an in-process duplex pipe. Both sides share
// the done channel, so closing either end unblocks both. The close
// guard is shared too: each side defers Close, and only the first one
// may close the channel.
type memConn struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}

	closeOnce *sync.Once
}

func newMemConnPair() (*memConn, *memConn) {
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	done := make(chan struct{})
	once := new(sync.Once)
	return &memConn{in: a, out: b, done: done, closeOnce: once},
		&memConn{in: b, out: a, done: done, closeOnce: once}
}

func (c *memConn) Send(ctx context.Context, payload []byte) error {
	select {
	case c.out <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memConn) Receive(ctx context.Context) ([]byte, error) {
	// Drain buffered payloads before honoring close: the sender's
	// fire-and-forget Send+Close must not race its own payload away.
	select {
	case payload := <-c.in:
		return payload, nil
	default:
	}

	select {
	case payload := <-c.in:
		return payload, nil
	case <-c.done:
		select {
		case payload := <-c.in:
			return payload, nil
		default:
			return nil, fmt.Errorf("connection closed")
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
