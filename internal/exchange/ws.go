package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// wsControlConnected is sent by the relay to a publisher when its peer
// attaches, completing the publisher's Accept.
const wsControlConnected = "connected"

// WSTransport rendezvouses peers through a relay server. It stands in
// for the browser deployment's WebRTC channel: the relay carries no
// trust, it only pipes bytes between two websockets that named the
// same peer id.
type WSTransport struct {
	// RelayURL is the relay's websocket base, e.g. "ws://host:port".
	RelayURL string

	Dialer *websocket.Dialer
	Log    *zap.Logger
}

// NewWSTransport creates a transport against a relay.
func NewWSTransport(relayURL string, log *zap.Logger) *WSTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSTransport{
		RelayURL: relayURL,
		Dialer:   websocket.DefaultDialer,
		Log:      log,
	}
}

// CreateChannel implements Transport: dials the relay's publish
// endpoint under a fresh ephemeral peer id.
func (t *WSTransport) CreateChannel(ctx context.Context) (Listener, error) {
	id := uuid.NewString()
	conn, _, err := t.Dialer.DialContext(ctx, t.RelayURL+"/publish?peer="+id, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay publish: %w", err)
	}
	return &wsListener{id: id, conn: conn}, nil
}

// Connect implements Transport: dials the relay's connect endpoint for
// an already-published peer id.
func (t *WSTransport) Connect(ctx context.Context, peerID string) (Conn, error) {
	conn, _, err := t.Dialer.DialContext(ctx, t.RelayURL+"/connect?peer="+peerID, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay connect: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsListener struct {
	id   string
	conn *websocket.Conn

	closeOnce sync.Once
}

func (l *wsListener) PeerID() string { return l.id }

// Accept waits for the relay's pairing notification, then hands back
// the same underlying websocket as the data channel.
func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetReadDeadline(deadline)
		defer l.conn.SetReadDeadline(time.Time{})
	}

	// Unblock the read when ctx is canceled without a deadline.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	_, msg, err := l.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("await peer: %w", err)
	}
	if string(msg) != wsControlConnected {
		return nil, fmt.Errorf("await peer: unexpected control message %q", msg)
	}
	return &wsConn{conn: l.conn}, nil
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}

type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Relay is the rendezvous server pairing publishers with connectors by
// peer id and piping bytes between them. It holds no state beyond the
// waiting publishers and inspects no payloads.
type Relay struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	waiting map[string]chan *websocket.Conn
}

// NewRelay creates an empty relay.
func NewRelay(log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		log:     log,
		waiting: make(map[string]chan *websocket.Conn),
	}
}

// Handler returns the relay's HTTP handler with the publish and
// connect endpoints.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/publish", r.handlePublish)
	mux.HandleFunc("/connect", r.handleConnect)
	return mux
}

// Serve runs the relay until ctx is canceled.
func (r *Relay) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: r.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.log.Info("relay listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (r *Relay) handlePublish(w http.ResponseWriter, req *http.Request) {
	peer := req.URL.Query().Get("peer")
	if peer == "" {
		http.Error(w, "missing peer id", http.StatusBadRequest)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("publish upgrade failed", zap.Error(err))
		return
	}

	pair := make(chan *websocket.Conn, 1)
	r.mu.Lock()
	if _, exists := r.waiting[peer]; exists {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.waiting[peer] = pair
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiting, peer)
		r.mu.Unlock()
	}()

	other, ok := <-pair
	if !ok || other == nil {
		conn.Close()
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(wsControlConnected)); err != nil {
		conn.Close()
		other.Close()
		return
	}

	r.pipe(conn, other)
}

func (r *Relay) handleConnect(w http.ResponseWriter, req *http.Request) {
	peer := req.URL.Query().Get("peer")
	if peer == "" {
		http.Error(w, "missing peer id", http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	pair, ok := r.waiting[peer]
	if ok {
		delete(r.waiting, peer)
	}
	r.mu.Unlock()
	if !ok {
		http.Error(w, "no such peer", http.StatusNotFound)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("connect upgrade failed", zap.Error(err))
		close(pair)
		return
	}

	// Hand the connector to the publisher goroutine, which runs the
	// pumps; this handler's job is done.
	pair <- conn
}

// pipe copies messages in both directions until either side closes.
func (r *Relay) pipe(a, b *websocket.Conn) {
	var g errgroup.Group
	g.Go(func() error { return copyMessages(a, b) })
	g.Go(func() error { return copyMessages(b, a) })
	_ = g.Wait()
	a.Close()
	b.Close()
}

func copyMessages(dst, src *websocket.Conn) error {
	for {
		kind, msg, err := src.ReadMessage()
		if err != nil {
			// Closing dst unblocks the opposite pump.
			dst.Close()
			return err
		}
		if err := dst.WriteMessage(kind, msg); err != nil {
			src.Close()
			return err
		}
	}
}
