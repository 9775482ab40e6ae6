package overlay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Outbound queue per observer. On overflow the oldest queued event for
	// that observer is discarded; the publisher never waits.
	sendQueueDepth = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalOrigin(origin)
	},
}

// isLocalOrigin accepts only same-machine observers. The bus is a local
// broadcast server, never an internet-facing one.
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" ||
		strings.EqualFold(u.Scheme, "file")
}

// Bus fans typed JSON events out to connected websocket observers.
type Bus struct {
	log logging.Logger

	mu         sync.Mutex
	clients    map[*client]struct{}
	lastStatus []byte

	server *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewBus creates an empty bus; observers attach once Serve is running.
func NewBus() *Bus {
	return &Bus{
		log:     logging.Tagged("overlay"),
		clients: make(map[*client]struct{}),
	}
}

// Publish broadcasts one event to every connected observer. It never
// blocks: per-observer queues absorb slowness and overflow drops the
// oldest queued message for that observer only.
func (b *Bus) Publish(ev Event) {
	data, err := marshal(ev)
	if err != nil {
		b.log.Errorf("drop unmarshalable event %T: %v", ev, err)
		return
	}

	b.mu.Lock()
	if _, ok := ev.(StatusEvent); ok {
		b.lastStatus = data
	}
	for c := range b.clients {
		c.enqueue(data)
	}
	b.mu.Unlock()
}

// enqueue adds a message to the client's queue, dropping the oldest entry
// when full.
func (c *client) enqueue(data []byte) {
	for {
		select {
		case c.send <- data:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Serve binds the websocket endpoint and blocks until ctx is cancelled.
// All observer connections are closed on the way out.
func (b *Bus) Serve(ctx context.Context, cfg config.OverlayConfig) error {
	router := chi.NewRouter()
	router.Get(cfg.Path, b.handleWS)
	// Some embedded overlay hosts connect at the root regardless of the
	// configured path; accept both.
	if cfg.Path != "/" {
		router.Get("/", b.handleWS)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	b.server = &http.Server{Addr: addr, Handler: router}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("overlay listen %s: %w", addr, err)
	}
	b.log.Infof("event server listening on ws://%s%s", addr, cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = b.server.Shutdown(shutdownCtx)
		b.closeAll()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// ObserverCount reports how many observers are currently attached.
func (b *Bus) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// handleWS upgrades one observer connection and pumps events to it until
// it goes away. Observers are write-only; anything they send is ignored.
func (b *Bus) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnf("upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueDepth)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	// Courtesy: a fresh observer immediately learns the current state.
	if b.lastStatus != nil {
		c.enqueue(b.lastStatus)
	}
	n := len(b.clients)
	b.mu.Unlock()

	b.log.Infof("observer connected from %s (%d total)", r.RemoteAddr, n)

	go b.writePump(c)
	b.readPump(c)
}

// readPump drains and discards inbound messages; the overlay is a dumb
// renderer. Its real job is detecting disconnect.
func (b *Bus) readPump(c *client) {
	defer b.detach(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Bus) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Bus) detach(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	if ok {
		delete(b.clients, c)
	}
	n := len(b.clients)
	b.mu.Unlock()
	if ok {
		c.close()
		b.log.Infof("observer disconnected (%d remaining)", n)
	}
}
