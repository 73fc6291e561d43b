// This file implements the Hub: the single-threaded cooperative actor
// that owns one user's Registry, live sockets, and pending proxy
// correlations (spec §5). Every mutation enters through the job queue and
// runs to completion before the next one starts, which is what gives the
// Registry its ordering guarantees without any internal locking.
//
// Grounded on the teacher's channel-serialized AgentHub
// (agent_hub.go): register/unregister/broadcast channels generalized
// into a single job queue wide enough to cover every inbound tag this
// spec defines, not just connect/disconnect/broadcast.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/relaybridge/hub/internal/db"
	"github.com/relaybridge/hub/internal/logger"
	"github.com/relaybridge/hub/internal/models"
)

// metadataSanitizer strips markup from client-declared hostname/project
// strings before they reach a Registry snapshot a browser will render
// (§4.1 register: these fields are attacker-controlled, since anyone
// holding a valid token chooses them).
var metadataSanitizer = bluemonday.StrictPolicy()

// Config carries the per-hub timeouts read from process configuration
// (spec §6).
type Config struct {
	HandshakeTimeout time.Duration
	ProxyTimeout     time.Duration
	HibernateAfter   time.Duration
}

// Hub is one user's actor. Never shared across users (§9).
type Hub struct {
	userID string
	config Config

	store *Store
	reg   *registry

	browsers      map[uint64]*browserConn
	nextBrowserID uint64

	pending map[string]*pendingProxyRequest

	jobs chan func(*Hub)
	stop chan struct{}

	tokenDB *db.TokenDB

	httpClient *http.Client

	// breakers holds one circuit breaker per (clientID, callback host) so a
	// single client's wedged callback can't fast-fail every other client's
	// healthy proxy traffic in the same hub. Guarded by breakersMu since
	// HTTPProxy runs on the calling HTTP goroutine, outside the job queue.
	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	lastActivity time.Time
	log          *zerolog.Logger
}

// pendingProxyRequest is the third map named in §9's cyclic-reference
// note: it holds only ids, never a socket handle.
type pendingProxyRequest struct {
	kind     proxyKind
	result   chan proxyResult  // proxyKindHTTP: single reply
	frames   chan WSFrame   // proxyKindWS: streamed frames
	deadline time.Time
}

type proxyKind int

const (
	proxyKindHTTP proxyKind = iota
	proxyKindWS
)

type proxyResult struct {
	statusCode int
	headers    map[string]string
	body       []byte
	timedOut   bool
}

// WSFrame is one relayed frame in the WebSocket tunnel bridge, exported so
// the HTTP front can pump it directly to a browser's own WebSocket
// connection without the hub package exposing any socket handle.
type WSFrame struct {
	Data   []byte
	Binary bool
	Closed bool
	Reason string
}

func NewHub(userID string, store *Store, tokenDB *db.TokenDB, cfg Config) *Hub {
	return &Hub{
		userID:     userID,
		config:     cfg,
		store:      store,
		reg:        newRegistry(store),
		browsers:   make(map[uint64]*browserConn),
		pending:    make(map[string]*pendingProxyRequest),
		jobs:       make(chan func(*Hub), 256),
		stop:       make(chan struct{}),
		tokenDB:      tokenDB,
		httpClient:   &http.Client{Timeout: cfg.ProxyTimeout},
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
		lastActivity: time.Now(),
	}
}

// breakerFor returns the circuit breaker for one (clientID, callback host)
// pair, creating it on first use (spec §4.4 / SPEC_FULL.md DOMAIN STACK:
// "one circuit breaker per (client_id, callback host)").
func (h *Hub) breakerFor(clientID, host string) *gobreaker.CircuitBreaker {
	key := clientID + "|" + host
	h.breakersMu.Lock()
	defer h.breakersMu.Unlock()
	b, ok := h.breakers[key]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "proxy-http-" + h.userID + "-" + key,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
		})
		h.breakers[key] = b
	}
	return b
}

// Submit enqueues a job to run on the Hub's single event-loop goroutine.
// Called from connection readPumps, the acceptor, and the HTTP proxy
// front — never executed inline by the caller.
func (h *Hub) Submit(job func(*Hub)) {
	select {
	case h.jobs <- job:
	case <-h.stop:
	}
}

// Run is the actor's event loop. Must be started in its own goroutine and
// kept running for the hub's lifetime.
func (h *Hub) Run(ctx context.Context) {
	staleTicker := time.NewTicker(10 * time.Second)
	defer staleTicker.Stop()

	for {
		select {
		case job := <-h.jobs:
			job(h)
			h.lastActivity = time.Now()
		case <-staleTicker.C:
			h.pruneExpiredProxyRequests()
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		}
	}
}

// Stop signals the event loop to exit.
func (h *Hub) Stop() {
	close(h.stop)
}

// Idle reports whether the hub has no open sockets and has been quiet for
// at least the configured hibernate_after window (§5).
func (h *Hub) Idle() bool {
	return len(h.reg.sockets) == 0 && len(h.browsers) == 0 &&
		time.Since(h.lastActivity) >= h.config.HibernateAfter
}

// Resume reloads Registry contents from the durable store on cold start
// (§4.2). Must be called once before Run begins accepting connections.
func (h *Hub) Resume() error {
	initialized, err := h.store.Initialized()
	if err != nil {
		return err
	}
	stale, err := h.reg.load()
	if err != nil {
		return err
	}
	for range stale {
		// Unrestored clients are marked Disconnected and removed on cold
		// start; there is no browser connected yet to receive the
		// broadcast, so this is a silent reconciliation (§4.2).
	}
	if !initialized {
		if err := h.store.MarkInitialized(); err != nil {
			return err
		}
	}
	return nil
}

// ConnectClient completes registration of a client socket that has already
// passed the Acceptor's handshake (spec §4.1, §4.2 register). Called from
// the connection's own goroutine, not the hub loop — it blocks on a
// response channel until the job runs.
func (h *Hub) ConnectClient(clientID string, metadata models.ClientMetadata, conn *websocket.Conn) *clientConn {
	metadata.Hostname = metadataSanitizer.Sanitize(metadata.Hostname)
	metadata.Project = metadataSanitizer.Sanitize(metadata.Project)

	cc := newClientConn(clientID, conn)
	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		if existingConn, ok := h.reg.sockets[clientID]; ok {
			existingConn.closeWithCode(4001, "displaced by newer registration")
		}
		now := time.Now()
		client := models.Client{
			ID:          clientID,
			Metadata:    metadata,
			ConnectedAt: now,
			LastSeen:    now,
		}
		if err := h.reg.register(client, cc); err != nil {
			h.logger().Error().Err(err).Str("client_id", clientID).Msg("failed to persist client registration")
			return
		}
		h.broadcastClientUpdate(client)
	})
	<-done
	return cc
}

// ConnectBrowser admits a Browser Observer and pushes the initial snapshot
// (§4.1 "the hub SHOULD push a synthetic client_list snapshot").
func (h *Hub) ConnectBrowser(conn *websocket.Conn) *browserConn {
	done := make(chan struct{})
	var bc *browserConn
	h.Submit(func(h *Hub) {
		defer close(done)
		h.nextBrowserID++
		bc = newBrowserConn(h.nextBrowserID, conn)
		h.browsers[bc.id] = bc
		h.sendClientList(bc)
	})
	<-done
	return bc
}

// DisconnectClient tears down a client socket's Registry row (§3: destroyed
// on socket close, displacement, or eviction).
func (h *Hub) DisconnectClient(clientID string, cc *clientConn) {
	h.Submit(func(h *Hub) {
		// Only remove the Registry row if cc is still the socket of record:
		// a displaced connection's read loop calls this too, after a newer
		// registration has already taken clientID over.
		if current, ok := h.reg.sockets[clientID]; ok && current == cc {
			removed, err := h.reg.remove(clientID)
			if err != nil {
				h.logger().Warn().Err(err).Str("client_id", clientID).Msg("failed to delete persisted client row")
			}
			if removed {
				h.broadcastDisconnected(clientID)
			}
		}
		// cc's send channel must be closed regardless of registry identity,
		// or a displaced connection's writePump blocks on it forever
		// (finalize is idempotent against a prior closeWithCode).
		cc.finalize()
	})
}

// DisconnectBrowser removes a Browser Observer.
func (h *Hub) DisconnectBrowser(bc *browserConn) {
	h.Submit(func(h *Hub) {
		if _, ok := h.browsers[bc.id]; !ok {
			return
		}
		delete(h.browsers, bc.id)
		close(bc.send)
	})
}

// Snapshot returns the caller's current Registry contents (§4.2 snapshot),
// used by the HTTP front's RPC-style dashboard reads and by newly-connected
// browsers.
func (h *Hub) Snapshot() []models.Client {
	done := make(chan []models.Client, 1)
	h.Submit(func(h *Hub) { done <- h.reg.snapshot() })
	return <-done
}

func (h *Hub) logger() *zerolog.Logger {
	if h.log == nil {
		l := logger.Hub(h.userID)
		h.log = l
	}
	return h.log
}
