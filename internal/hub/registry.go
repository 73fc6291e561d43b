// This file implements the Client Registry (spec §4.2): the
// authoritative record of which clients are live for one user. It is
// used exclusively from the owning Hub's single actor goroutine, so its
// maps need no internal locking — the Hub's channel-serialized event
// loop is the only synchronization this component needs (§5).
package hub

import (
	"time"

	"github.com/relaybridge/hub/internal/models"
)

// registry holds the in-memory Client rows plus the parallel socket-handle
// map the spec requires kept separate from the Registry's metadata (§9
// "Cyclic references" — the Registry owns metadata only).
type registry struct {
	clients map[string]models.Client
	sockets map[string]*clientConn
	store   *Store
}

func newRegistry(store *Store) *registry {
	return &registry{
		clients: make(map[string]models.Client),
		sockets: make(map[string]*clientConn),
		store:   store,
	}
}

// load reconstructs the Registry from the durable store on cold start. Any
// client id without a socket restored by the runtime is marked
// Disconnected and removed (§4.2 persistence).
func (r *registry) load() ([]models.Client, error) {
	persisted, err := r.store.LoadAll()
	if err != nil {
		return nil, err
	}
	stale := make([]models.Client, 0, len(persisted))
	for id, c := range persisted {
		c.Metadata.Status = models.StatusDisconnected
		stale = append(stale, c)
		if err := r.store.DeleteClient(id); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// register upserts a Client row and installs its socket handle. If a prior
// row existed with a live socket, the caller must have already closed that
// socket before calling register (displacement, §4.2).
func (r *registry) register(c models.Client, conn *clientConn) error {
	if err := r.putWithRetry(c); err != nil {
		return err
	}
	r.clients[c.ID] = c
	r.sockets[c.ID] = conn
	return nil
}

// updateStatus mutates an existing Client's status and last_seen. Returns
// false if the client does not exist (§4.2: "requires the Client to
// exist").
func (r *registry) updateStatus(clientID string, status models.ClientStatus) (models.Client, bool, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return models.Client{}, false, nil
	}
	c.Metadata.Status = status
	c.LastSeen = time.Now()
	if err := r.putWithRetry(c); err != nil {
		return models.Client{}, true, err
	}
	r.clients[clientID] = c
	return c, true, nil
}

// touch updates last_seen without changing status (ping, §4.3).
func (r *registry) touch(clientID string) (models.Client, bool, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return models.Client{}, false, nil
	}
	c.LastSeen = time.Now()
	if err := r.putWithRetry(c); err != nil {
		return models.Client{}, true, err
	}
	r.clients[clientID] = c
	return c, true, nil
}

// putWithRetry writes c through to the durable store, retrying once with a
// fresh read-modify-write against the current in-memory row before giving
// up (spec §7 transient error handling: "Retry once with fresh
// read-modify-write; if still failing, close the offending socket and
// surface error"). The close-socket half of that policy is the caller's
// responsibility, since only the caller knows which socket is offending.
func (r *registry) putWithRetry(c models.Client) error {
	if err := r.store.PutClient(c); err == nil {
		return nil
	}
	if fresh, ok := r.clients[c.ID]; ok {
		fresh.Metadata = c.Metadata
		fresh.LastSeen = c.LastSeen
		c = fresh
	}
	return r.store.PutClient(c)
}

// remove deletes a Client's row and socket handle. Returns false if the
// client did not exist.
func (r *registry) remove(clientID string) (bool, error) {
	if _, ok := r.clients[clientID]; !ok {
		return false, nil
	}
	delete(r.clients, clientID)
	delete(r.sockets, clientID)
	if err := r.store.DeleteClient(clientID); err != nil {
		return true, err
	}
	return true, nil
}

// snapshot returns a point-in-time list of all Clients, no socket handles.
func (r *registry) snapshot() []models.Client {
	out := make([]models.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// find returns a Client's metadata and live socket handle, if any.
func (r *registry) find(clientID string) (models.Client, *clientConn, bool) {
	c, ok := r.clients[clientID]
	if !ok {
		return models.Client{}, nil, false
	}
	return c, r.sockets[clientID], true
}
