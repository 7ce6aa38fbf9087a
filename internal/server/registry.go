package server

import "sync"

// ConnectionRegistry tracks every live websocket connection along with
// the user and trip it is bound to and a liveness flag used by the
// heartbeat sweep.
type ConnectionRegistry interface {
	Admit(c *Client)
	BindUser(c *Client, userId int)
	BindTrip(c *Client, tripId int)
	Remove(c *Client) bool
	MarkAlive(c *Client)
	ForEachInTrip(tripId int, fn func(c *Client))
	Sweep() (dead, probed []*Client)
	All() []*Client
	Len() int
}

type connState struct {
	userId int
	tripId int
	alive  bool
}

type connRegistry struct {
	mu    sync.RWMutex
	conns map[*Client]*connState
}

func NewRegistry() ConnectionRegistry {
	return &connRegistry{
		conns: make(map[*Client]*connState),
	}
}

func (r *connRegistry) Admit(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c] = &connState{
		userId: c.user.Id,
		alive:  true,
	}
}

func (r *connRegistry) BindUser(c *Client, userId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.conns[c]; ok {
		state.userId = userId
		state.alive = true
	}
}

func (r *connRegistry) BindTrip(c *Client, tripId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.conns[c]; ok {
		state.tripId = tripId
		state.alive = true
	}
}

// Remove reports whether the client was still registered, so callers
// can keep connection gauges accurate when removal races eviction.
func (r *connRegistry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return false
	}

	delete(r.conns, c)
	return true
}

func (r *connRegistry) MarkAlive(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.conns[c]; ok {
		state.alive = true
	}
}

// ForEachInTrip calls fn for every connection bound to tripId. The
// callback runs outside the registry lock so it may queue writes or
// remove connections without deadlocking.
func (r *connRegistry) ForEachInTrip(tripId int, fn func(c *Client)) {
	if tripId == 0 {
		return
	}

	r.mu.RLock()
	members := make([]*Client, 0, len(r.conns))
	for c, state := range r.conns {
		if state.tripId == tripId {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range members {
		fn(c)
	}
}

// Sweep implements the two cycle heartbeat: connections that failed to
// respond since the previous sweep are returned as dead, everything
// else is flipped to not-alive and returned for probing. A connection
// is therefore detected dead within two sweep intervals.
func (r *connRegistry) Sweep() (dead, probed []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c, state := range r.conns {
		if !state.alive {
			dead = append(dead, c)
			continue
		}

		state.alive = false
		probed = append(probed, c)
	}

	return dead, probed
}

func (r *connRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Client, 0, len(r.conns))
	for c := range r.conns {
		all = append(all, c)
	}

	return all
}

func (r *connRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
