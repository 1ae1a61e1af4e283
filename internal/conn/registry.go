package conn

import "sync"

// Registry is the ordered, reader-writer-locked collection of active peers.
// Reads (lookup, enumeration, Len) may proceed concurrently; writes (Insert,
// Remove, control transitions) are exclusive so at most one peer ever holds
// control across a transition window.
type Registry struct {
	mu    sync.RWMutex
	peers []*Peer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert adds p to the Registry in insertion order. Order is not semantically
// significant beyond determinism of enumeration.
func (r *Registry) Insert(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

// Remove deletes the peer with the given uuid, if present. Callers must have
// already closed that peer's connection; the watchdog in manager.go enforces
// this ordering.
func (r *Registry) Remove(uuid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.peers {
		if p.uuid == uuid {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			return
		}
	}
}

// Get looks up a peer by uuid.
func (r *Registry) Get(uuid string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		if p.uuid == uuid {
			return p, true
		}
	}
	return nil, false
}

// Len reports the current peer count; it also satisfies capture.PeerCounter
// so the Frame Pump can detect an empty peer set without importing this
// package's lock directly.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Each calls fn for a snapshot of the current peers, outside the Registry
// lock, so fn may itself touch the Registry (e.g. signal done and wait)
// without deadlocking.
func (r *Registry) Each(fn func(*Peer)) {
	r.mu.RLock()
	snapshot := make([]*Peer, len(r.peers))
	copy(snapshot, r.peers)
	r.mu.RUnlock()

	for _, p := range snapshot {
		fn(p)
	}
}

// ChangeControlTo moves control to the peer with the given uuid: under a
// single write lock, the matching peer takes control and every other peer
// releases it, so at most one peer ever holds control across the transition.
// If uuid matches no peer, every peer is released and nobody ends up in
// control. This mirrors the landlord's own change-control message, which
// carries no "no such peer" error path, so a stale or unknown uuid is treated
// the same as an explicit release-all.
func (r *Registry) ChangeControlTo(uuid string, emit func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.peers {
		if p.uuid == uuid {
			p.takeControl(emit)
		} else {
			p.releaseControl(emit)
		}
	}
}

// TryAcquireControl reports whether p ends up holding control: true if p
// already held it, or if nobody held it and p has just atomically acquired
// it; false if some other peer holds it. It is used both for the
// first-peer-on-connect auto-grant and the implicit acquire-on-click path, so
// both share one lock-protected check-and-set instead of a separate
// lookup-then-take race.
func (r *Registry) TryAcquireControl(p *Peer, emit func(Event)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.peers {
		if other.hasControls {
			return other.uuid == p.uuid
		}
	}
	p.takeControl(emit)
	return true
}

// ReleaseIfHeld releases p's control, if held, under the write lock. Used by
// the per-peer watchdog on disconnect.
func (r *Registry) ReleaseIfHeld(p *Peer, emit func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.releaseControl(emit)
}
