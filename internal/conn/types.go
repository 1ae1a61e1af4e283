// Package conn implements the Connection Manager: the subsystem that drives
// the capture pipeline, the per-peer WebRTC state machines, the control
// arbiter, and the peer registry.
package conn

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// EventType tags the lifecycle-event variants the Connection Manager emits.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventControlTake
	EventControlRelease
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventControlTake:
		return "ControlTake"
	case EventControlRelease:
		return "ControlRelease"
	default:
		return "Unknown"
	}
}

// Event is a single lifecycle notification produced by the Connection
// Manager and consumed by the Signalling Adapter.
type Event struct {
	Type EventType
	UUID string
}

// Peer bundles a peer connection, its stable uuid, its single-slot done
// notifier, and its control flag.
type Peer struct {
	uuid string
	pc   *webrtc.PeerConnection

	doneCh   chan struct{}
	doneOnce sync.Once

	hasControls bool
}

func newPeer(uuid string, pc *webrtc.PeerConnection) *Peer {
	return &Peer{
		uuid:   uuid,
		pc:     pc,
		doneCh: make(chan struct{}),
	}
}

// UUID returns the peer's stable identifier.
func (p *Peer) UUID() string { return p.uuid }

// Connection returns the underlying WebRTC peer connection.
func (p *Peer) Connection() *webrtc.PeerConnection { return p.pc }

// HasControl reports whether this peer currently holds input control. Only
// meaningful when read under the owning Registry's lock.
func (p *Peer) HasControl() bool { return p.hasControls }

// SignalDone marks the peer for teardown. The first call wins; later calls
// (from ICE state callback, peer-connection state callback, or an explicit
// disconnect) are no-ops.
func (p *Peer) SignalDone() {
	p.doneOnce.Do(func() { close(p.doneCh) })
}

// Done returns the channel the peer's watchdog selects on.
func (p *Peer) Done() <-chan struct{} { return p.doneCh }

// takeControl emits ControlTake and sets the flag, unless already held. Must
// be called under the owning Registry's write lock.
func (p *Peer) takeControl(emit func(Event)) {
	if p.hasControls {
		return
	}
	emit(Event{Type: EventControlTake, UUID: p.uuid})
	p.hasControls = true
}

// releaseControl emits ControlRelease and clears the flag, unless already
// clear. Must be called under the owning Registry's write lock.
func (p *Peer) releaseControl(emit func(Event)) {
	if !p.hasControls {
		return
	}
	emit(Event{Type: EventControlRelease, UUID: p.uuid})
	p.hasControls = false
}
