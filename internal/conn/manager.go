package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"aether-broadcast/internal/capture"
	"aether-broadcast/internal/config"
	"aether-broadcast/internal/control"
)

// ErrDuplicateUUID is returned by Connect when the caller has already
// registered a peer under the given uuid.
var ErrDuplicateUUID = errors.New("conn: peer with this uuid already connected")

// screenTrack is the lazily-created, shared video track plus the capture
// session that feeds it. Every peer that connects while a screen track is
// live shares the same track and the same capture subprocess; the pump tears
// both down once the last viewer disconnects.
type screenTrack struct {
	track *webrtc.TrackLocalStaticSample
	gate  *capture.Gate
}

// Manager is the Connection Manager: it owns the shared screen track slot,
// the peer registry, the WebRTC API, and the mouse-input injector, and is the
// single place peer connect/disconnect/control transitions happen.
type Manager struct {
	cfg *config.Config
	api *webrtc.API

	registry *Registry
	injector control.Injector

	mu     sync.Mutex // guards screen below
	screen *screenTrack

	events chan Event
	wg     sync.WaitGroup // tracks peers with a live watchPeer goroutine

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewManager builds a Manager from its configuration and a pre-built pion
// WebRTC API (so callers control codec registration and settings engines).
func NewManager(cfg *config.Config, api *webrtc.API, injector control.Injector) *Manager {
	if injector == nil {
		injector = defaultInjector()
	}
	return &Manager{
		cfg:        cfg,
		api:        api,
		registry:   NewRegistry(),
		injector:   injector,
		events:     make(chan Event, 64),
		shutdownCh: make(chan struct{}),
	}
}

// Events returns the channel of lifecycle notifications the Signalling
// Adapter drains and forwards upstream. Sends block the emitting goroutine,
// so a slow or dead consumer applies backpressure instead of silently
// dropping events.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) emit(ev Event) {
	m.events <- ev
}

// ShutdownRequested returns the channel closed the first time any peer sends
// a signalled_closure message or Shutdown is called directly.
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.shutdownCh
}

func (m *Manager) signalShutdown() {
	m.shutdownOnce.Do(func() { close(m.shutdownCh) })
}

// Connect accepts a browser's SDP offer for the given uuid, builds a peer
// connection bound to the shared screen track, and returns the SDP answer.
// A uuid already present in the registry is rejected with no side effects.
func (m *Manager) Connect(ctx context.Context, uuid string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if _, exists := m.registry.Get(uuid); exists {
		return nil, ErrDuplicateUUID
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{m.cfg.StunURL}}},
	})
	if err != nil {
		return nil, fmt.Errorf("conn: new peer connection: %w", err)
	}

	peer := newPeer(uuid, pc)
	track, gate, err := m.ensureScreenTrack(peer)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("conn: screen track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		m.discardPeer(peer)
		return nil, fmt.Errorf("conn: add track: %w", err)
	}

	rtcpCtx, cancelRTCP := context.WithCancel(ctx)
	go runRTCPFeedbackLoop(rtcpCtx, uuid, sender)

	m.attachDataChannelHandler(peer)

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[manager] peer=%s ice state=%s", uuid, state)
		switch state {
		case webrtc.ICEConnectionStateConnected:
			gate.Open()
		case webrtc.ICEConnectionStateFailed,
			webrtc.ICEConnectionStateDisconnected,
			webrtc.ICEConnectionStateClosed:
			peer.SignalDone()
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[manager] peer=%s connection state=%s", uuid, state)
		switch state {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			peer.SignalDone()
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		cancelRTCP()
		m.discardPeer(peer)
		return nil, fmt.Errorf("conn: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cancelRTCP()
		m.discardPeer(peer)
		return nil, fmt.Errorf("conn: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		cancelRTCP()
		m.discardPeer(peer)
		return nil, fmt.Errorf("conn: set local description: %w", err)
	}
	<-gatherComplete

	m.emit(Event{Type: EventConnected, UUID: uuid})
	m.registry.TryAcquireControl(peer, m.emit)

	m.wg.Add(1)
	go m.watchPeer(peer, cancelRTCP)

	local := pc.LocalDescription()
	return local, nil
}

// watchPeer blocks until the peer signals done (from either WebRTC state
// changes or an explicit DisconnectPeer), then releases control if held,
// cancels its RTCP loop, closes the connection, and removes it from the
// registry.
func (m *Manager) watchPeer(peer *Peer, cancelRTCP context.CancelFunc) {
	defer m.wg.Done()
	<-peer.Done()
	cancelRTCP()
	m.teardownPeer(peer)
}

// teardownPeer releases control if held, closes the connection, and removes
// it from the registry. The Frame Pump notices an empty registry on its own
// and tears down the capture subprocess; nothing further is needed here. Only
// call this for a peer that has already had EventConnected emitted for it.
func (m *Manager) teardownPeer(peer *Peer) {
	m.registry.ReleaseIfHeld(peer, m.emit)
	_ = peer.Connection().Close()
	m.registry.Remove(peer.UUID())
	m.emit(Event{Type: EventDisconnected, UUID: peer.UUID()})
}

// discardPeer closes and forgets a peer that failed the offer/answer exchange
// before EventConnected was ever emitted for it. It never held control and
// was never announced, so it is removed silently: emitting EventDisconnected
// here would produce a Disconnected with no matching Connected.
func (m *Manager) discardPeer(peer *Peer) {
	_ = peer.Connection().Close()
	m.registry.Remove(peer.UUID())
}

// ChangeControlTo forwards to the Registry.
func (m *Manager) ChangeControlTo(uuid string) {
	m.registry.ChangeControlTo(uuid, m.emit)
}

// DisconnectPeer signals the named peer's watchdog to tear it down. A uuid
// not present in the registry is a no-op.
func (m *Manager) DisconnectPeer(uuid string) {
	if peer, ok := m.registry.Get(uuid); ok {
		peer.SignalDone()
	}
}

// Shutdown signals every connected peer to tear down and blocks until every
// watchPeer goroutine has finished draining the registry.
func (m *Manager) Shutdown() {
	m.signalShutdown()
	m.registry.Each(func(p *Peer) {
		p.SignalDone()
	})
	m.wg.Wait()
}

// ensureScreenTrack returns the shared screen track and its first-peer gate,
// creating both and starting the Frame Pump on first use, and inserts peer
// into the registry under the same lock. The gate is opened
// by the first peer whose ICE connection state reaches Connected, not by
// track creation itself, so the pump never wastes encoder cycles on frames
// nobody has actually subscribed to yet.
//
// m.mu is also the lock the Pump takes around its own "peer set just went
// empty, should I retire" decision (see capture.Pump.tryRetire), so the two
// critical sections - "reuse or replace the installed track" here, and
// "notice nobody's left and clear the slot" in the Pump's loop - serialize
// against each other. Because peer is inserted inside that critical section,
// a peer connecting in the same instant the last viewer leaves is never
// handed a retiring track: either the Pump retires first and this call
// observes m.screen cleared and starts a fresh Pump, or this call reuses the
// track and inserts peer first, and the Pump then sees a non-empty registry
// and keeps running.
func (m *Manager) ensureScreenTrack(peer *Peer) (*webrtc.TrackLocalStaticSample, *capture.Gate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen != nil {
		m.registry.Insert(peer)
		return m.screen.track, m.screen.gate, nil
	}

	codec := capture.SelectCodec(m.cfg.XDGSessionType)
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: codec.MimeType()},
		"screen", "aether-broadcast",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("new track: %w", err)
	}

	plan, err := capture.BuildPlan(codec, m.cfg.X11Display)
	if err != nil {
		return nil, nil, fmt.Errorf("build capture plan: %w", err)
	}

	gate := capture.NewGate()
	st := &screenTrack{track: track, gate: gate}
	m.screen = st
	m.registry.Insert(peer)

	pump := capture.NewPump(plan, track, m.registry, gate, &m.mu, func() bool {
		if m.screen != st {
			return false
		}
		m.screen = nil
		return true
	})

	go pump.Run(codec)

	return track, gate, nil
}
