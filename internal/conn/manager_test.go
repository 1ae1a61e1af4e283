package conn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-broadcast/internal/config"
)

// localOffer builds a non-trickle SDP offer the way a real browser client
// would produce one for a recvonly video subscription, without ever dialing
// out anywhere: it mirrors pion's own GatheringCompletePromise example,
// which waits for local candidate gathering to finish before handing the
// offer to the other side. No network connectivity between the two peer
// connections is required to exercise Connect's offer/answer path.
func localOffer(t *testing.T) webrtc.SessionDescription {
	t.Helper()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gatherComplete

	return *pc.LocalDescription()
}

func newTestFullManager(t *testing.T) (*Manager, *fakeInjector) {
	t.Helper()

	api, err := NewAPI()
	require.NoError(t, err)

	cfg := &config.Config{
		// Points at a closed local port so ICE gathering fails the STUN
		// binding immediately instead of waiting on a real network timeout.
		StunURL: "stun:127.0.0.1:1",
	}

	inj := &fakeInjector{}
	mgr := NewManager(cfg, api, inj)
	t.Cleanup(mgr.Shutdown)

	return mgr, inj
}

func drainEvents(m *Manager) []Event {
	var events []Event
	for {
		select {
		case ev := <-m.events:
			events = append(events, ev)
			continue
		default:
		}
		break
	}
	return events
}

func TestConnectGrantsControlToFirstViewer(t *testing.T) {
	mgr, _ := newTestFullManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	answer, err := mgr.Connect(ctx, "viewer-1", localOffer(t))
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.True(t, strings.Contains(answer.SDP, "VP8"), "default config selects VP8 for a non-wayland session")

	events := drainEvents(mgr)
	require.Len(t, events, 2)
	assert.Equal(t, EventConnected, events[0].Type)
	assert.Equal(t, "viewer-1", events[0].UUID)
	assert.Equal(t, EventControlTake, events[1].Type)
	assert.Equal(t, "viewer-1", events[1].UUID)

	peer, ok := mgr.registry.Get("viewer-1")
	require.True(t, ok)
	assert.True(t, peer.HasControl())
	assert.Equal(t, 1, mgr.registry.Len())
}

func TestConnectRejectsDuplicateUUID(t *testing.T) {
	mgr, _ := newTestFullManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := mgr.Connect(ctx, "viewer-1", localOffer(t))
	require.NoError(t, err)
	drainEvents(mgr)

	_, err = mgr.Connect(ctx, "viewer-1", localOffer(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateUUID))

	// The rejected duplicate must leave the first peer's session untouched
	// and must not have announced anything for the failed attempt.
	assert.Equal(t, 1, mgr.registry.Len())
	assert.Empty(t, drainEvents(mgr))
}

func TestConnectDiscardsPeerSilentlyOnBadOffer(t *testing.T) {
	mgr, _ := newTestFullManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	badOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not a real sdp"}
	_, err := mgr.Connect(ctx, "viewer-bad", badOffer)
	require.Error(t, err)

	// A peer that never reached EventConnected must leave no trace: no
	// Disconnected event, and it must not linger in the registry.
	assert.Equal(t, 0, mgr.registry.Len())
	for _, ev := range drainEvents(mgr) {
		assert.NotEqual(t, EventDisconnected, ev.Type, "an unannounced peer must not emit Disconnected")
	}
}
