package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInjector struct {
	clicks [][2]int
}

func (f *fakeInjector) Click(x, y int) error {
	f.clicks = append(f.clicks, [2]int{x, y})
	return nil
}

func newTestManager(injector *fakeInjector) *Manager {
	return &Manager{
		registry:   NewRegistry(),
		injector:   injector,
		events:     make(chan Event, 64),
		shutdownCh: make(chan struct{}),
	}
}

func TestHandleMouseEventGrantsControlOnFirstClick(t *testing.T) {
	inj := &fakeInjector{}
	m := newTestManager(inj)
	a := newPeer("a", nil)
	m.registry.Insert(a)

	m.handleMouseEvent(a, []byte(`{"payload":{"clicked_at":{"x_ratio":0.5,"y_ratio":0.5}}}`))

	assert.True(t, a.HasControl())
	require.Len(t, inj.clicks, 1)
	assert.Equal(t, [2]int{960, 540}, inj.clicks[0])

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
	require.Len(t, events, 1)
	assert.Equal(t, EventControlTake, events[0].Type)
	assert.Equal(t, "a", events[0].UUID)
}

func TestHandleMouseEventDropsWhenAnotherPeerControls(t *testing.T) {
	inj := &fakeInjector{}
	m := newTestManager(inj)
	a := newPeer("a", nil)
	b := newPeer("b", nil)
	m.registry.Insert(a)
	m.registry.Insert(b)

	m.registry.TryAcquireControl(a, m.emit)
	<-m.events // drain the ControlTake for a

	m.handleMouseEvent(b, []byte(`{"payload":{"clicked_at":{"x_ratio":0.1,"y_ratio":0.1}}}`))

	assert.False(t, b.HasControl())
	assert.Empty(t, inj.clicks, "peer without control must not inject a click")
}

func TestHandleMouseEventIgnoresMalformedJSON(t *testing.T) {
	inj := &fakeInjector{}
	m := newTestManager(inj)
	a := newPeer("a", nil)
	m.registry.Insert(a)

	assert.NotPanics(t, func() {
		m.handleMouseEvent(a, []byte(`not json`))
	})
	assert.Empty(t, inj.clicks)
	assert.False(t, a.HasControl())
}

func TestHandleMouseEventDropsPayloadMissingRatios(t *testing.T) {
	inj := &fakeInjector{}
	m := newTestManager(inj)
	a := newPeer("a", nil)
	m.registry.Insert(a)

	m.handleMouseEvent(a, []byte(`{"payload":{"clicked_at":{"x_ratio":0.5}}}`))
	assert.Empty(t, inj.clicks, "missing y_ratio must not click at x,0")
	assert.False(t, a.HasControl(), "a dropped event must not grant control")

	m.handleMouseEvent(a, []byte(`{"payload":{"clicked_at":{}}}`))
	assert.Empty(t, inj.clicks)
	assert.False(t, a.HasControl())
}
