package conn

import (
	"encoding/json"
	"log"

	"github.com/pion/webrtc/v4"

	"aether-broadcast/internal/control"
)

// mouseEvent is the wire shape of "mouse_events" data channel messages:
// normalised click-position ratios in [0,1]. Both ratios are pointers so a
// payload that omits either field is distinguishable from one that sends an
// explicit 0.0 - the former is malformed and must be dropped, not clicked at
// the origin.
type mouseEvent struct {
	Payload struct {
		ClickedAt struct {
			XRatio *float64 `json:"x_ratio"`
			YRatio *float64 `json:"y_ratio"`
		} `json:"clicked_at"`
	} `json:"payload"`
}

// wireDisplayWidth and wireDisplayHeight are the hardcoded pixel size
// mouse-event ratios are mapped against.
const (
	wireDisplayWidth  = 1920
	wireDisplayHeight = 1080
)

// attachDataChannelHandler wires the per-peer data-channel callback: the two
// known labels are "mouse_events" and "signalled_closure"; anything else is
// ignored.
func (m *Manager) attachDataChannelHandler(peer *Peer) {
	pc := peer.Connection()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			switch dc.Label() {
			case "mouse_events":
				m.handleMouseEvent(peer, msg.Data)
			case "signalled_closure":
				m.signalShutdown()
			default:
				// unknown label, ignored
			}
		})
	})
}

func (m *Manager) handleMouseEvent(peer *Peer, data []byte) {
	var event mouseEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[manager] malformed mouse_events message from peer=%s: %v", peer.UUID(), err)
		return
	}

	xRatio, yRatio := event.Payload.ClickedAt.XRatio, event.Payload.ClickedAt.YRatio
	if xRatio == nil || yRatio == nil {
		log.Printf("[manager] mouse_events message from peer=%s missing x_ratio/y_ratio, dropped", peer.UUID())
		return
	}

	x := int(float64(wireDisplayWidth) * *xRatio)
	y := int(float64(wireDisplayHeight) * *yRatio)

	if !m.registry.TryAcquireControl(peer, m.emit) {
		// another peer holds control; silently drop
		return
	}

	if err := m.injector.Click(x, y); err != nil {
		log.Printf("[manager] click injection failed for peer=%s: %v", peer.UUID(), err)
	}
}

// injector defaults to a no-op when unset, so tests don't need an X server.
func defaultInjector() control.Injector {
	return control.NoopInjector{}
}
