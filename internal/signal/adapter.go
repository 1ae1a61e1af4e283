// Package signal implements the Signalling Adapter: it dials the upstream
// landlord WebSocket, registers this host, and translates between wire
// frames and aether-broadcast/internal/conn.Manager method calls.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"aether-broadcast/internal/config"
	"aether-broadcast/internal/conn"
	"aether-broadcast/internal/deviceinfo"
)

// Adapter owns the landlord connection and the pump that forwards Manager
// lifecycle events back to it.
type Adapter struct {
	cfg *config.Config
	mgr *conn.Manager
	ws  *websocket.Conn

	writeMu sync.Mutex // gorilla/websocket allows only one writer at a time
}

// writeJSON serializes concurrent writers: the read loop's ACK replies and
// the event loop's lifecycle frames both write to the same connection.
func (a *Adapter) writeJSON(v any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.ws.WriteJSON(v)
}

// New builds an Adapter bound to mgr; Dial must be called before Run.
func New(cfg *config.Config, mgr *conn.Manager) *Adapter {
	return &Adapter{cfg: cfg, mgr: mgr}
}

// Dial connects to the landlord WebSocket and sends the SPECIFICATION
// registration frame.
func (a *Adapter) Dial(ctx context.Context) error {
	url := a.cfg.LandlordURL
	header := http.Header{}
	if a.cfg.LandlordToken != "" {
		url = fmt.Sprintf("%s?token=%s", url, a.cfg.LandlordToken)
	}

	dialer := websocket.DefaultDialer
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("signal: dial landlord: %w", err)
	}
	a.ws = ws

	cpu, gpu := deviceinfo.Probe()
	reg := specificationFrame{Type: "SPECIFICATION"}
	reg.Message.Display.Width = a.cfg.DisplayWidth
	reg.Message.Display.Height = a.cfg.DisplayHeight
	reg.Message.Display.FrameRate = a.cfg.FrameRate
	reg.Message.IPAddr = "0.0.0.0"
	reg.Message.Device.CPU = cpu
	reg.Message.Device.GPU = gpu

	if err := a.writeJSON(reg); err != nil {
		return fmt.Errorf("signal: send SPECIFICATION: %w", err)
	}
	log.Printf("[signal] registered with landlord at %s", a.cfg.LandlordURL)
	return nil
}

// Run drains incoming landlord frames and the Manager's lifecycle events
// until either side closes. It is fatal to the process-level session: the
// caller is expected to exit once Run returns, per the error taxonomy that
// treats a signalling channel failure as session-ending rather than
// recoverable.
func (a *Adapter) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go a.readLoop(errCh)
	go a.eventLoop(ctx, errCh)

	return <-errCh
}

func (a *Adapter) readLoop(errCh chan<- error) {
	for {
		var raw json.RawMessage
		if err := a.ws.ReadJSON(&raw); err != nil {
			errCh <- fmt.Errorf("signal: read landlord frame: %w", err)
			return
		}
		if err := a.handleFrame(raw); err != nil {
			log.Printf("[signal] frame handling error: %v", err)
		}
	}
}

func (a *Adapter) eventLoop(ctx context.Context, errCh chan<- error) {
	for {
		select {
		case ev, ok := <-a.mgr.Events():
			if !ok {
				errCh <- fmt.Errorf("signal: manager event channel closed")
				return
			}
			if err := a.sendEvent(ev); err != nil {
				errCh <- fmt.Errorf("signal: write lifecycle event: %w", err)
				return
			}
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		}
	}
}

func (a *Adapter) sendEvent(ev conn.Event) error {
	var typ string
	switch ev.Type {
	case conn.EventConnected:
		typ = "CONNECTION_MADE"
	case conn.EventDisconnected:
		typ = "DISCONNECTION_MADE"
	case conn.EventControlTake:
		typ = "CONTROL_TAKEN"
	case conn.EventControlRelease:
		typ = "CONTROL_RELEASED"
	default:
		return fmt.Errorf("unknown event type %v", ev.Type)
	}
	return a.writeJSON(uuidFrame{Type: typ, UUID: ev.UUID})
}

type envelope struct {
	Type string `json:"type"`
}

func (a *Adapter) handleFrame(raw json.RawMessage) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case "CONNECTION":
		return a.handleConnection(raw)
	case "CONTROL":
		return a.handleControl(raw)
	case "DISCONNECT":
		return a.handleDisconnect(raw)
	default:
		log.Printf("[signal] unknown frame type %q ignored", env.Type)
		return nil
	}
}

type connectionFrame struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
	SDP  string `json:"sdp"`
}

func (a *Adapter) handleConnection(raw json.RawMessage) error {
	var f connectionFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("malformed CONNECTION frame: %w", err)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: f.SDP}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	answer, err := a.mgr.Connect(ctx, f.UUID, offer)
	if err != nil {
		if errors.Is(err, conn.ErrDuplicateUUID) {
			log.Printf("[signal] duplicate CONNECTION for uuid=%s ignored, existing session untouched", f.UUID)
		} else {
			log.Printf("[signal] connect failed for uuid=%s: %v", f.UUID, err)
		}
		return nil
	}

	return a.writeJSON(connectionAckFrame{Type: "CONNECTION_ACK", Answer: answer})
}

type controlFrame struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

func (a *Adapter) handleControl(raw json.RawMessage) error {
	var f controlFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("malformed CONTROL frame: %w", err)
	}
	a.mgr.ChangeControlTo(f.UUID)
	return a.writeJSON(uuidFrame{Type: "CONTROL_ACK", UUID: f.UUID})
}

func (a *Adapter) handleDisconnect(raw json.RawMessage) error {
	var f controlFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("malformed DISCONNECT frame: %w", err)
	}
	a.mgr.DisconnectPeer(f.UUID)
	return a.writeJSON(uuidFrame{Type: "DISCONNECT_ACK", UUID: f.UUID})
}

// Close closes the landlord WebSocket.
func (a *Adapter) Close() error {
	if a.ws == nil {
		return nil
	}
	return a.ws.Close()
}
