package signal

import (
	"github.com/pion/webrtc/v4"

	"aether-broadcast/internal/deviceinfo"
)

// specificationFrame is the startup registration message sent to the
// landlord, describing this host's display and hardware.
type specificationFrame struct {
	Type    string `json:"type"`
	Message struct {
		Display struct {
			Width     int `json:"width"`
			Height    int `json:"height"`
			FrameRate int `json:"frame_rate"`
		} `json:"display"`
		IPAddr string `json:"ip_addr"`
		Device struct {
			CPU []deviceinfo.Component `json:"cpu"`
			GPU []deviceinfo.Component `json:"gpu"`
		} `json:"device"`
	} `json:"message"`
}

// uuidFrame covers every outgoing frame whose only payload is a uuid
// (CONTROL_ACK, DISCONNECT_ACK, CONNECTION_MADE, DISCONNECTION_MADE,
// CONTROL_TAKEN, CONTROL_RELEASED).
type uuidFrame struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

// connectionAckFrame answers a CONNECTION request with the local SDP.
type connectionAckFrame struct {
	Type   string                     `json:"type"`
	Answer *webrtc.SessionDescription `json:"answer"`
}
