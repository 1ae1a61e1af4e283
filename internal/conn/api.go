package conn

import "github.com/pion/webrtc/v4"

// NewAPI builds the pion WebRTC API used by the Manager. The default codec
// set already covers both codecs the capture pipeline selects between (VP8
// for X11, H.264 for Wayland).
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m)), nil
}
