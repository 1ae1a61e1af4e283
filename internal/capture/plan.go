// Package capture builds and runs the external screen-capture subprocess and
// paces its compressed output into a shared WebRTC sample track.
package capture

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pion/webrtc/v4"
)

// Codec identifies which elementary-stream format the capture subprocess
// produces and which container/reader the Frame Pump should use.
type Codec int

const (
	CodecVP8 Codec = iota
	CodecH264
)

// MimeType returns the WebRTC RTP codec MIME type for c.
func (c Codec) MimeType() string {
	if c == CodecH264 {
		return webrtc.MimeTypeH264
	}
	return webrtc.MimeTypeVP8
}

func (c Codec) String() string {
	if c == CodecH264 {
		return "H264"
	}
	return "VP8"
}

// SelectCodec implements the static codec-selection rule: a Wayland session
// selects H.264 (hardware-encoded via KMS+VA-API); anything else falls back
// to VP8.
func SelectCodec(xdgSessionType string) Codec {
	if xdgSessionType == "wayland" {
		return CodecH264
	}
	return CodecVP8
}

// Plan is the OS/session-specific ffmpeg invocation chosen by codec selection
// and runtime.GOOS.
type Plan struct {
	Codec Codec
	Args  []string
}

// BuildPlan constructs the ffmpeg argument vector for the current OS and the
// given X11 DISPLAY value (ignored outside Linux/X11).
func BuildPlan(codec Codec, x11Display string) (Plan, error) {
	switch runtime.GOOS {
	case "windows":
		return Plan{
			Codec: CodecVP8,
			Args: []string{
				"-re", "-f", "gdigrab", "-i", "desktop",
				"-c:v", "vp8", "-pix_fmt", "yuv420p",
				"-r", "24", "-b:v", "2M", "-f", "ivf", "-",
			},
		}, nil
	case "linux":
		if codec == CodecH264 {
			return Plan{
				Codec: CodecH264,
				Args: []string{
					"-re", "-device", "/dev/dri/card0", "-f", "kmsgrab", "-i", "-",
					"-vf", "hwmap=derive_device=vaapi,scale_vaapi=format=nv12",
					"-c:v", "h264_vaapi", "-bsf:v", "h264_mp4toannexb",
					"-r", "24", "-b:v", "2M", "-f", "h264", "-",
				},
			}, nil
		}
		return Plan{
			Codec: CodecVP8,
			Args: []string{
				"-re", "-f", "x11grab", "-i", fmt.Sprintf("%s.0", x11Display),
				"-c:v", "vp8", "-pix_fmt", "yuv420p",
				"-r", "24", "-b:v", "2M", "-f", "ivf", "-",
			},
		}, nil
	default:
		return Plan{}, fmt.Errorf("capture: unsupported platform %q", runtime.GOOS)
	}
}

// Command constructs the subprocess for this plan, discarding stderr.
func (p Plan) Command() *exec.Cmd {
	cmd := exec.Command("ffmpeg", p.Args...)
	cmd.Stderr = nil
	return cmd
}
