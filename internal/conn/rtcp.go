package conn

import (
	"context"
	"log"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// runRTCPFeedbackLoop is the per-peer task that drains the RTPSender's RTCP
// stream and classifies each packet. It is intentionally passive, a telemetry
// sink rather than an adaptive control loop, and exits once ctx is cancelled
// or the sender closes.
func runRTCPFeedbackLoop(ctx context.Context, uuid string, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP(ctx)
		if err != nil {
			return
		}

		for _, pkt := range packets {
			switch p := pkt.(type) {
			case *rtcp.PictureLossIndication:
				log.Printf("[rtcp] peer=%s PLI received", uuid)
			case *rtcp.FullIntraRequest:
				log.Printf("[rtcp] peer=%s FIR received", uuid)
			case *rtcp.ReceiverReport:
				if len(p.Reports) > 0 {
					r := p.Reports[0]
					log.Printf("[rtcp] peer=%s receiver report: loss=%d jitter=%d", uuid, r.FractionLost, r.Jitter)
				}
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				log.Printf("[rtcp] peer=%s REMB estimate: %.2fkbps", uuid, p.Bitrate/1000)
			default:
				log.Printf("[rtcp] peer=%s unknown RTCP packet received", uuid)
			}
		}
	}
}
