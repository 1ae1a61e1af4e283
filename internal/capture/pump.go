package capture

import (
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// PeerCounter is the narrow view of the Peer Registry the Frame Pump needs:
// just enough to detect an empty peer set and stop capturing.
type PeerCounter interface {
	Len() int
}

// Gate is a one-shot "first peer connected" notifier that holds capture off
// until someone is actually watching. It is signalled once and then
// permanently open; later signals are no-ops, so every waiter is released
// together with no re-arming.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a new, unsignalled Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter. Safe to call more than once
// or concurrently.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Wait blocks until Open has been called.
func (g *Gate) Wait() {
	<-g.ch
}

// frameSource yields paced media samples from a capture subprocess's stdout.
type frameSource interface {
	// next returns the next sample and how long the pump should wait before
	// emitting the one after it. io.EOF signals end of stream.
	next() (media.Sample, time.Duration, error)
}

// Pump is the single long-lived task per capture session: it drives one
// capture subprocess, paces its frames, and writes them to the shared screen
// track until the track closes or the peer set empties.
type Pump struct {
	track *webrtc.TrackLocalStaticSample
	peers PeerCounter
	gate  *Gate
	cmd   *exec.Cmd

	// mu is the owner's slot lock, shared with whatever decides to hand this
	// Pump's track out to a newly connecting peer (see tryRetire).
	mu *sync.Mutex
	// tryRetire is called with mu held. It clears the owner's screen-track
	// slot if this Pump still occupies it and reports whether it did, so the
	// owner never reuses a track whose Pump has already committed to exit,
	// and the Pump never clears a slot some other Pump has since claimed.
	tryRetire func() bool
}

// NewPump constructs a Pump for the given plan, track, and peer registry. The
// capture subprocess is not started until Run is called. mu must be the same
// lock the owner takes around its install/reuse decision for this track, so
// the emptiness check and the slot clear happen as one atomic step.
func NewPump(plan Plan, track *webrtc.TrackLocalStaticSample, peers PeerCounter, gate *Gate, mu *sync.Mutex, tryRetire func() bool) *Pump {
	return &Pump{
		track:     track,
		peers:     peers,
		gate:      gate,
		cmd:       plan.Command(),
		mu:        mu,
		tryRetire: tryRetire,
	}
}

// retire unconditionally attempts to clear the owner's slot for this Pump,
// under the shared lock. Used on every exit path so a dead Pump never leaves
// a stale track installed.
func (p *Pump) retire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tryRetire()
}

// Run waits for the first-peer gate, starts the capture subprocess, and
// paces its frames into the track until the stream ends or the last peer
// leaves. It always clears the track slot and kills the subprocess before
// returning, even on a spawn failure.
func (p *Pump) Run(codec Codec) {
	p.gate.Wait()

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		log.Printf("[pump] stdout pipe error: %v", err)
		p.retire()
		return
	}

	if err := p.cmd.Start(); err != nil {
		log.Printf("[pump] failed to start capture subprocess: %v", err)
		p.retire()
		return
	}

	log.Printf("[pump] capture subprocess started, codec=%s", codec)

	src, err := newFrameSource(codec, stdout)
	if err != nil {
		log.Printf("[pump] failed to parse capture stream: %v", err)
		p.killSubprocess()
		p.retire()
		return
	}

	p.loop(src)

	p.killSubprocess()
	p.retire()
	log.Printf("[pump] %s source exhausted", codec)
}

func (p *Pump) loop(src frameSource) {
	for {
		sample, wait, err := src.next()
		if err != nil {
			if err != io.EOF {
				log.Printf("[pump] codec reader error: %v", err)
			}
			return
		}

		if err := p.track.WriteSample(sample); err != nil {
			log.Printf("[pump] track write failed, stopping: %v", err)
			return
		}

		p.mu.Lock()
		empty := p.peers.Len() == 0
		retired := empty && p.tryRetire()
		p.mu.Unlock()
		if retired {
			return
		}

		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

func (p *Pump) killSubprocess() {
	if p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil {
		log.Printf("[pump] capture subprocess kill error (ignored): %v", err)
	}
	_ = p.cmd.Wait()
}

func newFrameSource(codec Codec, r io.Reader) (frameSource, error) {
	if codec == CodecH264 {
		return newH264Source(r)
	}
	return newIVFSource(r)
}

// ivfSource paces VP8/IVF frames by the container's declared time-base and
// warns when wall-clock delivery drifts more than two intervals behind.
type ivfSource struct {
	reader        *ivfreader.IVFReader
	interval      time.Duration
	expectedDelta time.Duration
	lastEmit      time.Time
}

func newIVFSource(r io.Reader) (*ivfSource, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("ivf header: %w", err)
	}
	if header.TimebaseDenominator == 0 {
		return nil, fmt.Errorf("ivf header: zero timebase denominator")
	}
	interval := time.Duration(1000*header.TimebaseNumerator/header.TimebaseDenominator) * time.Millisecond

	return &ivfSource{
		reader:   reader,
		interval: interval,
		lastEmit: time.Now(),
	}, nil
}

func (s *ivfSource) next() (media.Sample, time.Duration, error) {
	frame, _, err := s.reader.ParseNextFrame()
	if err != nil {
		return media.Sample{}, 0, err
	}

	now := time.Now()
	s.expectedDelta += s.interval
	actualDelta := now.Sub(s.lastEmit)
	if actualDelta > 2*s.interval {
		log.Printf("[pump] ivf pacing drift: wanted %v between frames, took %v", s.interval, actualDelta)
	}
	s.lastEmit = now

	return media.Sample{Data: frame, Duration: s.interval}, s.interval, nil
}

// h264Source paces H.264 Annex-B NAL units at a nominal 30Hz ceiling; the
// receiving RTP packetiser re-times samples from its own interval, so the
// duration carried here is nominal only.
type h264Source struct {
	reader *h264reader.H264Reader
}

const h264TickInterval = 33 * time.Millisecond

func newH264Source(r io.Reader) (*h264Source, error) {
	reader, err := h264reader.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("h264 reader: %w", err)
	}
	return &h264Source{reader: reader}, nil
}

func (s *h264Source) next() (media.Sample, time.Duration, error) {
	nal, err := s.reader.NextNAL()
	if err != nil {
		return media.Sample{}, 0, err
	}
	if nal == nil {
		return media.Sample{}, 0, io.EOF
	}
	return media.Sample{Data: nal.Data, Duration: h264TickInterval}, h264TickInterval, nil
}
