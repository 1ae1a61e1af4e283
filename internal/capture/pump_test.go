package capture

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateOpensOnce(t *testing.T) {
	g := NewGate()

	var wg sync.WaitGroup
	released := make([]bool, 5)
	for i := range released {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.Wait()
			released[i] = true
		}(i)
	}

	g.Open()
	g.Open() // must not panic or block
	wg.Wait()

	for _, r := range released {
		assert.True(t, r)
	}
}

type fakeCounter struct{ n int }

func (f *fakeCounter) Len() int { return f.n }

func TestPeerCounterSatisfiedByInt(t *testing.T) {
	var pc PeerCounter = &fakeCounter{n: 3}
	assert.Equal(t, 3, pc.Len())
}

func TestH264TickInterval(t *testing.T) {
	assert.Equal(t, 33*time.Millisecond, h264TickInterval)
}

func TestH264SourceEmitsNALsUntilEOF(t *testing.T) {
	// Two minimal Annex-B NAL units back to back.
	stream := bytes.Join([][]byte{
		{0, 0, 0, 1, 0x67, 0xAA},
		{0, 0, 0, 1, 0x68, 0xBB},
	}, nil)

	src, err := newH264Source(bytes.NewReader(stream))
	require.NoError(t, err)

	sample, wait, err := src.next()
	require.NoError(t, err)
	assert.Equal(t, h264TickInterval, wait)
	assert.Equal(t, h264TickInterval, sample.Duration)
	assert.NotEmpty(t, sample.Data)

	_, _, err = src.next()
	require.NoError(t, err)

	_, _, err = src.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewFrameSourceSelectsByCodec(t *testing.T) {
	src, err := newFrameSource(CodecH264, bytes.NewReader(nil))
	require.NoError(t, err)

	_, _, err = src.next()
	assert.ErrorIs(t, err, io.EOF, "an empty stream surfaces EOF on the first read")
}

func TestPumpRetireOnlyClearsItsOwnSlot(t *testing.T) {
	var mu sync.Mutex
	var slot int // 1 means "owned by this pump", 0 means cleared or claimed by another

	slot = 1
	p := &Pump{mu: &mu, tryRetire: func() bool {
		if slot != 1 {
			return false
		}
		slot = 0
		return true
	}}

	p.retire()
	assert.Equal(t, 0, slot)

	// A second retire, after something else has claimed the slot, must not
	// clobber it.
	slot = 2
	p.retire()
	assert.Equal(t, 2, slot)
}
