package deviceinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReturnsAtLeastOneComponentEach(t *testing.T) {
	cpu, gpu := Probe()

	require.NotEmpty(t, cpu)
	require.NotEmpty(t, gpu)

	for _, c := range cpu {
		assert.NotEmpty(t, c.Name)
		assert.GreaterOrEqual(t, c.Size, 0)
	}
	for _, g := range gpu {
		assert.NotEmpty(t, g.Name)
	}
}

func TestProbeCPUSizeMatchesNumCPUOnLinuxWithProc(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("/proc/cpuinfo only exists on linux")
	}
	cpu := probeCPU()
	require.Len(t, cpu, 1)
	assert.Equal(t, runtime.NumCPU(), cpu[0].Size)
}

func TestProbeGPUFallsBackWhenNothingFound(t *testing.T) {
	gpus := probeGPU()
	require.NotEmpty(t, gpus)
	for _, g := range gpus {
		assert.NotEmpty(t, g.Name)
	}
}
