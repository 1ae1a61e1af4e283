// Package deviceinfo does a best-effort local hardware probe for the
// landlord registration message. It is cosmetic telemetry, not used for any
// codec or bitrate decision.
package deviceinfo

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Component describes one CPU or GPU entry in the SPECIFICATION message.
type Component struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Probe returns the CPU and GPU component lists, falling back to a single
// generic entry when a richer probe isn't available on this platform.
func Probe() (cpu []Component, gpu []Component) {
	cpu = probeCPU()
	gpu = probeGPU()
	return cpu, gpu
}

func probeCPU() []Component {
	if runtime.GOOS == "linux" {
		if name, ok := cpuModelFromProc(); ok {
			return []Component{{Name: name, Size: runtime.NumCPU()}}
		}
	}
	return []Component{{Name: "<>", Size: runtime.NumCPU()}}
}

func cpuModelFromProc() (string, bool) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1]), true
			}
		}
	}
	return "", false
}

func probeGPU() []Component {
	out, err := exec.Command("lspci").Output()
	if err != nil {
		return []Component{{Name: "<>", Size: 0}}
	}

	var gpus []Component
	for _, line := range strings.Split(string(out), "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "vga compatible controller") || strings.Contains(lower, "3d controller") {
			idx := strings.Index(line, ": ")
			name := line
			if idx != -1 {
				name = line[idx+2:]
			}
			gpus = append(gpus, Component{Name: strings.TrimSpace(name), Size: 0})
		}
	}
	if len(gpus) == 0 {
		return []Component{{Name: "<>", Size: 0}}
	}
	return gpus
}
