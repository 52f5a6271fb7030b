package tts

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/champierre/saym/internal/config"
)

const deviceProbeTimeout = 5 * time.Second

// ResolveDevice turns the configured device setting into a concrete device.
// "auto" selects CUDA when cudaAvailable reports a GPU, otherwise CPU.
func ResolveDevice(setting string, cudaAvailable func() bool) string {
	switch setting {
	case config.DeviceCUDA, config.DeviceCPU:
		return setting
	}

	if cudaAvailable != nil && cudaAvailable() {
		return config.DeviceCUDA
	}

	return config.DeviceCPU
}

// CUDAAvailable reports whether nvidia-smi lists at least one GPU.
func CUDAAvailable() bool {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), deviceProbeTimeout)
	defer cancel()

	// #nosec G204 -- fixed arguments
	output, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil {
		return false
	}

	return strings.Contains(string(output), "GPU")
}
