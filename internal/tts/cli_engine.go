// Package tts provides the synthesis engines the gateway delegates to.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/champierre/saym/internal/config"
	"github.com/champierre/saym/internal/core"
)

// Static errors.
var (
	ErrTextEmpty        = errors.New("text cannot be empty")
	ErrSpeakerPathEmpty = errors.New("speaker path cannot be empty")
	ErrOutputPathEmpty  = errors.New("output path cannot be empty")
	ErrLanguageEmpty    = errors.New("language cannot be empty")
)

// CLIEngine implements core.SynthesisEngine by running the Coqui `tts`
// executable once per request. Model weights are loaded by that process.
type CLIEngine struct {
	binaryPath string
	modelName  string
	device     string
}

// NewCLIEngine creates an engine for the configured executable and model.
func NewCLIEngine(cfg config.EngineConfig, device string) *CLIEngine {
	return &CLIEngine{
		binaryPath: cfg.BinaryPath,
		modelName:  cfg.ModelName,
		device:     device,
	}
}

// Device returns the compute device passed to the executable.
func (e *CLIEngine) Device() string {
	return e.device
}

// Synthesize runs the executable and waits for it to write req.OutputPath.
func (e *CLIEngine) Synthesize(ctx context.Context, req core.EngineRequest) error {
	err := validateEngineRequest(req)
	if err != nil {
		return err
	}

	args := e.buildArgs(req)

	// #nosec G204 -- binary comes from configuration, request values are passed as single argv entries
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	// The tts CLI splits sentences on its own and otherwise blocks on the
	// interactive model license prompt.
	cmd.Env = append(os.Environ(), licenseAgreedEnv)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tts binary execution failed: %w - output: %s", err, string(output))
	}

	return nil
}

const licenseAgreedEnv = "COQUI_TOS_AGREED=1"

// buildArgs uses the --flag=value form so that text starting with a dash is
// never mistaken for an option.
func (e *CLIEngine) buildArgs(req core.EngineRequest) []string {
	args := []string{
		"--model_name=" + e.modelName,
		"--text=" + req.Text,
		"--speaker_wav=" + req.SpeakerPath,
		"--language_idx=" + req.Language,
		"--out_path=" + req.OutputPath,
	}

	if e.device == config.DeviceCUDA {
		args = append(args, "--use_cuda=true")
	}

	return args
}

func validateEngineRequest(req core.EngineRequest) error {
	if req.Text == "" {
		return ErrTextEmpty
	}

	if req.SpeakerPath == "" {
		return ErrSpeakerPathEmpty
	}

	if req.Language == "" {
		return ErrLanguageEmpty
	}

	if req.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	return nil
}
