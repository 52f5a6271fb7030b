// Package gateway implements the synthesis gateway: it validates requests,
// resolves the reference voice to a local sample, delegates to the engine
// and returns the generated waveform.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/core"
	"github.com/champierre/saym/internal/scratch"
	"github.com/champierre/saym/internal/tts/audio"
	"github.com/gabriel-vasile/mimetype"
)

// OutputFilename is the attachment name of every synthesized waveform.
const OutputFilename = "output.wav"

// Caller-facing messages.
const (
	MsgNoText           = "No text provided"
	MsgNoSpeaker        = "No speaker_wav provided and no default set"
	MsgInvalidSpeaker   = "Invalid speaker_wav path"
	msgFmtSpeakerNotSet = "Speaker file not found: %s"
	msgFmtSpeakerSet    = "Default speaker set to: %s"
)

var mediaContainers = []string{
	"video/webm",
	"video/mp4",
	"video/x-matroska",
	"video/quicktime",
	"application/ogg",
}

const (
	outputPattern       = "xtts-output-*.wav"
	speakerPattern      = "xtts-speaker-*"
	fallbackSpeakerExt  = ".wav"
	maxReferenceInError = 64
)

// Recorder receives the outcome of every synthesis.
type Recorder interface {
	ObserveSynthesis(outcome string, elapsed time.Duration, audioLength time.Duration)
}

// Options configures a Gateway.
type Options struct {
	ModelID         string
	DefaultLanguage string
	// EngineTimeout bounds a single engine call. Zero waits indefinitely.
	EngineTimeout time.Duration
	Recorder      Recorder
}

// SynthesisRequest is one inbound synthesis call. A nil SpeakerWAV selects
// the default voice; otherwise it is a local path or base64 audio. A
// speaker_wav key that is present in JSON but null or empty names no voice
// and does not fall back to the default.
type SynthesisRequest struct {
	Text       string  `json:"text"`
	SpeakerWAV *string `json:"speaker_wav,omitempty"`
	Language   string  `json:"language"`

	speakerGiven bool
}

// UnmarshalJSON records whether the speaker_wav key was present.
func (r *SynthesisRequest) UnmarshalJSON(data []byte) error {
	type plain SynthesisRequest

	var decoded plain

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	var keys map[string]json.RawMessage

	err = json.Unmarshal(data, &keys)
	if err != nil {
		return err
	}

	_, decoded.speakerGiven = keys["speaker_wav"]
	*r = SynthesisRequest(decoded)

	return nil
}

// SynthesisResult carries the generated waveform.
type SynthesisResult struct {
	Audio       []byte
	Filename    string
	ContentType string
	Info        audio.Info
}

// HealthStatus is the static health report.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Device string `json:"device"`
}

// Capabilities lists the operations and request parameters the gateway accepts.
type Capabilities struct {
	Endpoints map[string]string `json:"endpoints"`
	TTSParams map[string]string `json:"tts_params"`
}

// UsageInfo answers a GET on the synthesis endpoint.
type UsageInfo struct {
	Message string `json:"message"`
	Usage   string `json:"usage"`
}

// Gateway is safe for concurrent use. Engine calls are not serialized here;
// wrap the engine with tts.Serialized for that.
type Gateway struct {
	engine  core.SynthesisEngine
	scratch *scratch.Dir
	voices  *VoiceRegistry
	opts    Options
	log     *logger.Logger
}

// New creates a Gateway.
func New(
	engine core.SynthesisEngine,
	scratchDir *scratch.Dir,
	voices *VoiceRegistry,
	opts Options,
	log *logger.Logger,
) *Gateway {
	return &Gateway{
		engine:  engine,
		scratch: scratchDir,
		voices:  voices,
		opts:    opts,
		log:     log,
	}
}

// Health reports the service status, model and compute device.
func (g *Gateway) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Model:  g.opts.ModelID,
		Device: g.engine.Device(),
	}
}

// Capabilities returns the static capability listing.
func (g *Gateway) Capabilities() Capabilities {
	return Capabilities{
		Endpoints: map[string]string{
			"/health":      "GET - Health check",
			"/docs":        "GET - API documentation",
			"/api/tts":     "POST - Generate speech",
			"/set_speaker": "POST - Set default speaker wav",
		},
		TTSParams: map[string]string{
			"text":        "Text to synthesize (required)",
			"speaker_wav": "Path to speaker WAV file (optional if default is set)",
			"language":    fmt.Sprintf("Language code (default: '%s')", g.opts.DefaultLanguage),
		},
	}
}

// Usage returns the hint served on GET /api/tts.
func (g *Gateway) Usage() UsageInfo {
	return UsageInfo{
		Message: "XTTS v2 server is running",
		Usage:   "POST /api/tts with JSON body containing 'text', 'speaker_wav', and 'language'",
	}
}

// DefaultVoice returns the current default reference voice, if any.
func (g *Gateway) DefaultVoice() (string, bool) {
	return g.voices.Get()
}

// SetDefaultVoice validates that path names an existing file and makes it
// the default voice. On failure the previous default is kept.
func (g *Gateway) SetDefaultVoice(path string) (string, error) {
	if !isRegularFile(path) {
		return "", invalidInput(MsgInvalidSpeaker)
	}

	g.voices.Set(path)
	g.log.Info("Default speaker set to %s", path)

	return fmt.Sprintf(msgFmtSpeakerSet, path), nil
}

// Synthesize converts req.Text to speech in the resolved reference voice.
func (g *Gateway) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	start := time.Now()

	result, err := g.synthesize(ctx, req)

	if g.opts.Recorder != nil {
		outcome := "ok"
		length := time.Duration(0)

		if err != nil {
			outcome = KindOf(err).String()
		} else {
			length = result.Info.Duration
		}

		g.opts.Recorder.ObserveSynthesis(outcome, time.Since(start), length)
	}

	return result, err
}

func (g *Gateway) synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if req.Text == "" {
		return nil, invalidInput(MsgNoText)
	}

	language := req.Language
	if language == "" {
		language = g.opts.DefaultLanguage
	}

	reference, err := g.selectReference(req)
	if err != nil {
		return nil, err
	}

	speakerPath, speakerFile, err := g.resolveReference(reference)
	if err != nil {
		return nil, err
	}

	if speakerFile != nil {
		defer speakerFile.Remove()
	}

	g.log.Info("Generating speech: language=%s, text_length=%d", language, utf8.RuneCountInString(req.Text))

	output, err := g.scratch.Create(outputPattern)
	if err != nil {
		return nil, internal(err)
	}
	defer output.Remove()

	engineCtx := ctx

	if g.opts.EngineTimeout > 0 {
		var cancel context.CancelFunc

		engineCtx, cancel = context.WithTimeout(ctx, g.opts.EngineTimeout)
		defer cancel()
	}

	err = g.engine.Synthesize(engineCtx, core.EngineRequest{
		Text:           req.Text,
		SpeakerPath:    speakerPath,
		Language:       language,
		OutputPath:     output.Path(),
		SplitSentences: true,
	})
	if err != nil {
		g.log.Error("Speech generation failed: %v", err)

		return nil, internal(err)
	}

	data, err := os.ReadFile(output.Path())
	if err != nil {
		g.log.Error("Failed to read generated audio: %v", err)

		return nil, internal(fmt.Errorf("failed to read generated audio: %w", err))
	}

	if len(data) == 0 {
		g.log.Error("Engine produced an empty waveform")

		return nil, internal(audio.ErrEmptyAudio)
	}

	info, inspectErr := audio.Inspect(data)
	if inspectErr != nil {
		g.log.Warn("Generated audio has an unreadable WAV header: %v", inspectErr)
	} else {
		g.log.Info("Generated %d bytes of audio (%s)", len(data), info)
	}

	return &SynthesisResult{
		Audio:       data,
		Filename:    OutputFilename,
		ContentType: audio.ContentTypeWAV,
		Info:        info,
	}, nil
}

func (g *Gateway) selectReference(req SynthesisRequest) (string, error) {
	if req.SpeakerWAV != nil || req.speakerGiven {
		if req.SpeakerWAV == nil || *req.SpeakerWAV == "" {
			return "", invalidInput(MsgNoSpeaker)
		}

		return *req.SpeakerWAV, nil
	}

	fallback, ok := g.voices.Get()
	if !ok {
		return "", invalidInput(MsgNoSpeaker)
	}

	return fallback, nil
}

// resolveReference returns a local path for reference. Inline base64 audio
// is written to a temp file which the caller must remove.
func (g *Gateway) resolveReference(reference string) (string, *scratch.File, error) {
	if isRegularFile(reference) {
		return reference, nil, nil
	}

	data, ok := decodeBase64(reference)
	if !ok || len(data) == 0 {
		return "", nil, invalidInput(fmt.Sprintf(msgFmtSpeakerNotSet, abbreviate(reference)))
	}

	detected := mimetype.Detect(data)
	if !isMediaSample(detected) {
		return "", nil, invalidInput(fmt.Sprintf(msgFmtSpeakerNotSet, abbreviate(reference)))
	}

	ext := detected.Extension()
	if ext == "" {
		ext = fallbackSpeakerExt
	}

	file, err := g.scratch.Write(speakerPattern+ext, data)
	if err != nil {
		return "", nil, internal(err)
	}

	return file.Path(), file, nil
}

// isMediaSample accepts audio and the audio-capable containers browsers and
// editors export voice clips in.
func isMediaSample(detected *mimetype.MIME) bool {
	for mime := detected; mime != nil; mime = mime.Parent() {
		if strings.HasPrefix(mime.String(), "audio/") {
			return true
		}

		for _, container := range mediaContainers {
			if mime.Is(container) {
				return true
			}
		}
	}

	return false
}

func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)

	for _, encoding := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		data, err := encoding.DecodeString(s)
		if err == nil {
			return data, true
		}
	}

	return nil, false
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// abbreviate keeps inline payloads out of error messages. It cuts on a rune
// boundary.
func abbreviate(reference string) string {
	if len(reference) <= maxReferenceInError {
		return reference
	}

	cut := maxReferenceInError
	for cut > 0 && !utf8.RuneStart(reference[cut]) {
		cut--
	}

	return reference[:cut] + "..."
}
