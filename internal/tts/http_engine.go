package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/champierre/saym/internal/core"
)

// API endpoints and paths of the remote inference service.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

const (
	filePermissions = 0o600
	// HealthCheckTimeout bounds the startup probe of the remote service.
	HealthCheckTimeout = 10 * time.Second
)

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceError          = "inference service error (%s): %s"
	errFmtServiceNonOKStatus    = "inference service returned non-OK status: %s, body: %s"
)

// ErrReceivedEmptyAudio is returned when the service answers without audio.
var ErrReceivedEmptyAudio = errors.New("received empty audio data")

// SpeechRequest defines the JSON payload sent to the inference service.
// The reference sample travels inline because the service cannot read the
// gateway's temp directory.
type SpeechRequest struct {
	Text           string `json:"text"`
	SpeakerWAV     string `json:"speaker_wav"`
	Language       string `json:"language"`
	SplitSentences bool   `json:"split_sentences"`
}

// ErrorResponse is the structured error body of the inference service.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string `json:"status"`
	Device string `json:"device"`
}

// HTTPEngine implements core.SynthesisEngine against a standalone inference
// service that hosts the model.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
	device     string
}

// NewHTTPEngine creates an engine for the service at baseURL. A zero timeout
// disables the client timeout. device is reported until Probe learns the
// remote device.
func NewHTTPEngine(baseURL string, timeout time.Duration, device string) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		device: device,
	}
}

// Device returns the device last reported by the service.
func (e *HTTPEngine) Device() string {
	return e.device
}

// Synthesize posts the request and writes the returned waveform to
// req.OutputPath.
func (e *HTTPEngine) Synthesize(ctx context.Context, req core.EngineRequest) error {
	err := validateEngineRequest(req)
	if err != nil {
		return err
	}

	speakerData, err := os.ReadFile(req.SpeakerPath)
	if err != nil {
		return fmt.Errorf("failed to read speaker sample: %w", err)
	}

	audioData, err := e.generateSpeech(ctx, SpeechRequest{
		Text:           req.Text,
		SpeakerWAV:     base64.StdEncoding.EncodeToString(speakerData),
		Language:       req.Language,
		SplitSentences: req.SplitSentences,
	})
	if err != nil {
		return err
	}

	err = os.WriteFile(req.OutputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	return nil
}

func (e *HTTPEngine) generateSpeech(ctx context.Context, payload SpeechRequest) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to inference service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeWAV) {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return audioData, nil
}

// Probe checks that the service is up and records the device it reports.
func (e *HTTPEngine) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var health healthResponse

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err == nil && health.Device != "" {
		e.device = health.Device
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil {
		message := errorResp.Error
		if message == "" {
			message = errorResp.Detail
		}

		if message != "" {
			return fmt.Errorf(errFmtServiceError, resp.Status, message)
		}
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
