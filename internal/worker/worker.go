// Package worker exposes the synthesize operation to the NATS pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/core"
	"github.com/champierre/saym/internal/gateway"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one job when Options.JobTimeout is zero.
const DefaultJobTimeout = 10 * time.Minute

// Job outcomes reported to the Recorder.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidEvent = "invalid_event"
	OutcomeDownload     = "download_failed"
	OutcomeSynthesis    = "synthesis_failed"
	OutcomeUpload       = "upload_failed"
	OutcomeReply        = "reply_failed"
)

var (
	// ErrTextKeyEmpty indicates that the event does not reference any text.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrNoReplyTarget indicates that a job has neither a reply inbox nor a
	// configured publish subject.
	ErrNoReplyTarget = errors.New("message has no reply subject and no audio subject is configured")
)

// Synthesizer converts a request into a waveform.
type Synthesizer interface {
	Synthesize(ctx context.Context, req gateway.SynthesisRequest) (*gateway.SynthesisResult, error)
}

// Recorder receives the outcome of every job.
type Recorder interface {
	ObserveWorkerJob(outcome string)
}

// Options configures a NatsWorker.
type Options struct {
	// AudioSubject receives AudioChunkCreatedEvents for messages that carry no
	// reply inbox. Empty disables publishing.
	AudioSubject string
	JobTimeout   time.Duration
	Recorder     Recorder
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	synthesizer    Synthesizer
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	synthesizer Synthesizer,
	opts Options,
	log *logger.Logger,
) *NatsWorker {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		synthesizer:    synthesizer,
		opts:           opts,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.opts.JobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse synthesis event: %v", err)
		w.record(OutcomeInvalidEvent)

		return
	}

	audioKey, outcome, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, err)
		w.record(outcome)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
		w.record(OutcomeReply)

		return
	}

	w.log.Info("Workflow %s page %d/%d synthesized to %s",
		event.Header.WorkflowID, event.PageNumber, event.TotalPages, audioKey)
	w.record(OutcomeOK)
}

// processJob downloads the text, synthesizes it and uploads the waveform.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, string, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", OutcomeDownload, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	req := gateway.SynthesisRequest{
		Text:       strings.TrimSpace(string(textData)),
		SpeakerWAV: nil,
		Language:   "",
	}

	if event.Voice != "" {
		voice := event.Voice
		req.SpeakerWAV = &voice
	}

	result, err := w.synthesizer.Synthesize(ctx, req)
	if err != nil {
		return "", OutcomeSynthesis, fmt.Errorf("failed to synthesize text for key '%s': %w", event.TextKey, err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.audioStore.Upload(ctx, audioKey, result.Audio)
	if err != nil {
		return "", OutcomeUpload, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, OutcomeOK, nil
}

// publishReplyEvent answers the request inbox, or publishes to the audio
// subject when the job was fire-and-forget.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(replyData)
		if err != nil {
			return fmt.Errorf("failed to respond with reply event: %w", err)
		}

		return nil
	}

	if w.opts.AudioSubject == "" {
		return ErrNoReplyTarget
	}

	err = w.natsConnection.Publish(w.opts.AudioSubject, replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event to %s: %w", w.opts.AudioSubject, err)
	}

	return nil
}

func (w *NatsWorker) record(outcome string) {
	if w.opts.Recorder != nil {
		w.opts.Recorder.ObserveWorkerJob(outcome)
	}
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
