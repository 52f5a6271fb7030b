// Command xtts-client checks or drives a running xtts-server.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/gateway"
	"github.com/champierre/saym/internal/tts/audio"
)

// Flag names.
const (
	flagURL      = "url"
	flagText     = "text"
	flagSpeaker  = "speaker"
	flagInline   = "inline"
	flagLanguage = "language"
	flagOutput   = "output"
	flagHealth   = "health"
	flagTimeout  = "timeout"
)

// Flag descriptions.
const (
	flagURLDesc      = "Base URL of the xtts-server"
	flagTextDesc     = "Text to convert to speech"
	flagSpeakerDesc  = "Reference voice path (server-side path, or local file with --inline)"
	flagInlineDesc   = "Read --speaker locally and send it base64-encoded"
	flagLanguageDesc = "Language code (server default when empty)"
	flagOutputDesc   = "Output file path (.wav)"
	flagHealthDesc   = "Check server health and exit"
	flagTimeoutDesc  = "Request timeout (0 waits indefinitely)"
)

// Messages.
const (
	errTextRequired      = "--text is required unless --health is given"
	errInlineNeedsPath   = "--inline requires --speaker"
	msgFmtServiceHealthy = "Server is healthy (model: %s, device: %s)\n"
	msgFmtGenerated      = "Generated: %s\n"
	logFmtGenerated      = "Generated %s (%d bytes)"
	logFmtAudioInfo      = "Audio format: %s"
)

const (
	defaultURL        = "http://localhost:8020"
	defaultOutputFile = gateway.OutputFilename
	logFileName       = "xtts-client.log"
	filePermissions   = 0o600
)

// Flag validation errors.
var (
	ErrTextRequired    = errors.New(errTextRequired)
	ErrInlineNeedsPath = errors.New(errInlineNeedsPath)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url      string
	text     string
	speaker  string
	inline   bool
	language string
	output   string
	health   bool
	timeout  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = log.Close()
	}()

	client := NewClient(flags.url, flags.timeout)

	if flags.health {
		return handleHealthCheck(ctx, client, log, stdout)
	}

	return handleSynthesis(ctx, client, log, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("xtts-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.url, flagURL, defaultURL, flagURLDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.speaker, flagSpeaker, "", flagSpeakerDesc)
	flagSet.BoolVar(&flags.inline, flagInline, false, flagInlineDesc)
	flagSet.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, 0, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	err = validateFlags(flags)
	if err != nil {
		return appFlags{}, err
	}

	return flags, nil
}

func validateFlags(flags appFlags) error {
	if flags.health {
		return nil
	}

	if flags.text == "" {
		return ErrTextRequired
	}

	if flags.inline && flags.speaker == "" {
		return ErrInlineNeedsPath
	}

	return nil
}

// handleHealthCheck performs a server health check and prints the result.
func handleHealthCheck(ctx context.Context, client *Client, log *logger.Logger, stdout io.Writer) error {
	health, err := client.Health(ctx)
	if err != nil {
		log.Error("Health check failed: %v", err)

		return err
	}

	fmt.Fprintf(stdout, msgFmtServiceHealthy, health.Model, health.Device)

	return nil
}

// handleSynthesis converts the text and writes the WAV file.
func handleSynthesis(
	ctx context.Context,
	client *Client,
	log *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	req := gateway.SynthesisRequest{
		Text:       flags.text,
		SpeakerWAV: nil,
		Language:   flags.language,
	}

	if flags.speaker != "" {
		speaker := flags.speaker

		if flags.inline {
			data, err := os.ReadFile(flags.speaker)
			if err != nil {
				return fmt.Errorf("failed to read speaker sample: %w", err)
			}

			speaker = base64.StdEncoding.EncodeToString(data)
		}

		req.SpeakerWAV = &speaker
	}

	audioData, err := client.Synthesize(ctx, req)
	if err != nil {
		log.Error("Synthesis failed: %v", err)

		return err
	}

	err = os.WriteFile(flags.output, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	log.Info(logFmtGenerated, flags.output, len(audioData))

	info, inspectErr := audio.Inspect(audioData)
	if inspectErr == nil {
		log.Info(logFmtAudioInfo, info)
	}

	fmt.Fprintf(stdout, msgFmtGenerated, flags.output)

	return nil
}
