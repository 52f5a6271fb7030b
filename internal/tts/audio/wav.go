// Package audio inspects waveforms produced by the synthesis engine.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/youpy/go-wav"
)

// ContentTypeWAV is the MIME type of every gateway response body.
const ContentTypeWAV = "audio/wav"

// wavFormatPCM is the RIFF format tag for linear PCM.
const wavFormatPCM = 1

// ErrEmptyAudio is returned for a zero-length waveform.
var ErrEmptyAudio = errors.New("audio data is empty")

// Info describes a decoded WAV header.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	PCM           bool
	Duration      time.Duration
}

// Inspect parses the RIFF header of data. It does not decode samples.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyAudio
	}

	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read wav format: %w", err)
	}

	duration, err := reader.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read wav duration: %w", err)
	}

	return Info{
		SampleRate:    int(format.SampleRate),
		Channels:      int(format.NumChannels),
		BitsPerSample: int(format.BitsPerSample),
		PCM:           format.AudioFormat == wavFormatPCM,
		Duration:      duration,
	}, nil
}

// String renders the header for log lines.
func (i Info) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d bit, %s", i.SampleRate, i.Channels, i.BitsPerSample, i.Duration)
}
