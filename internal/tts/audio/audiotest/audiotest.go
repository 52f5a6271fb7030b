// Package audiotest builds small WAV fixtures for tests.
package audiotest

import (
	"bytes"
	"time"

	"github.com/youpy/go-wav"
)

// XTTSSampleRate is the output rate of XTTS v2.
const XTTSSampleRate = 24000

// Silence returns a mono 16-bit PCM WAV of the given length.
func Silence(sampleRate uint32, length time.Duration) []byte {
	numSamples := uint32(length.Seconds() * float64(sampleRate))

	var buf bytes.Buffer

	writer := wav.NewWriter(&buf, numSamples, 1, sampleRate, 16)

	err := writer.WriteSamples(make([]wav.Sample, numSamples))
	if err != nil {
		panic(err)
	}

	return buf.Bytes()
}
