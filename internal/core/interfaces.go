// Package core defines the interfaces shared between the gateway, its engines
// and its transports.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// EngineRequest is a single call into the synthesis engine. The engine writes
// a waveform to OutputPath; the caller owns every path in the request.
type EngineRequest struct {
	Text           string
	SpeakerPath    string
	Language       string
	OutputPath     string
	SplitSentences bool
}

// SynthesisEngine converts text into speech conditioned on a reference voice.
type SynthesisEngine interface {
	Synthesize(ctx context.Context, req EngineRequest) error
	// Device reports the compute device the engine runs on.
	Device() string
}
