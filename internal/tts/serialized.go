package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/champierre/saym/internal/core"
	"golang.org/x/sync/semaphore"
)

// Serialized allows one engine call in flight at a time. Model handles are
// single-instance, so concurrent requests queue here until the previous
// synthesis finishes or their context ends.
type Serialized struct {
	engine core.SynthesisEngine
	sem    *semaphore.Weighted
	onWait func(time.Duration)
}

// NewSerialized wraps engine. onWait, when non-nil, receives the time each
// call spent queued.
func NewSerialized(engine core.SynthesisEngine, onWait func(time.Duration)) *Serialized {
	return &Serialized{
		engine: engine,
		sem:    semaphore.NewWeighted(1),
		onWait: onWait,
	}
}

// Device delegates to the wrapped engine.
func (s *Serialized) Device() string {
	return s.engine.Device()
}

// Synthesize waits for the engine to be free, then delegates.
func (s *Serialized) Synthesize(ctx context.Context, req core.EngineRequest) error {
	start := time.Now()

	err := s.sem.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("gave up waiting for the engine: %w", err)
	}
	defer s.sem.Release(1)

	if s.onWait != nil {
		s.onWait(time.Since(start))
	}

	return s.engine.Synthesize(ctx, req)
}
