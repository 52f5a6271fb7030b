package gateway

import "sync"

// VoiceRegistry holds the default reference voice used when a request
// names none. The zero value has no default.
type VoiceRegistry struct {
	mu      sync.RWMutex
	current string
}

// NewVoiceRegistry returns a registry seeded with initial, which may be empty.
func NewVoiceRegistry(initial string) *VoiceRegistry {
	return &VoiceRegistry{current: initial}
}

// Get returns the default voice and whether one is set.
func (r *VoiceRegistry) Get() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.current, r.current != ""
}

// Set replaces the default voice.
func (r *VoiceRegistry) Set(reference string) {
	r.mu.Lock()
	r.current = reference
	r.mu.Unlock()
}
