package gateway_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/champierre/saym/internal/gateway"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	invalid := &gateway.Error{Kind: gateway.KindInvalidInput, Message: "bad"}
	wrapped := fmt.Errorf("handler: %w", invalid)

	assert.Equal(t, gateway.KindInvalidInput, gateway.KindOf(wrapped))
	assert.Equal(t, gateway.KindInternal, gateway.KindOf(errors.New("plain")))
	assert.True(t, gateway.IsInvalidInput(wrapped))
	assert.False(t, gateway.IsInvalidInput(nil))
	assert.Equal(t, "invalid_input", gateway.KindInvalidInput.String())
	assert.Equal(t, "internal", gateway.KindInternal.String())
}

func TestVoiceRegistry(t *testing.T) {
	t.Parallel()

	registry := gateway.NewVoiceRegistry("")

	_, ok := registry.Get()
	assert.False(t, ok)

	registry.Set("/voices/a.wav")
	registry.Set("/voices/b.wav")

	current, ok := registry.Get()
	assert.True(t, ok)
	assert.Equal(t, "/voices/b.wav", current)
}
