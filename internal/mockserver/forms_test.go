package mockserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormStore(t *testing.T) {
	s := NewFormStore()
	assert.Equal(t, FormState{}, s.Get("newsletter"))

	done := s.Complete("newsletter", "<p>thanks</p>")
	assert.Equal(t, FormState{Complete: true, Result: "<p>thanks</p>", Version: 1}, done)
	assert.Equal(t, done, s.Get("newsletter"))
	assert.Equal(t, FormState{}, s.Get("other"))

	reopened := s.Reset("newsletter")
	assert.Equal(t, FormState{Version: 2}, reopened)
	assert.Equal(t, reopened, s.Get("newsletter"))
}
