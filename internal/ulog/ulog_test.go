package ulog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel("not-a-level"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
}

func TestComponentTagsLogger(t *testing.T) {
	base := New("info", "json")
	child := Component(base, "capture")
	assert.NotNil(t, child)
}
