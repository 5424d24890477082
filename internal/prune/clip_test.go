package prune

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClip_ShortTextUnchanged(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hola", Clip("hola", Config{}))
	assert.Equal(t, "", Clip("", Config{MaxBytes: 1}))
}

func TestClip_KeepsHeadAndTail(t *testing.T) {
	t.Parallel()

	text := "INICIO " + strings.Repeat("x", 500) + " FINAL"
	got := Clip(text, Config{MaxBytes: 100, HeadShare: 0.5})

	assert.True(t, strings.HasPrefix(got, "INICIO"))
	assert.True(t, strings.HasSuffix(got, "FINAL"))
	assert.Contains(t, got, DefaultMarker)
	assert.Contains(t, got, "413 bytes omitted")
	assert.Less(t, len(got), len(text))
}

func TestClip_RuneBoundaries(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("ñ", 300)
	got := Clip(text, Config{MaxBytes: 51, Marker: "[...]"})

	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "[...]")
}

func TestConfig_Normalize(t *testing.T) {
	t.Parallel()

	cfg := Config{HeadShare: 2}.normalize()
	assert.Equal(t, DefaultMaxBytes, cfg.MaxBytes)
	assert.Equal(t, DefaultHeadShare, cfg.HeadShare)
	assert.Equal(t, DefaultMarker, cfg.Marker)
}
