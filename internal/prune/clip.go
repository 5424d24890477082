// Package prune shortens long history entries before they are replayed to
// the model.
package prune

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMarker    = "[truncated]"
	DefaultMaxBytes  = 4 * 1024
	DefaultHeadShare = 0.75
)

// Config bounds one entry. HeadShare is the fraction of MaxBytes kept from
// the start of the text; the remainder comes from its end.
type Config struct {
	MaxBytes  int
	HeadShare float64
	Marker    string
}

func (c Config) normalize() Config {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.HeadShare <= 0 || c.HeadShare > 1 {
		c.HeadShare = DefaultHeadShare
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	return c
}

// Exceeds reports whether s is longer than maxBytes.
func Exceeds(s string, maxBytes int) bool {
	return len(s) > maxBytes
}

// Clip returns s unchanged when it fits, otherwise its head and tail joined
// by a marker that records how much was dropped. Cuts fall on rune
// boundaries.
func Clip(s string, cfg Config) string {
	cfg = cfg.normalize()
	if !Exceeds(s, cfg.MaxBytes) {
		return s
	}
	headBytes := int(float64(cfg.MaxBytes) * cfg.HeadShare)
	tailBytes := cfg.MaxBytes - headBytes
	head := safeUTF8Prefix(s, headBytes)
	tail := safeUTF8Suffix(s, tailBytes)
	dropped := len(s) - len(head) - len(tail)
	marker := fmt.Sprintf("\n%s %d bytes omitted\n", cfg.Marker, dropped)
	return strings.TrimRight(head, " \n") + marker + strings.TrimLeft(tail, " \n")
}

func safeUTF8Prefix(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func safeUTF8Suffix(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
