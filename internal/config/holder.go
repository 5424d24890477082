package config

import (
	"sync/atomic"
	"time"
)

// Holder serves the current configuration and swaps it on Reload. Values that
// must be read live (such as the media URL TTL) go through Holder instead of
// being copied at startup.
type Holder struct {
	path    string
	current atomic.Pointer[Config]
}

// NewHolder wraps an already loaded configuration.
func NewHolder(path string, cfg Config) *Holder {
	h := &Holder{path: path}
	h.current.Store(&cfg)
	return h
}

// Get returns the current configuration snapshot.
func (h *Holder) Get() Config {
	return *h.current.Load()
}

// Reload re-reads the configuration file. The previous snapshot stays active
// when loading fails.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		return err
	}
	h.current.Store(&cfg)
	return nil
}

// MediaURLTTL returns the credential lifetime from the current snapshot.
func (h *Holder) MediaURLTTL() time.Duration {
	return h.Get().Media.URLTTL()
}
