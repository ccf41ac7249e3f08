package config

import "sync/atomic"

type prefsSnapshot struct {
	enabled   bool
	crossChat bool
	model     string
}

// Preferences is a concurrency-safe view of the user-facing switches the
// retrieval engine reads on every call.
type Preferences struct {
	v atomic.Pointer[prefsSnapshot]
}

// NewPreferences returns preferences initialized from cfg.
func NewPreferences(cfg *Config) *Preferences {
	p := &Preferences{}
	p.Update(cfg)
	return p
}

// Update replaces all values from cfg.
func (p *Preferences) Update(cfg *Config) {
	p.v.Store(&prefsSnapshot{
		enabled:   cfg.Retrieval.Enabled,
		crossChat: cfg.Retrieval.CrossChatMemory,
		model:     cfg.Embedding.Model,
	})
}

// SetCrossChatMemory flips the cross-conversation memory switch.
func (p *Preferences) SetCrossChatMemory(on bool) {
	for {
		old := p.v.Load()
		next := *old
		next.crossChat = on
		if p.v.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (p *Preferences) RetrievalEnabled() bool { return p.v.Load().enabled }
func (p *Preferences) CrossChatMemory() bool  { return p.v.Load().crossChat }
func (p *Preferences) EmbeddingModel() string { return p.v.Load().model }
