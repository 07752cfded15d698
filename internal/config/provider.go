package config

import (
	"sync"
)

// Provider holds the current configuration snapshot. Reload replaces the
// snapshot atomically; a reload is never partially applied.
type Provider struct {
	mu         sync.RWMutex
	scriptPath string
	current    *Snapshot
	onReload   func(*Snapshot)
}

// NewProvider creates a provider for the given backup script. The initial
// load happens on the first Reload call.
func NewProvider(scriptPath string) *Provider {
	return &Provider{scriptPath: scriptPath}
}

// OnReload registers a callback invoked with every newly loaded snapshot.
func (p *Provider) OnReload(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

// Reload parses the script and swaps in the new snapshot. On error the
// previous snapshot stays in effect.
func (p *Provider) Reload() error {
	snap, err := Load(p.scriptPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = snap
	fn := p.onReload
	p.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

// Current returns the active snapshot, or nil before the first successful
// reload.
func (p *Provider) Current() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}
