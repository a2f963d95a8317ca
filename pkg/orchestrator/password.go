package orchestrator

import "sync"

// PasswordCache holds the workspace password in memory for the lifetime
// of the running process only -- never written to disk -- so Start can
// retry restore_from_password after encryption drops locked (e.g. the
// process was woken from sleep with its master key zeroed) without
// reprompting the user every time.
type PasswordCache struct {
	mu       sync.RWMutex
	password string
	set      bool
}

// Set caches password, overwriting any previous value.
func (p *PasswordCache) Set(password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password, p.set = password, true
}

// Get returns the cached password and whether one has been set.
func (p *PasswordCache) Get() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.password, p.set
}

// Clear wipes the cached password, e.g. on logout.
func (p *PasswordCache) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password, p.set = "", false
}
