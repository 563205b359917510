package session

import (
	"sort"
	"sync"
)

// Presence tracks which identities currently hold a live connection. The
// connect-time snapshot replaces local state wholesale; deltas adjust single
// ids. Staleness is the server's problem, not ours.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func newPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

// snapshot is the authoritative reset; never merged against stale state.
func (p *Presence) snapshot(ids []string) {
	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}

	p.mu.Lock()
	p.online = fresh
	p.mu.Unlock()
}

func (p *Presence) setOnline(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	p.online[id] = struct{}{}
	p.mu.Unlock()
}

func (p *Presence) setOffline(id string) {
	p.mu.Lock()
	delete(p.online, id)
	p.mu.Unlock()
}

func (p *Presence) IsOnline(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[id]
	return ok
}

// Online returns the online ids, sorted for stable rendering.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
