package reconcile

import (
	"sort"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// conflictShape ignores detection metadata and raw records when comparing conflicts.
var conflictShape = []cmp.Option{
	cmpopts.IgnoreFields(Conflict{}, "DetectedAt", "Directory", "Mirror", "Reason"),
	cmpopts.EquateEmpty(),
}

// pendingRegistry holds conflicts awaiting a manual decision, keyed by record key.
type pendingRegistry struct {
	mu    sync.RWMutex
	items map[string]Conflict
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{items: make(map[string]Conflict)}
}

// add stores c and reports whether it is new or differs from the stored entry.
// An unchanged conflict keeps its original detection time.
func (p *pendingRegistry) add(c Conflict) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.items[c.Key]; ok && cmp.Equal(existing, c, conflictShape...) {
		return false
	}
	p.items[c.Key] = c
	return true
}

func (p *pendingRegistry) get(key string) (Conflict, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.items[key]
	return c, ok
}

func (p *pendingRegistry) remove(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[key]; !ok {
		return false
	}
	delete(p.items, key)
	return true
}

// list returns the pending conflicts sorted by key.
func (p *pendingRegistry) list() []Conflict {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Conflict, 0, len(p.items))
	for _, c := range p.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (p *pendingRegistry) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// restore replaces the registry contents with persisted conflicts.
func (p *pendingRegistry) restore(conflicts []Conflict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]Conflict, len(conflicts))
	for _, c := range conflicts {
		p.items[c.Key] = c
	}
}
