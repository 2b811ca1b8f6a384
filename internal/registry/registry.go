package registry

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// Snapshot is an immutable view of the discovered functions. It is built
// wholesale by Reload and never mutated afterwards.
type Snapshot struct {
	funcs map[string]*Descriptor
}

// Lookup returns the descriptor for name, or a not-found error.
func (s *Snapshot) Lookup(name string) (*Descriptor, error) {
	if d, ok := s.funcs[name]; ok {
		return d, nil
	}
	return nil, apperr.NotFound("Unknown function: '%s'", name)
}

// Functions returns the discovery map (name -> info).
func (s *Snapshot) Functions() map[string]Info {
	out := make(map[string]Info, len(s.funcs))
	for name, d := range s.funcs {
		out[name] = d.Info()
	}
	return out
}

// Count returns the number of discoverable functions.
func (s *Snapshot) Count() int {
	return len(s.funcs)
}

var emptySnapshot = &Snapshot{funcs: map[string]*Descriptor{}}

// Registry binds an experiment to a function set and publishes atomic
// snapshots of it. Readers never observe a partially rebuilt function set.
type Registry struct {
	set      *Set
	reloadMu sync.Mutex
	snap     atomic.Pointer[Snapshot]
}

// New creates a registry over the given set. The registry starts empty;
// call Reload to discover functions.
func New(set *Set) *Registry {
	r := &Registry{set: set}
	r.snap.Store(emptySnapshot)
	return r
}

// Reload rebuilds the whole snapshot from the set's current contents and
// atomically replaces the visible one. It returns the number of discovered
// functions. On a discovery error the previous snapshot stays visible.
func (r *Registry) Reload() (int, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	funcs := make(map[string]*Descriptor)
	for _, e := range r.set.snapshotEntries() {
		if strings.HasPrefix(e.name, HiddenPrefix) {
			continue
		}
		d, err := describe(e)
		if err != nil {
			return 0, err
		}
		funcs[e.name] = d
	}

	r.snap.Store(&Snapshot{funcs: funcs})
	return len(funcs), nil
}

// Snapshot returns the currently visible snapshot. Dispatches capture one
// snapshot and run to completion against it even if a reload lands mid-call.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Lookup resolves name in the currently visible snapshot.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	return r.Snapshot().Lookup(name)
}
