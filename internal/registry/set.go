// Package registry holds the callable function surface of an experiment:
// an explicit registration table of named Go functions plus an immutable,
// atomically swappable snapshot of introspected descriptors.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// HiddenPrefix marks function names that are never discoverable.
const HiddenPrefix = "_"

// Option modifies a function registration.
type Option func(*entry)

// WithDoc attaches a documentation string to the function.
func WithDoc(doc string) Option {
	return func(e *entry) {
		e.doc = doc
	}
}

// NoLog marks the function as exempt from audit logging (high-frequency calls).
func NoLog() Option {
	return func(e *entry) {
		e.nolog = true
	}
}

// NoRegCheck marks the function as callable without student registration.
func NoRegCheck() Option {
	return func(e *entry) {
		e.noregcheck = true
	}
}

type entry struct {
	name       string
	fn         any
	doc        string
	nolog      bool
	noregcheck bool
}

// Set is a mutable collection of registered functions. An experiment binds
// to one Set; Registry.Reload introspects the Set's current contents into a
// new snapshot.
type Set struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewSet creates an empty function set.
func NewSet() *Set {
	return &Set{entries: make(map[string]entry)}
}

// Register adds or replaces a function in the set. fn must be a Go function;
// its signature is introspected at the next Reload, not here.
func (s *Set) Register(name string, fn any, opts ...Option) {
	e := entry{name: name, fn: fn}
	for _, opt := range opts {
		opt(&e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = e
}

// Deregister removes a function from the set.
func (s *Set) Deregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// snapshotEntries returns the current entries in name order.
func (s *Set) snapshotEntries() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

var (
	setsMu sync.RWMutex
	sets   = make(map[string]*Set)
)

// RegisterSet publishes a named function set so experiments can bind to it
// by name from their frontmatter. Typically called from an init function,
// the same way database/sql drivers register themselves.
func RegisterSet(name string, set *Set) {
	setsMu.Lock()
	defer setsMu.Unlock()
	if _, dup := sets[name]; dup {
		panic(fmt.Sprintf("registry: duplicate function set %q", name))
	}
	sets[name] = set
}

// LookupSet returns the named function set, if registered.
func LookupSet(name string) (*Set, bool) {
	setsMu.RLock()
	defer setsMu.RUnlock()
	set, ok := sets[name]
	return set, ok
}
