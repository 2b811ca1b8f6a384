package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/NeveIsa/LEAP2/internal/registry"
	"github.com/NeveIsa/LEAP2/internal/rpc"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
	"github.com/NeveIsa/LEAP2/pkg/logger"
)

// StoreOpener creates the persistence backend for one experiment.
type StoreOpener func(name, path string) (storage.Store, error)

// SQLiteOpener stores each experiment in its own database file under the
// experiment directory.
func SQLiteOpener(name, path string) (storage.Store, error) {
	return storage.NewSQLiteStore(name, DBPath(path))
}

// Manager holds all loaded experiments.
type Manager struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
}

// Discover scans the experiments directory and loads every valid
// experiment. A failing experiment is skipped with a warning; an empty or
// missing directory yields an empty manager.
func Discover(experimentsDir string, open StoreOpener) (*Manager, error) {
	m := &Manager{experiments: make(map[string]*Experiment)}

	entries, err := os.ReadDir(experimentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("experiments directory not found", "path", experimentsDir)
			return m, nil
		}
		return nil, fmt.Errorf("failed to read experiments directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !ValidName(name) {
			logger.Warn("skipping invalid experiment name", "name", name)
			continue
		}
		exp, err := Load(name, filepath.Join(experimentsDir, name), open)
		if err != nil {
			logger.Error("failed to load experiment", "name", name, "error", err)
			continue
		}
		m.experiments[name] = exp
		logger.Info("discovered experiment", "name", name,
			"functions", exp.Registry.Snapshot().Count())
	}
	return m, nil
}

// Load builds one experiment: frontmatter, function registry (bound to the
// registered function set the frontmatter names, defaulting to the
// experiment name), store, dispatcher.
func Load(name, path string, open StoreOpener) (*Experiment, error) {
	fm, _ := ParseFrontmatter(filepath.Join(path, "README.md"))

	setName := fm.Functions
	if setName == "" {
		setName = name
	}
	set, ok := registry.LookupSet(setName)
	if !ok {
		// No registered function set: the experiment still loads (its log
		// history stays queryable) with an empty callable surface.
		logger.Warn("no function set registered", "experiment", name, "set", setName)
		set = registry.NewSet()
	}

	reg := registry.New(set)
	if _, err := reg.Reload(); err != nil {
		return nil, err
	}

	store, err := open(name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	exp := &Experiment{
		Name:        name,
		Path:        path,
		Frontmatter: fm,
		DisplayName: fm.DisplayName,
		Registry:    reg,
		Store:       store,
	}
	if exp.DisplayName == "" {
		exp.DisplayName = name
	}
	exp.Dispatcher = rpc.New(name, exp.RequireRegistration(), reg, store)
	return exp, nil
}

// Get returns the named experiment.
func (m *Manager) Get(name string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.experiments[name]
	if !ok {
		return nil, apperr.NotFound("Experiment '%s' not found", name)
	}
	return exp, nil
}

// List returns all experiments ordered by name.
func (m *Manager) List() []*Experiment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Experiment, 0, len(m.experiments))
	for _, exp := range m.experiments {
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every experiment's store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exp := range m.experiments {
		if err := exp.Store.Close(); err != nil {
			logger.Warn("failed to close store", "experiment", exp.Name, "error", err)
		}
	}
}
