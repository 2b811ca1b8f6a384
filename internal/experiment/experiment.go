// Package experiment discovers and manages tenants: isolated namespaces
// with their own function registry, student set and log partition.
package experiment

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/NeveIsa/LEAP2/internal/registry"
	"github.com/NeveIsa/LEAP2/internal/rpc"
	"github.com/NeveIsa/LEAP2/internal/storage"
)

var validNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidName reports whether name is an acceptable experiment name.
func ValidName(name string) bool {
	return validNameRe.MatchString(name)
}

// Experiment is one loaded tenant.
type Experiment struct {
	Name string
	Path string

	Frontmatter Frontmatter
	DisplayName string

	Registry   *registry.Registry
	Store      storage.Store
	Dispatcher *rpc.Dispatcher
}

// RequireRegistration reports the tenant's registration rule.
func (e *Experiment) RequireRegistration() bool {
	return e.Frontmatter.RequireRegistration != nil && *e.Frontmatter.RequireRegistration
}

// ReadmePath returns the experiment's README location.
func (e *Experiment) ReadmePath() string {
	return filepath.Join(e.Path, "README.md")
}

// UIDir returns the experiment's static UI directory.
func (e *Experiment) UIDir() string {
	return filepath.Join(e.Path, "ui")
}

// DBPath returns the experiment's SQLite database location.
func DBPath(expPath string) string {
	return filepath.Join(expPath, "db", "experiment.db")
}

// Metadata is the wire form of an experiment for listings.
type Metadata struct {
	Name                string `json:"name"`
	DisplayName         string `json:"display_name"`
	Description         string `json:"description"`
	Version             string `json:"version"`
	EntryPoint          string `json:"entry_point"`
	FunctionCount       int    `json:"function_count"`
	RequireRegistration bool   `json:"require_registration"`
	StudentCount        int64  `json:"student_count"`
}

// Metadata builds the listing view. The student count degrades to zero on
// store errors so one broken experiment does not break the listing.
func (e *Experiment) Metadata(ctx context.Context) Metadata {
	count, err := e.Store.CountStudents(ctx)
	if err != nil {
		count = 0
	}
	return Metadata{
		Name:                e.Name,
		DisplayName:         e.DisplayName,
		Description:         e.Frontmatter.Description,
		Version:             e.Frontmatter.Version,
		EntryPoint:          e.Frontmatter.EntryPoint,
		FunctionCount:       e.Registry.Snapshot().Count(),
		RequireRegistration: e.RequireRegistration(),
		StudentCount:        count,
	}
}
