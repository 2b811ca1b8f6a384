// Package policy decides whether a student may invoke a function.
package policy

import (
	"context"

	"github.com/NeveIsa/LEAP2/internal/registry"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// Authorize applies the registration gate for one call. Decision order:
// a noregcheck function is always allowed; an experiment that does not
// require registration allows everyone; otherwise the student must be in
// the experiment's current student set.
//
// The check runs on every call against live store state and has no side
// effects.
func Authorize(ctx context.Context, store storage.Store, requireRegistration bool, studentID string, d *registry.Descriptor) error {
	if d.NoRegCheck {
		return nil
	}
	if !requireRegistration {
		return nil
	}
	registered, err := store.IsRegistered(ctx, studentID)
	if err != nil {
		return err
	}
	if !registered {
		return apperr.NotRegistered("Student '%s' is not registered", studentID)
	}
	return nil
}
