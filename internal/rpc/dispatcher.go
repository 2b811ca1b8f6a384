// Package rpc validates, authorizes, executes and records function calls.
package rpc

import (
	"context"
	"regexp"
	"time"

	"github.com/NeveIsa/LEAP2/internal/policy"
	"github.com/NeveIsa/LEAP2/internal/prometrics"
	"github.com/NeveIsa/LEAP2/internal/registry"
	"github.com/NeveIsa/LEAP2/internal/storage"
	"github.com/NeveIsa/LEAP2/pkg/apperr"
	"github.com/NeveIsa/LEAP2/pkg/logger"
)

var studentIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,255}$`)

// ValidStudentID reports whether id satisfies the student id format shared
// by calls and registration.
func ValidStudentID(id string) bool {
	return studentIDRe.MatchString(id)
}

// Request is one inbound call.
type Request struct {
	StudentID string `json:"student_id"`
	FuncName  string `json:"func_name"`
	Args      []any  `json:"args"`
	Trial     string `json:"trial"`
}

// Dispatcher executes calls for one experiment. It holds no lock while a
// function body runs, so a slow function never serializes unrelated calls.
type Dispatcher struct {
	experiment          string
	requireRegistration bool
	registry            *registry.Registry
	store               storage.Store
	now                 func() time.Time
}

// New creates a dispatcher over the experiment's registry and store.
func New(experiment string, requireRegistration bool, reg *registry.Registry, store storage.Store) *Dispatcher {
	return &Dispatcher{
		experiment:          experiment,
		requireRegistration: requireRegistration,
		registry:            reg,
		store:               store,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch runs one call end to end: validate, lookup, authorize, invoke,
// log. Failures inside the invoked function are captured here and returned
// as invocation errors, never propagated as faults; validation and policy
// rejections return before any log entry is written, since no function
// identity and flags were resolved for the former and the latter is a
// policy rejection rather than an execution.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	if req.FuncName == "" {
		return nil, apperr.Validation("func_name is required")
	}
	if !studentIDRe.MatchString(req.StudentID) {
		return nil, apperr.Validation("Invalid student_id: '%s'", req.StudentID)
	}
	if req.Args == nil {
		req.Args = []any{}
	}

	// One snapshot read; a reload landing mid-call does not affect this
	// dispatch.
	desc, err := d.registry.Lookup(req.FuncName)
	if err != nil {
		return nil, err
	}

	if err := policy.Authorize(ctx, d.store, d.requireRegistration, req.StudentID, desc); err != nil {
		return nil, err
	}

	start := d.now()
	result, invokeErr := desc.Invoke(ctx, req.Args)
	prometrics.ObserveCall(d.experiment, req.FuncName, invokeErr == nil, time.Since(start))

	var callErr *apperr.Error
	if invokeErr != nil {
		callErr = apperr.Invocation(invokeErr.Error())
		logger.Warn("rpc call raised",
			"experiment", d.experiment, "func", req.FuncName, "error", invokeErr.Error())
	}

	if !desc.NoLog {
		entry := &storage.Entry{
			TS:         start,
			StudentID:  req.StudentID,
			Experiment: d.experiment,
			FuncName:   req.FuncName,
			Args:       req.Args,
		}
		if req.Trial != "" {
			trial := req.Trial
			entry.Trial = &trial
		}
		if callErr != nil {
			msg := callErr.Message
			entry.Error = &msg
		} else {
			entry.Result = result
		}
		if err := d.store.Append(ctx, entry); err != nil {
			logger.Error("failed to log rpc call",
				"experiment", d.experiment, "func", req.FuncName, "error", err)
			return nil, err
		}
		prometrics.CountLogAppend(d.experiment)
	}

	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}
