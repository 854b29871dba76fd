package onboarding

import (
	"errors"
	"fmt"
)

// ValidationError blocks navigation. It never reaches the backend.
type ValidationError struct {
	Step   Step
	Errors ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on step %s", e.Step)
}

// PersistenceError wraps a failed backend call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LoadError reports a failed summary or category fetch. The flow keeps
// working with empty defaults.
type LoadError struct {
	Summary    error
	Categories error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load onboarding data: %v", errors.Join(e.Summary, e.Categories))
}

func (e *LoadError) Unwrap() []error {
	var errs []error
	if e.Summary != nil {
		errs = append(errs, e.Summary)
	}
	if e.Categories != nil {
		errs = append(errs, e.Categories)
	}
	return errs
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
