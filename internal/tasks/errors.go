package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrCycle        = errors.New("task dependency cycle")
)

// GraphError is a problem with the task definitions themselves, detected
// before anything runs.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

// TaskError is an expected, already-reported failure of a task body such as
// "Tests failed". Its message is shown without a stack of causes.
type TaskError struct {
	Message string
	Lint    bool
}

func (e *TaskError) Error() string { return e.Message }

func NewTaskError(format string, args ...any) *TaskError {
	return &TaskError{Message: fmt.Sprintf(format, args...)}
}

// NewLintError marks the failure as a lint failure so callers can pick a
// distinct exit code or notification.
func NewLintError(format string, args ...any) *TaskError {
	return &TaskError{Message: fmt.Sprintf(format, args...), Lint: true}
}

// Failure names the innermost task that failed.
type Failure struct {
	Task string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Task, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// FailedTask returns the name of the task err is attributed to, or "".
func FailedTask(err error) string {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Task
	}
	return ""
}

// IsLintFailure reports whether err was caused by a lint TaskError.
func IsLintFailure(err error) bool {
	var taskErr *TaskError
	return errors.As(err, &taskErr) && taskErr.Lint
}
