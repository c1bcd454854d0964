package check

import "fmt"

// FailureError marks a check that ran to completion and found the target
// unhealthy. Plugins return it to distinguish "target is down" from
// "plugin broke"; the pool maps it to StatusFailure instead of StatusError.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string { return e.Message }

func Failuref(format string, args ...any) *FailureError {
	return &FailureError{Message: fmt.Sprintf(format, args...)}
}

// InvalidDefinitionError rejects a definition at load time. Validation is
// fail-fast: the process must not begin scheduling with a bad definition.
type InvalidDefinitionError struct {
	CheckID string
	Field   string
	Reason  string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid check definition %q: field %q: %s", e.CheckID, e.Field, e.Reason)
}
