package vrp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSolution is returned by a SearchEngine that found no feasible
// assignment within its budget. It is not a proof of infeasibility.
var ErrNoSolution = errors.New("no solution within time budget")

// Issue is a single validation finding.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every fatal finding of a validation pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether an issue with the given code is present.
func (e *ValidationError) Has(code string) bool {
	for _, is := range e.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// ObjectiveConfigError is surfaced only once the distance fallback has also
// failed.
type ObjectiveConfigError struct {
	Objective Objective
	Err       error
}

func (e *ObjectiveConfigError) Error() string {
	return fmt.Sprintf("configure objective %s: %v", e.Objective, e.Err)
}

func (e *ObjectiveConfigError) Unwrap() error { return e.Err }

// InfeasibleError wraps the diagnosis of a search that found nothing.
type InfeasibleError struct {
	Diagnosis Diagnosis
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no solution found (%s): %s", e.Diagnosis.Type, e.Diagnosis.Message)
}

func (e *InfeasibleError) Unwrap() error { return ErrNoSolution }

// ExtractionError reports engine output that does not fit the model.
type ExtractionError struct {
	Vehicle int
	Reason  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract vehicle %d: %s", e.Vehicle, e.Reason)
}
