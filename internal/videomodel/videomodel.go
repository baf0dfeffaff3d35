// Package videomodel defines the uniform contract every external AI video
// generator implements, plus the error taxonomy the workers use to decide
// retry versus terminal failure.
package videomodel

import (
	"context"
	"errors"
	"fmt"
)

// Status is the generation state reported by an external service.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Result is the outcome of a finished generation job. For COMPLETED jobs
// VideoURL points at a downloadable asset (possibly file:// for local
// generators); for FAILED jobs ErrorMessage and ErrorCode are set.
type Result struct {
	Status       Status
	VideoURL     string
	ErrorMessage string
	ErrorCode    ErrorCode
	Metadata     map[string]any
}

// Adapter drives one external AI video generator. Implementations must be
// cheap to construct and hold no hidden global state.
type Adapter interface {
	// Initiate validates params, submits the job, and returns the external
	// job id. Validation failures are terminal.
	Initiate(ctx context.Context, prompt string, params map[string]any) (string, error)
	// GetStatus is a cheap probe. Transient errors map to StatusProcessing
	// so the poll loop tolerates flakiness.
	GetStatus(ctx context.Context, externalJobID string) (Status, error)
	// GetResult is called once GetStatus reports a terminal state.
	GetResult(ctx context.Context, externalJobID string) (Result, error)
	// Cancel is best-effort and never required for correctness.
	Cancel(ctx context.Context, externalJobID string) bool
	// Name identifies the adapter in logs and metrics.
	Name() string
}

// ErrorCode classifies adapter failures.
type ErrorCode string

const (
	// CodeConnection: the service cannot be reached. Retryable.
	CodeConnection ErrorCode = "CONNECTION"
	// CodeTimeout: the service did not respond within bound. Retryable.
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeWorkflow: malformed request or missing nodes. Terminal.
	CodeWorkflow ErrorCode = "WORKFLOW"
	// CodeParameters: invalid inputs. Terminal.
	CodeParameters ErrorCode = "PARAMETERS"
	// CodeGeneration: the service errored while generating. Retryable.
	CodeGeneration ErrorCode = "GENERATION"
	// CodeOutput: the service reported success but produced no usable
	// artifact. Terminal.
	CodeOutput ErrorCode = "OUTPUT"
)

// Retryable reports whether the code denotes a transient condition.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeConnection, CodeTimeout, CodeGeneration:
		return true
	default:
		return false
	}
}

// Error is a classified adapter failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified adapter error.
func NewError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// CodeOf extracts the classification from err. Unclassified errors map to
// GENERATION so the caller treats them as retryable service faults.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeGeneration
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool { return CodeOf(err).Retryable() }

// MessageOf returns the human-readable message for err.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// Hint holds a user-facing explanation and a troubleshooting suggestion for
// one error code.
type Hint struct {
	Message string
	Advice  string
}

// Hints maps each error code to a user-facing message plus troubleshooting
// hint, surfaced by the API alongside the stored error_code.
var Hints = map[ErrorCode]Hint{
	CodeConnection: {
		Message: "The video generation service could not be reached.",
		Advice:  "Check that the service is running and reachable, then retry the segment.",
	},
	CodeTimeout: {
		Message: "The video generation service did not respond in time.",
		Advice:  "The service may be overloaded; retry the segment later.",
	},
	CodeWorkflow: {
		Message: "The generation request was malformed or referenced missing components.",
		Advice:  "Review the segment's model selection and workflow configuration.",
	},
	CodeParameters: {
		Message: "The segment's model parameters are invalid.",
		Advice:  "Fix the parameters (duration, aspect ratio, resolution) and retry.",
	},
	CodeGeneration: {
		Message: "The service failed while generating the video.",
		Advice:  "Retry the segment; persistent failures usually indicate a prompt or model issue.",
	},
	CodeOutput: {
		Message: "Generation finished but produced no usable video.",
		Advice:  "Adjust the prompt or parameters; the model returned an empty result.",
	},
}
