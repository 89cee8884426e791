package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// FailureKind is the broad category of a failure, it decides retry and abort behavior
type FailureKind string

// failure categories
const (
	KindTransientRemote FailureKind = "transient_remote" // retried with backoff
	KindPermanentRemote FailureKind = "permanent_remote" // item fails, run continues
	KindLocalResource   FailureKind = "local_resource"   // run-fatal
	KindDataIntegrity   FailureKind = "data_integrity"   // logged and skipped
)

// ErrorCode is the specific reason reported by a collaborator
type ErrorCode string

// error codes reported by feed source, acquirer, deriver and summarizer
const (
	CodeTimeout           ErrorCode = "timeout"
	CodeNetwork           ErrorCode = "network"
	CodeNotFound          ErrorCode = "not_found"
	CodeMalformed         ErrorCode = "malformed"
	CodeStorageFull       ErrorCode = "storage_full"
	CodeLocalIO           ErrorCode = "local_io"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeEngineUnavailable ErrorCode = "engine_unavailable"
	CodeBadInput          ErrorCode = "bad_input"
	CodeAuth              ErrorCode = "auth"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeContextTooLarge   ErrorCode = "context_too_large"
	CodeUpstream          ErrorCode = "upstream"
	CodeInconsistent      ErrorCode = "inconsistent"
	CodeUnknown           ErrorCode = "unknown"
)

// Kind maps the code to its failure category
func (c ErrorCode) Kind() FailureKind {
	switch c {
	case CodeTimeout, CodeNetwork, CodeRateLimited, CodeUpstream:
		return KindTransientRemote
	case CodeStorageFull, CodeLocalIO:
		return KindLocalResource
	case CodeInconsistent:
		return KindDataIntegrity
	default:
		return KindPermanentRemote
	}
}

// Retryable reports whether a failure with this code may succeed on another attempt
func (c ErrorCode) Retryable() bool {
	return c.Kind() == KindTransientRemote
}

// StageError is a typed failure reported by a pipeline collaborator
type StageError struct {
	Stage Stage
	Code  ErrorCode
	Err   error
}

// NewStageError makes a StageError wrapping err
func NewStageError(stage Stage, code ErrorCode, err error) *StageError {
	return &StageError{Stage: stage, Code: code, Err: err}
}

// StageErrorf makes a StageError with a formatted message
func StageErrorf(stage Stage, code ErrorCode, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Stage, e.Code)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// LocalError classifies a local filesystem failure, a full disk is reported as storage_full
func LocalError(stage Stage, err error) *StageError {
	if errors.Is(err, syscall.ENOSPC) {
		return NewStageError(stage, CodeStorageFull, err)
	}
	return NewStageError(stage, CodeLocalIO, err)
}

// CodeForHTTPStatus maps an unsuccessful HTTP status to an error code
func CodeForHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusNotFound || status == http.StatusGone:
		return CodeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= http.StatusInternalServerError:
		return CodeUpstream
	}
	return CodeBadInput
}

// CodeForTransport classifies a failed HTTP round trip
func CodeForTransport(err error) ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CodeTimeout
	}
	return CodeNetwork
}

// CodeOf extracts the error code from err, CodeUnknown for untyped errors
func CodeOf(err error) ErrorCode {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// KindOf returns the failure category of err. Untyped errors are treated as permanent.
func KindOf(err error) FailureKind {
	return CodeOf(err).Kind()
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	return err != nil && CodeOf(err).Retryable()
}

// Failure is the persisted record of why an item stopped progressing
type Failure struct {
	Stage   Stage
	Kind    FailureKind
	Code    ErrorCode
	Message string
}

// FailureFrom builds a Failure for an error that happened in stage
func FailureFrom(stage Stage, err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Stage: stage, Code: CodeOf(err), Message: err.Error()}
	f.Kind = f.Code.Kind()
	var se *StageError
	if errors.As(err, &se) && se.Err != nil {
		f.Message = se.Err.Error()
	}
	return f
}

// String formats the failure for display
func (f Failure) String() string {
	return fmt.Sprintf("%s failed (%s): %s", f.Stage, f.Code, f.Message)
}

// ResumeStatus is the status an item returns to when a failed stage is redone
func (f Failure) ResumeStatus() Status {
	if s := f.Stage.Input(); s != "" {
		return s
	}
	return StatusNew
}
