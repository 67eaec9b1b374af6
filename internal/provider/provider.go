// Package provider defines the capability boundary between the orchestration
// engine and external inference vendors. The engine is agnostic to how a
// provider is implemented (HTTP call, SDK, local model); it only requires
// that each vendor expose a uniform analyze-and-classify surface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a failed provider call for retry decisions.
type FailureKind string

const (
	// KindRateLimited indicates the provider signaled throttling. The call is
	// retryable against another provider, but this provider is skipped for
	// the remainder of the task.
	KindRateLimited FailureKind = "rate_limited"

	// KindTransient indicates a network or 5xx-class failure that is safe to
	// retry against the next candidate provider.
	KindTransient FailureKind = "transient"

	// KindTerminal indicates an input or auth problem that no retry can fix.
	// Dispatch aborts immediately and surfaces the error to the caller.
	KindTerminal FailureKind = "terminal"
)

// Request is the provider-agnostic unit of analysis work.
type Request struct {
	// TaskID identifies the originating task, for correlation in logs.
	TaskID string `json:"task_id"`

	// MediaType is "image" or "video".
	MediaType string `json:"media_type"`

	// Reference points at the media in object storage ("bucket/key").
	// Either Reference or Data must be set.
	Reference string `json:"reference,omitempty"`

	// Data is the inline media payload, populated by the payload resolver
	// when the task was submitted with a Reference.
	Data []byte `json:"-"`

	// Params carries provider-agnostic analysis parameters.
	Params map[string]string `json:"params,omitempty"`
}

// Label is a single detection emitted by a provider.
type Label struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the validated output of a successful analysis.
type Result struct {
	Provider   string  `json:"provider"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	Labels     []Label `json:"labels,omitempty"`

	// Fallback is true when this result is the documented default object
	// returned for a lenient provider whose raw output failed validation.
	Fallback bool `json:"fallback,omitempty"`
}

// Provider is the uniform capability every external inference vendor
// implements. Analyze must honor ctx cancellation; the dispatcher bounds
// every call with a per-attempt deadline.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, req *Request) (*Result, error)
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a classified provider failure.
func NewError(name string, kind FailureKind, err error) *Error {
	return &Error{Provider: name, Kind: kind, Err: err}
}

// Classify maps an error from a provider call onto the failure taxonomy.
// Deadline expiry is transient (the next candidate may be faster) and
// anything unclassified defaults to transient, which is the safe-to-retry
// choice. It still counts as a failure in metrics and health.
func Classify(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// CallTimeout derives the effective per-attempt timeout, clamped by the
// task deadline when one is closer.
func CallTimeout(attemptTimeout time.Duration, deadline time.Time, now time.Time) time.Duration {
	if deadline.IsZero() {
		return attemptTimeout
	}
	remaining := deadline.Sub(now)
	if remaining < attemptTimeout {
		return remaining
	}
	return attemptTimeout
}
