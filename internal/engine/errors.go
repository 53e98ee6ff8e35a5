package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest rejects submissions with a zero agent id, an empty input
// URI, or a URI over the length ceiling.
var ErrInvalidRequest = errors.New("invalid execution request")

// ErrResourceLimit marks any finite-budget violation: oversized program,
// input, output, or guest memory.
var ErrResourceLimit = errors.New("resource limit exceeded")

// FetchErrorKind classifies fetcher failures
type FetchErrorKind int

const (
	// FetchInvalidURI means the URI bytes were not valid UTF-8 or not a
	// well-formed URL
	FetchInvalidURI FetchErrorKind = iota
	// FetchIO is a transport failure before the deadline
	FetchIO
	// FetchDeadline means no response arrived within the fetch deadline
	FetchDeadline
	// FetchBadStatus is any response status other than 200
	FetchBadStatus
	// FetchUnknown is the catch-all for opaque upstream failures, kept
	// distinct deliberately
	FetchUnknown
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchInvalidURI:
		return "InvalidUri"
	case FetchIO:
		return "IoError"
	case FetchDeadline:
		return "DeadlineReached"
	case FetchBadStatus:
		return "BadStatus"
	case FetchUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// FetchError is a classified failure from FetchProgram or FetchInput
type FetchError struct {
	Kind   FetchErrorKind
	Status int // HTTP status for FetchBadStatus, zero otherwise
	cause  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchBadStatus:
		return fmt.Sprintf("fetch failed: BadStatus(%d)", e.Status)
	default:
		if e.cause != nil {
			return fmt.Sprintf("fetch failed: %s: %v", e.Kind, e.cause)
		}
		return fmt.Sprintf("fetch failed: %s", e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.cause }

func newFetchError(kind FetchErrorKind, cause error) *FetchError {
	return &FetchError{Kind: kind, cause: cause}
}

func newBadStatusError(status int) *FetchError {
	return &FetchError{Kind: FetchBadStatus, Status: status}
}

// SandboxErrorKind classifies sandbox failures
type SandboxErrorKind int

const (
	// CompileError means the program bytes were not a well-formed Wasm module
	CompileError SandboxErrorKind = iota
	// LinkError means the host ABI could not be registered
	LinkError
	// InstantiationError means instantiation or the start section failed
	InstantiationError
	// ExportError means a required export (memory or wasm_function) is
	// missing or has the wrong shape
	ExportError
	// TrapError means the guest trapped or was aborted mid-execution
	TrapError
	// ResourceLimit means a byte or memory-page budget was exceeded
	ResourceLimit
	// MemoryOutOfBounds means a host function was asked to touch guest
	// memory outside its bounds
	MemoryOutOfBounds
)

func (k SandboxErrorKind) String() string {
	switch k {
	case CompileError:
		return "CompileError"
	case LinkError:
		return "LinkError"
	case InstantiationError:
		return "InstantiationError"
	case ExportError:
		return "ExportError"
	case TrapError:
		return "TrapError"
	case ResourceLimit:
		return "ResourceLimit"
	case MemoryOutOfBounds:
		return "MemoryOutOfBounds"
	default:
		return "UnknownSandboxError"
	}
}

// SandboxError is a classified failure from Sandbox.Run
type SandboxError struct {
	Kind  SandboxErrorKind
	cause error
}

func (e *SandboxError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("sandbox failed: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("sandbox failed: %s", e.Kind)
}

func (e *SandboxError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ErrResourceLimit) match budget violations regardless
// of how they were wrapped.
func (e *SandboxError) Is(target error) bool {
	return target == ErrResourceLimit && e.Kind == ResourceLimit
}

func newSandboxError(kind SandboxErrorKind, cause error) *SandboxError {
	return &SandboxError{Kind: kind, cause: cause}
}
