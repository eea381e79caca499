package errors

import (
	"errors"
	"fmt"
)

// Kind classifies failures raised while acquiring or supervising a tool.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnsupportedPlatform: no artifact exists for this os/arch/version.
	KindUnsupportedPlatform
	// KindNotFound: no usable binary by any resolution strategy.
	KindNotFound
	// KindNetwork: transport, DNS, TLS, HTTP status or redirect-bound failures.
	KindNetwork
	// KindHashMismatch: downloaded content digest differs from the expected one.
	KindHashMismatch
	// KindExtraction: archive malformed or missing the expected binary.
	KindExtraction
	// KindFilesystem: cache or temp file could not be written.
	KindFilesystem
	// KindLaunch: process failed to spawn or exited immediately.
	KindLaunch
	// KindAlreadyRunning and KindNotRunning report lifecycle misuse.
	KindAlreadyRunning
	KindNotRunning
	KindConfig
)

// String returns the short name used in logs and JSON output.
func (k Kind) String() string {
	switch k {
	case KindUnsupportedPlatform:
		return "unsupported_platform"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindHashMismatch:
		return "hash_mismatch"
	case KindExtraction:
		return "extraction"
	case KindFilesystem:
		return "filesystem"
	case KindLaunch:
		return "launch"
	case KindAlreadyRunning:
		return "already_running"
	case KindNotRunning:
		return "not_running"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by resolver and supervisor operations.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// WithSuggestion returns a copy of e carrying the given operator hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	cp := *e
	cp.Suggestion = suggestion
	return &cp
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and context to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// HashMismatchError reports a failed integrity check with both digests.
type HashMismatchError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("invalid hash for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// Is lets errors.Is(err, ErrHashMismatch) match.
func (e *HashMismatchError) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == KindHashMismatch
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedPlatform = New(KindUnsupportedPlatform, "the configured language server does not support the current system")
	ErrNotFound            = New(KindNotFound, "failed to find a language server on the system")
	ErrNetwork             = New(KindNetwork, "network request failed")
	ErrHashMismatch        = New(KindHashMismatch, "downloaded artifact failed integrity check")
	ErrExtraction          = New(KindExtraction, "failed to extract artifact")
	ErrFilesystem          = New(KindFilesystem, "filesystem operation failed")
	ErrLaunch              = New(KindLaunch, "failed to launch language server")
	ErrAlreadyRunning      = New(KindAlreadyRunning, "already running")
	ErrNotRunning          = New(KindNotRunning, "language server not running")
	ErrConfig              = New(KindConfig, "invalid configuration")
)

// Is wraps errors.Is so callers importing this package need no alias.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetKind returns the kind of the first classified error in the chain.
func GetKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var hm *HashMismatchError
	if errors.As(err, &hm) {
		return KindHashMismatch
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetSuggestion returns the operator hint attached to err, if any.
func GetSuggestion(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}

// FormatError renders err with its suggestion on a second line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if s := GetSuggestion(err); s != "" {
		msg += "\n  hint: " + s
	}
	return msg
}
