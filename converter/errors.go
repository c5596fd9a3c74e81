package converter

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies conversion errors. Fatal kinds end the lifecycle;
// the rest feed the retry loop.
type Kind int

const (
	KindExecuteCrash Kind = iota
	KindExecuteTimeout
	KindEvaluationFailure
	KindUnsupportedTarget
	KindMissingEngine
	KindInvalidInput
	KindCancelled
	KindNotImplemented
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindExecuteCrash:
		return "ExecuteCrash"
	case KindExecuteTimeout:
		return "ExecuteTimeout"
	case KindEvaluationFailure:
		return "EvaluationFailure"
	case KindUnsupportedTarget:
		return "UnsupportedTarget"
	case KindMissingEngine:
		return "MissingEngine"
	case KindInvalidInput:
		return "InvalidInput"
	case KindCancelled:
		return "Cancelled"
	case KindNotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind stop the lifecycle.
func (k Kind) Fatal() bool {
	switch k {
	case KindUnsupportedTarget, KindMissingEngine, KindInvalidInput, KindCancelled, KindNotImplemented:
		return true
	default:
		return false
	}
}

// Error is a classified conversion error. Code, when set, becomes the issue
// code of the synthetic evaluation recorded for a failed execute.
type Error struct {
	Kind Kind
	Code string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil || t.Op != "" || t.Code != "" {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrExecuteCrash      = &Error{Kind: KindExecuteCrash}
	ErrExecuteTimeout    = &Error{Kind: KindExecuteTimeout}
	ErrEvaluationFailure = &Error{Kind: KindEvaluationFailure}
	ErrUnsupportedTarget = &Error{Kind: KindUnsupportedTarget}
	ErrMissingEngine     = &Error{Kind: KindMissingEngine}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrNotImplemented    = &Error{Kind: KindNotImplemented}
)

// UnsupportedTarget reports a from/to combination the converter does not declare.
func UnsupportedTarget(from, to string) error {
	return &Error{Kind: KindUnsupportedTarget, Code: "UNSUPPORTED_TARGET", Err: fmt.Errorf("cannot convert %q to %q", from, to)}
}

// MissingEngine reports an external engine that is not installed.
func MissingEngine(engine string, err error) error {
	if err == nil {
		err = fmt.Errorf("%s not found", engine)
	}
	return &Error{Kind: KindMissingEngine, Code: "MISSING_ENGINE", Op: engine, Err: err}
}

// InvalidInput reports a caller contract violation.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Code: "INVALID_INPUT", Err: fmt.Errorf(format, args...)}
}

// NotImplemented reports a strategy that is declared but has no body.
func NotImplemented(strategy string) error {
	return &Error{Kind: KindNotImplemented, Code: "NOT_IMPLEMENTED", Op: strategy, Err: errors.New("strategy is declared but not implemented")}
}

// Crash wraps a retriable execute failure with an issue code.
func Crash(code string, err error) error {
	return &Error{Kind: KindExecuteCrash, Code: code, Err: err}
}

// Timeout reports an execute call that exceeded its bound.
func Timeout(op string, err error) error {
	return &Error{Kind: KindExecuteTimeout, Code: "EXECUTE_TIMEOUT", Op: op, Err: err}
}

// KindOf classifies any error. Unclassified errors are crashes;
// context cancellation is Cancelled.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindExecuteTimeout
	}
	return KindExecuteCrash
}

// IsFatal reports whether err ends the lifecycle.
func IsFatal(err error) bool {
	return err != nil && KindOf(err).Fatal()
}

// CodeOf returns the issue code carried by err, or fallback.
func CodeOf(err error, fallback string) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	return fallback
}
