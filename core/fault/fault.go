// Package fault defines the typed error taxonomy shared by the settlement
// engine, the multisig provisioner and the inspector. Every failure surfaced
// to callers is one of the kinds below; transport layers map kinds to status
// codes without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a settlement failure.
type Kind uint8

const (
	// KindValidation marks malformed input rejected before any network call.
	KindValidation Kind = iota + 1
	// KindNotFound marks a referenced account, balance or transaction that
	// does not exist on-ledger.
	KindNotFound
	// KindConflict marks a claim attempt against an already-claimed balance.
	KindConflict
	// KindPredicateUnsatisfied marks a claim attempted outside its valid
	// time window.
	KindPredicateUnsatisfied
	// KindSubmission marks a transaction the ledger rejected or could not
	// process; the underlying result code is preserved.
	KindSubmission
	// KindQuery marks transient connectivity or timeout failures on reads.
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPredicateUnsatisfied:
		return "predicate_unsatisfied"
	case KindSubmission:
		return "submission"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Error is the single error type produced by the settlement core. Field is
// set for validation failures, Resource/Ref for not-found lookups, and
// ResultCode for ledger-originated rejections.
type Error struct {
	Kind       Kind
	Field      string
	Resource   string
	Ref        string
	ResultCode string
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: field %s: %s", e.Kind, e.Field, e.Msg)
	case e.Resource != "":
		return fmt.Sprintf("%s: %s %q: %s", e.Kind, e.Resource, e.Ref, e.Msg)
	case e.ResultCode != "":
		return fmt.Sprintf("%s: %s (result code %s)", e.Kind, e.Msg, e.ResultCode)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf reports malformed input for the named field.
func Validationf(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing on-ledger resource.
func NotFound(resource, ref string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Ref: ref, Msg: "does not exist"}
}

// Conflict reports a claim attempt against an already-claimed balance.
func Conflict(resource, ref string) *Error {
	return &Error{Kind: KindConflict, Resource: resource, Ref: ref, Msg: "already claimed"}
}

// PredicateUnsatisfied reports a claim attempted outside its time window.
func PredicateUnsatisfied(resource, ref string) *Error {
	return &Error{Kind: KindPredicateUnsatisfied, Resource: resource, Ref: ref, Msg: "claim predicate not satisfied"}
}

// Submission wraps a ledger rejection, preserving the raw result code.
func Submission(resultCode string, err error) *Error {
	return &Error{Kind: KindSubmission, ResultCode: resultCode, Msg: "ledger rejected transaction", Err: err}
}

// Submissionf wraps a submission failure without a ledger result code, such
// as a timed-out submit whose outcome is pending or unknown.
func Submissionf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindSubmission, Msg: fmt.Sprintf(format, args...)}
}

// Queryf wraps a transient read failure.
func Queryf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindQuery, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to the error and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// IsKind reports whether err is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// KindOf extracts the fault kind from err, or zero when err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if !errors.As(err, &fe) {
		return 0
	}
	return fe.Kind
}
