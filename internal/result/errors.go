package result

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a job-level failure.
type ErrorKind string

const (
	// KindConfig covers missing tool paths, malformed tools.json, and
	// unknown mod or validator ids. Fatal to the job.
	KindConfig ErrorKind = "config"
	// KindWorkspace covers clone/fetch/checkout/push failures and
	// post-checkout hook non-zero exits. Fatal to the job.
	KindWorkspace ErrorKind = "workspace"
	// KindCompilation covers compiler non-zero exits. The affected edit is
	// rejected; the job continues.
	KindCompilation ErrorKind = "compilation"
	// KindOracleMismatch marks a validation failure. The edit is rejected;
	// the job continues.
	KindOracleMismatch ErrorKind = "oracle_mismatch"
	// KindInternal covers unexpected conditions (I/O errors, invariant
	// violations). Best-effort rollback, then job ERROR.
	KindInternal ErrorKind = "internal"
)

// Error is a classified job error. Per-edit kinds (Compilation,
// OracleMismatch) are absorbed into edit outcomes by the engine; the rest
// terminate the job with ERROR status.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error with fmt-style formatting.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
func Wrap(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification of err, defaulting to Internal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Fatal reports whether an error of this kind terminates the job.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindCompilation, KindOracleMismatch:
		return false
	}
	return true
}
