// Package cerr defines the back end's error taxonomy. Every kind here
// is fatal to the current probe and non-fatal to the surrounding
// script: the driver may proceed to the next probe or abort per
// policy (internal/driver.Settings.Strict).
package cerr

import "fmt"

// Kind discriminates a compile-time error. The set is closed.
type Kind int

const (
	// KindDestinationUnknown: a transfer targets a node whose Loc is
	// LocNowhere or LocVirtual. Indicates an annotation bug.
	KindDestinationUnknown Kind = iota
	// KindSourceUnknown is the symmetric case on the source side.
	KindSourceUnknown
	// KindUnsupportedTransfer: a stack-to-stack transfer was requested.
	KindUnsupportedTransfer
	// KindUnknownBuiltin: the provider's compile callback found no
	// entry for the call name.
	KindUnknownBuiltin
	// KindPredicateNotInRegister: the predicate's annotator failed to
	// place the result in a register.
	KindPredicateNotInRegister
	// KindProgramTooLarge: instruction buffer exhausted.
	KindProgramTooLarge
	// KindUnlowerableNode: a non-emitting variant (script, probe, none)
	// was reached in an emitting context.
	KindUnlowerableNode
)

func (k Kind) String() string {
	switch k {
	case KindDestinationUnknown:
		return "destination-unknown"
	case KindSourceUnknown:
		return "source-unknown"
	case KindUnsupportedTransfer:
		return "unsupported-transfer"
	case KindUnknownBuiltin:
		return "unknown-builtin"
	case KindPredicateNotInRegister:
		return "predicate-not-in-register"
	case KindProgramTooLarge:
		return "program-too-large"
	case KindUnlowerableNode:
		return "unlowerable-node"
	default:
		return "unknown-error-kind"
	}
}

// CompileError is a single diagnostic line plus error kind: no retry,
// no stack trace.
type CompileError struct {
	Kind    Kind
	Probe   string
	Node    string
	Detail  string
	Wrapped error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	if e.Probe != "" {
		msg = fmt.Sprintf("%s: %s", e.Probe, msg)
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Wrapped }

// New builds a CompileError of the given kind with a formatted detail
// message.
func New(kind Kind, node string, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Node: node, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a probe name to err for surfacing to the user, without
// losing the original *CompileError for errors.As callers.
func Wrap(probe string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CompileError
	if ok := As(err, &ce); ok {
		ce.Probe = probe
		return ce
	}
	return fmt.Errorf("%s: %w", probe, err)
}

// As is a tiny local errors.As to avoid importing errors just for this
// one call site pattern used by Wrap.
func As(err error, target **CompileError) bool {
	for err != nil {
		if ce, ok := err.(*CompileError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
