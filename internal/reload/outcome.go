// Package reload replaces the live model of a project definition with a
// fresh parse of the file on disk, in place, without recreating the
// project object graph around it.
package reload

import "fmt"

// Outcome is the terminal result of one reload attempt.
type Outcome int

const (
	// Completed means the live document now matches the file on disk and is clean.
	Completed Outcome = iota
	// FailedProjectDirty means the live document had unsaved changes; nothing was touched.
	FailedProjectDirty
	// Failed means the file could not be loaded or the replacement failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case FailedProjectDirty:
		return "failed_project_dirty"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FailureKind classifies why an attempt ended in Failed.
type FailureKind int

const (
	// KindRead: the file could not be read.
	KindRead FailureKind = iota
	// KindParse: the file is not a well-formed project definition.
	KindParse
	// KindValidate: the parsed tree could not be copied into a scratch document.
	KindValidate
	// KindReplace: replacing the live content failed. The live document
	// must be treated as unreliable.
	KindReplace
)

func (k FailureKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindParse:
		return "parse"
	case KindValidate:
		return "validate"
	case KindReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Failure describes a Failed outcome.
type Failure struct {
	Path string
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("reload: %s: %s: %v", f.Path, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// LiveUntouched reports whether the live document is known to be unchanged.
func (f *Failure) LiveUntouched() bool {
	return f.Kind != KindReplace
}
