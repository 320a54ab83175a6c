// Package bcerrors defines the error kinds shared across barcodecount's
// packages, following the same E(...)-wrapped, kind-tagged shape that
// github.com/grailbio/base/errors uses internally.
package bcerrors

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind classifies a barcodecount error the way §7 of the design requires:
// startup failures abort before the pipeline starts, per-read rejections
// never escape as process errors, and I/O or runtime failures are fatal.
type Kind int

const (
	// Other is the zero value, for errors that don't need a kind.
	Other Kind = iota
	// InvalidScheme is returned by schemeparse.Parse on a malformed layout.
	InvalidScheme
	// InvalidBarcodeFile is returned by barcode.Load{Sample,Counted}Dict on
	// malformed rows, duplicate barcodes/names, or a slot/length mismatch.
	InvalidBarcodeFile
	// IoError wraps a failure opening or reading the FASTQ stream or the
	// scheme file.
	IoError
	// FatalRuntime wraps a worker panic or other unrecoverable runtime
	// failure once the pipeline has started, including a failure creating,
	// writing or closing an output file.
	FatalRuntime
)

func (k Kind) String() string {
	switch k {
	case InvalidScheme:
		return "invalid scheme"
	case InvalidBarcodeFile:
		return "invalid barcode file"
	case IoError:
		return "I/O error"
	case FatalRuntime:
		return "fatal runtime error"
	default:
		return "error"
	}
}

// Error is a kinded error. It wraps an underlying error built with
// github.com/grailbio/base/errors.E, the same composition idiom the teacher
// uses for its own error messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a new Kind-tagged error from the given arguments, which are
// passed through to github.com/grailbio/base/errors.E to compose the
// message (strings are concatenated, an error argument is wrapped).
func E(kind Kind, args ...interface{}) error {
	if len(args) == 0 {
		return &Error{Kind: kind, Err: fmt.Errorf("%s", kind)}
	}
	return &Error{Kind: kind, Err: errors.E(args...)}
}

// Is reports whether err is a *Error of the given kind.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
