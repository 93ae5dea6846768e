package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the dispatching layer. Codec-specific failures
// use the structured types below; all are matched with errors.Is/errors.As.
var (
	// ErrUnknownFormat indicates no format token was given and none could be
	// inferred from the path.
	ErrUnknownFormat = errors.New("modelio: unknown format")
	// ErrUnsupportedFormat indicates the resolved format has no codec for
	// the requested direction.
	ErrUnsupportedFormat = errors.New("modelio: unsupported format")
	// ErrFileNotFound indicates the source did not resolve to readable bytes.
	ErrFileNotFound = errors.New("modelio: file not found")
	// ErrDestinationRequired indicates a write was attempted with no
	// destination and no interactive resolver configured.
	ErrDestinationRequired = errors.New("modelio: destination required")
)

// MalformedInputError wraps a codec parse failure with the originating
// codec's name.
type MalformedInputError struct {
	Codec  Format
	Detail string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed input: %s: %v", e.Codec, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: malformed input: %s", e.Codec, e.Detail)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Malformed constructs a MalformedInputError for codec.
func Malformed(codec Format, detail string, err error) error {
	return &MalformedInputError{Codec: codec, Detail: detail, Err: err}
}

// UnsupportedSBMLVersionError reports a document whose Level/Version/fbc
// combination is outside the supported compatibility set.
type UnsupportedSBMLVersionError struct {
	Level      int
	Version    int
	FBCVersion int
}

func (e *UnsupportedSBMLVersionError) Error() string {
	if e.FBCVersion > 0 {
		return fmt.Sprintf("sbml: unsupported document level %d version %d fbc v%d", e.Level, e.Version, e.FBCVersion)
	}
	return fmt.Sprintf("sbml: unsupported document level %d version %d", e.Level, e.Version)
}

// IncompleteBundleError reports missing required files of a multi-file
// bundle format.
type IncompleteBundleError struct {
	Missing []string
}

func (e *IncompleteBundleError) Error() string {
	return "simpheny: incomplete bundle, missing " + strings.Join(e.Missing, ", ")
}

// MissingSheetError reports an absent required worksheet.
type MissingSheetError struct {
	Sheet string
}

func (e *MissingSheetError) Error() string {
	return fmt.Sprintf("excel: required sheet %q missing", e.Sheet)
}

// MissingColumnError reports an absent required column within a sheet.
type MissingColumnError struct {
	Sheet  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("excel: sheet %q missing required column %q", e.Sheet, e.Column)
}
