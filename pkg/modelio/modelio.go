// Package modelio is the public entry point for reading and writing
// constraint-based metabolic models. A Dispatcher resolves a format token or
// filename extension to one of the registered codecs and translates between
// files and the canonical model representation in pkg/model.
package modelio

import (
	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

type (
	// Format identifies a model file format token.
	Format = core.Format
	// Decoder reads a model from a source path.
	Decoder = core.Decoder
	// Encoder writes a model to a destination path.
	Encoder = core.Encoder

	// MalformedInputError wraps a codec parse failure with the originating
	// codec's name.
	MalformedInputError = core.MalformedInputError
	// SchemaViolationError reports canonical-model invariant violations.
	SchemaViolationError = model.SchemaViolationError
	// UnsupportedSBMLVersionError reports an SBML document outside the
	// supported compatibility set.
	UnsupportedSBMLVersionError = core.UnsupportedSBMLVersionError
	// IncompleteBundleError reports missing required files of a multi-file
	// bundle.
	IncompleteBundleError = core.IncompleteBundleError
	// MissingSheetError reports an absent required worksheet.
	MissingSheetError = core.MissingSheetError
	// MissingColumnError reports an absent required column within a sheet.
	MissingColumnError = core.MissingColumnError
)

const (
	// FormatMATLAB is the MAT-file struct container, the default lossless
	// persistence format.
	FormatMATLAB = core.FormatMATLAB
	// FormatSBML is SBML Level 3 Version 1 with the fbc extension.
	FormatSBML = core.FormatSBML
	// FormatSimPheny is the SimPheny multi-file bundle (decode only).
	FormatSimPheny = core.FormatSimPheny
	// FormatExcel is the two-sheet workbook layout.
	FormatExcel = core.FormatExcel
	// FormatText is the flat tab-separated reaction list (encode only).
	FormatText = core.FormatText
)

var (
	// ErrUnknownFormat indicates no format token was given and none could be
	// inferred from the path.
	ErrUnknownFormat = core.ErrUnknownFormat
	// ErrUnsupportedFormat indicates the resolved format has no codec for the
	// requested direction.
	ErrUnsupportedFormat = core.ErrUnsupportedFormat
	// ErrFileNotFound indicates the source did not resolve to readable bytes.
	ErrFileNotFound = core.ErrFileNotFound
	// ErrDestinationRequired indicates a write was attempted with no
	// destination and no interactive resolver configured.
	ErrDestinationRequired = core.ErrDestinationRequired
)

// ParseFormat resolves a case-insensitive format token.
func ParseFormat(token string) (Format, bool) { return core.ParseFormat(token) }

// FormatForPath infers a format from a filename extension.
func FormatForPath(path string) (Format, bool) { return core.FormatForPath(path) }
