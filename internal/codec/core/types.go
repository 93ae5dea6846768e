// Package core defines the codec abstractions shared by the format
// implementations and the dispatching layer.
package core

import (
	"context"
	"path/filepath"
	"strings"

	"metaflux/pkg/model"
)

// Format identifies a model file format.
type Format string

const (
	// FormatMATLAB is the MAT-file struct container, the default lossless
	// persistence format.
	FormatMATLAB Format = "matlab-struct"
	// FormatSBML is SBML Level 3 Version 1 with the fbc extension (legacy
	// Level 2 documents are accepted on decode).
	FormatSBML Format = "sbml"
	// FormatSimPheny is the SimPheny multi-file bundle (decode only).
	FormatSimPheny Format = "simpheny"
	// FormatExcel is the two-sheet workbook layout.
	FormatExcel Format = "excel"
	// FormatText is the flat tab-separated reaction list (encode only).
	FormatText Format = "text"
)

// ParseFormat resolves a case-insensitive format token.
func ParseFormat(token string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(token))) {
	case FormatMATLAB:
		return FormatMATLAB, true
	case FormatSBML:
		return FormatSBML, true
	case FormatSimPheny:
		return FormatSimPheny, true
	case FormatExcel:
		return FormatExcel, true
	case FormatText:
		return FormatText, true
	}
	return "", false
}

// FormatForPath infers a format from a filename extension. Matching is
// case-insensitive. ".txt" is deliberately absent: the text format is
// write-only and is never inferred for reads; it must be requested
// explicitly even for writes.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mat":
		return FormatMATLAB, true
	case ".xml", ".sbml":
		return FormatSBML, true
	case ".sto":
		return FormatSimPheny, true
	case ".xls", ".xlsx":
		return FormatExcel, true
	}
	return "", false
}

// Decoder reads a model from a source path. Sources are paths rather than
// readers because two formats (SimPheny, Excel) are inherently multi-part
// or random-access containers.
type Decoder interface {
	Format() Format
	Decode(ctx context.Context, source string) (*model.Model, error)
}

// Encoder writes a model to a destination path. Encode capability is
// optional per format; a codec without it simply does not implement this
// interface.
type Encoder interface {
	Format() Format
	Encode(ctx context.Context, m *model.Model, dest string) error
}
