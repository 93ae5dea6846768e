// Package matlab implements the MAT-file struct container codec: a subset of
// the MAT-file Level 5 binary format holding one struct array in the COBRA
// field layout. It is the only codec with a lossless round-trip guarantee
// for the canonical schema; struct fields outside that schema are carried
// opaquely and re-emitted byte-for-byte.
package matlab

// MAT-file Level 5 data types.
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
)

// MAT-file array classes.
const (
	mxCELL   = 1
	mxSTRUCT = 2
	mxCHAR   = 4
	mxSPARSE = 5
	mxDOUBLE = 6
	mxINT8   = 8
	mxUINT8  = 9
	mxINT32  = 12
	mxUINT32 = 13
)

const (
	headerTextLen = 116
	// Struct field names are stored in fixed-width slots; MATLAB caps names
	// at 31 characters plus the terminating null.
	fieldNameSlot = 32
)
