package matlab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// The writer always emits the long tag form and uncompressed elements; the
// reader accepts both long and packed forms plus compressed elements, so
// files produced elsewhere still load.

func writeHeader(buf *bytes.Buffer, description string) {
	text := make([]byte, headerTextLen)
	for i := range text {
		text[i] = ' '
	}
	copy(text, []byte(description))
	buf.Write(text)
	buf.Write(make([]byte, 8)) // subsystem data offset, unused
	var trailer [4]byte
	binary.LittleEndian.PutUint16(trailer[0:2], 0x0100)
	trailer[2], trailer[3] = 'I', 'M'
	buf.Write(trailer[:])
}

// subElement renders tag + payload + padding.
func subElement(typ uint32, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload)+7)
	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[0:4], typ)
	binary.LittleEndian.PutUint32(tag[4:8], uint32(len(payload)))
	out = append(out, tag[:]...)
	out = append(out, payload...)
	if rem := len(out) % 8; rem != 0 {
		out = append(out, make([]byte, 8-rem)...)
	}
	return out
}

func int32Payload(values []int32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func doublePayload(values []float64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// matrixElement assembles a complete miMATRIX element from its subelements.
func matrixElement(class uint8, nzmax uint32, dims []int32, name string, rest ...[]byte) []byte {
	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags[0:4], uint32(class))
	binary.LittleEndian.PutUint32(flags[4:8], nzmax)

	body := subElement(miUINT32, flags)
	body = append(body, subElement(miINT32, int32Payload(dims))...)
	body = append(body, subElement(miINT8, []byte(name))...)
	for _, sub := range rest {
		body = append(body, sub...)
	}

	out := make([]byte, 0, 8+len(body))
	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[0:4], miMATRIX)
	binary.LittleEndian.PutUint32(tag[4:8], uint32(len(body)))
	out = append(out, tag[:]...)
	return append(out, body...)
}

// charMatrix renders a 1xN char array (UTF-16 storage, as MATLAB writes it).
func charMatrix(name, s string) []byte {
	units := utf16.Encode([]rune(s))
	payload := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(payload[i*2:], u)
	}
	rows := int32(1)
	if len(units) == 0 {
		rows = 0
	}
	return matrixElement(mxCHAR, 0, []int32{rows, int32(len(units))}, name, subElement(miUINT16, payload))
}

// doubleColumn renders an Nx1 double column vector.
func doubleColumn(name string, values []float64) []byte {
	cols := int32(1)
	if len(values) == 0 {
		cols = 0
	}
	return matrixElement(mxDOUBLE, 0, []int32{int32(len(values)), cols}, name, subElement(miDOUBLE, doublePayload(values)))
}

// cellColumn renders an Nx1 cell array from pre-rendered child elements.
func cellColumn(name string, children [][]byte) []byte {
	cols := int32(1)
	if len(children) == 0 {
		cols = 0
	}
	var body []byte
	for _, child := range children {
		body = append(body, child...)
	}
	return matrixElement(mxCELL, 0, []int32{int32(len(children)), cols}, name, body)
}

// stringCellColumn renders an Nx1 cell array of char rows.
func stringCellColumn(name string, values []string) []byte {
	children := make([][]byte, len(values))
	for i, v := range values {
		children[i] = charMatrix("", v)
	}
	return cellColumn(name, children)
}

// sparseMatrix renders an m-by-n real sparse matrix from column-major
// triplets. Entries must be ordered by column then row.
type sparseEntry struct {
	row, col int32
	value    float64
}

func sparseMatrix(name string, m, n int32, entries []sparseEntry) []byte {
	ir := make([]int32, len(entries))
	values := make([]float64, len(entries))
	jc := make([]int32, n+1)
	col := int32(0)
	for i, e := range entries {
		ir[i] = e.row
		values[i] = e.value
		for col < e.col {
			col++
			jc[col] = int32(i)
		}
	}
	for col < n {
		col++
		jc[col] = int32(len(entries))
	}
	nzmax := uint32(len(entries))
	if nzmax == 0 {
		nzmax = 1
	}
	return matrixElement(mxSPARSE, nzmax, []int32{m, n}, name,
		subElement(miINT32, int32Payload(ir)),
		subElement(miINT32, int32Payload(jc)),
		subElement(miDOUBLE, doublePayload(values)))
}

// structField pairs a field name with a rendered (unnamed) matrix element.
type structField struct {
	name    string
	element []byte
}

// structMatrix renders a 1x1 struct array.
func structMatrix(name string, fields []structField) ([]byte, error) {
	nameTable := make([]byte, 0, len(fields)*fieldNameSlot)
	var body []byte
	for _, f := range fields {
		if len(f.name) >= fieldNameSlot {
			return nil, fmt.Errorf("struct field name %q exceeds %d characters", f.name, fieldNameSlot-1)
		}
		slot := make([]byte, fieldNameSlot)
		copy(slot, []byte(f.name))
		nameTable = append(nameTable, slot...)
		body = append(body, f.element...)
	}
	subs := [][]byte{
		subElement(miINT32, int32Payload([]int32{fieldNameSlot})),
		subElement(miINT8, nameTable),
	}
	subs = append(subs, body)
	return matrixElement(mxSTRUCT, 0, []int32{1, 1}, name, subs...), nil
}
