package matlab

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

// matElement is a parsed miMATRIX element. Raw holds the complete element
// bytes (tag included) so unrecognized struct fields can be re-emitted
// verbatim.
type matElement struct {
	name  string
	class uint8
	dims  []int32
	raw   []byte

	num    []float64     // numeric real part
	str    string        // mxCHAR payload
	cells  []*matElement // mxCELL children, column order
	fields map[string]*matElement
	order  []string // struct field order
	ir, jc []int32  // mxSPARSE row indices and column pointers
}

// parseFile validates the MAT header and returns the top-level matrix
// elements. Compressed elements are inflated transparently.
func parseFile(data []byte) ([]*matElement, error) {
	if len(data) < headerTextLen+12 {
		return nil, fmt.Errorf("file too short for MAT header (%d bytes)", len(data))
	}
	version := binary.LittleEndian.Uint16(data[124:126])
	endian := string(data[126:128])
	if endian != "IM" {
		if endian == "MI" {
			return nil, fmt.Errorf("big-endian MAT files are not supported")
		}
		return nil, fmt.Errorf("missing MAT endian indicator")
	}
	if version != 0x0100 {
		return nil, fmt.Errorf("unsupported MAT version 0x%04x", version)
	}

	var elements []*matElement
	rest := data[128:]
	for len(rest) > 0 {
		if len(rest) < 8 {
			return nil, fmt.Errorf("trailing garbage (%d bytes)", len(rest))
		}
		typ, payload, consumed, err := readTag(rest)
		if err != nil {
			return nil, err
		}
		switch typ {
		case miCOMPRESSED:
			zr, err := zlib.NewReader(bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("open compressed element: %w", err)
			}
			inflated, err := io.ReadAll(zr)
			_ = zr.Close()
			if err != nil {
				return nil, fmt.Errorf("inflate element: %w", err)
			}
			el, err := parseMatrix(inflated)
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)
		case miMATRIX:
			el, err := parseMatrix(rest[:consumed])
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)
		default:
			// Non-matrix top-level elements (rare) are skipped.
		}
		rest = rest[consumed:]
	}
	return elements, nil
}

// readTag decodes an element tag, handling the packed small-element form.
// It returns the data type, the payload, and the total padded length of the
// element within the buffer.
func readTag(b []byte) (typ uint32, payload []byte, consumed int, err error) {
	if len(b) < 8 {
		return 0, nil, 0, fmt.Errorf("truncated tag")
	}
	word := binary.LittleEndian.Uint32(b[0:4])
	if word&0xFFFF0000 != 0 {
		// Small data element: size in the upper half-word, data in bytes 4..8.
		size := int(word >> 16)
		if size > 4 {
			return 0, nil, 0, fmt.Errorf("small element with size %d", size)
		}
		return word & 0xFFFF, b[4 : 4+size], 8, nil
	}
	size := int(binary.LittleEndian.Uint32(b[4:8]))
	if size < 0 || 8+size > len(b) {
		return 0, nil, 0, fmt.Errorf("element size %d exceeds buffer", size)
	}
	consumed = 8 + size
	if rem := consumed % 8; rem != 0 {
		padded := consumed + (8 - rem)
		if padded > len(b) {
			padded = len(b) // final element may omit trailing pad
		}
		consumed = padded
	}
	return word, b[8 : 8+size], consumed, nil
}

// parseMatrix parses one complete miMATRIX element (tag included).
func parseMatrix(b []byte) (*matElement, error) {
	typ, body, _, err := readTag(b)
	if err != nil {
		return nil, err
	}
	if typ != miMATRIX {
		return nil, fmt.Errorf("expected matrix element, got type %d", typ)
	}
	el := &matElement{raw: b}

	// Array flags.
	typ, payload, n, err := readTag(body)
	if err != nil {
		return nil, fmt.Errorf("array flags: %w", err)
	}
	if typ != miUINT32 || len(payload) < 8 {
		return nil, fmt.Errorf("malformed array flags subelement")
	}
	flags := binary.LittleEndian.Uint32(payload[0:4])
	nzmax := binary.LittleEndian.Uint32(payload[4:8])
	el.class = uint8(flags & 0xFF)
	body = body[n:]

	// Dimensions.
	typ, payload, n, err = readTag(body)
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}
	if typ != miINT32 {
		return nil, fmt.Errorf("malformed dimensions subelement (type %d)", typ)
	}
	for i := 0; i+4 <= len(payload); i += 4 {
		el.dims = append(el.dims, int32(binary.LittleEndian.Uint32(payload[i:i+4])))
	}
	body = body[n:]

	// Array name.
	typ, payload, n, err = readTag(body)
	if err != nil {
		return nil, fmt.Errorf("array name: %w", err)
	}
	if typ != miINT8 && typ != miUTF8 {
		return nil, fmt.Errorf("malformed array name subelement (type %d)", typ)
	}
	el.name = string(payload)
	body = body[n:]

	switch el.class {
	case mxDOUBLE, mxINT8, mxUINT8, mxINT32, mxUINT32:
		if el.num, err = readNumericSub(body); err != nil {
			return nil, fmt.Errorf("array %s: %w", el.name, err)
		}
	case mxCHAR:
		if el.str, err = readCharSub(body); err != nil {
			return nil, fmt.Errorf("array %s: %w", el.name, err)
		}
	case mxSPARSE:
		if err := el.readSparse(body, int(nzmax)); err != nil {
			return nil, fmt.Errorf("array %s: %w", el.name, err)
		}
	case mxCELL:
		if err := el.readCells(body); err != nil {
			return nil, fmt.Errorf("array %s: %w", el.name, err)
		}
	case mxSTRUCT:
		if err := el.readStruct(body); err != nil {
			return nil, fmt.Errorf("array %s: %w", el.name, err)
		}
	default:
		return nil, fmt.Errorf("array %s: unsupported class %d", el.name, el.class)
	}
	return el, nil
}

func readNumericSub(body []byte) ([]float64, error) {
	if len(body) == 0 {
		return nil, nil
	}
	typ, payload, _, err := readTag(body)
	if err != nil {
		return nil, err
	}
	return convertNumeric(typ, payload)
}

func convertNumeric(typ uint32, payload []byte) ([]float64, error) {
	le := binary.LittleEndian
	switch typ {
	case miDOUBLE:
		out := make([]float64, len(payload)/8)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(payload[i*8:]))
		}
		return out, nil
	case miSINGLE:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(le.Uint32(payload[i*4:])))
		}
		return out, nil
	case miINT8:
		out := make([]float64, len(payload))
		for i, b := range payload {
			out[i] = float64(int8(b))
		}
		return out, nil
	case miUINT8:
		out := make([]float64, len(payload))
		for i, b := range payload {
			out[i] = float64(b)
		}
		return out, nil
	case miINT16:
		out := make([]float64, len(payload)/2)
		for i := range out {
			out[i] = float64(int16(le.Uint16(payload[i*2:])))
		}
		return out, nil
	case miUINT16:
		out := make([]float64, len(payload)/2)
		for i := range out {
			out[i] = float64(le.Uint16(payload[i*2:]))
		}
		return out, nil
	case miINT32:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(int32(le.Uint32(payload[i*4:])))
		}
		return out, nil
	case miUINT32:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(le.Uint32(payload[i*4:]))
		}
		return out, nil
	case miINT64:
		out := make([]float64, len(payload)/8)
		for i := range out {
			out[i] = float64(int64(le.Uint64(payload[i*8:])))
		}
		return out, nil
	case miUINT64:
		out := make([]float64, len(payload)/8)
		for i := range out {
			out[i] = float64(le.Uint64(payload[i*8:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported numeric storage type %d", typ)
}

func readCharSub(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	typ, payload, _, err := readTag(body)
	if err != nil {
		return "", err
	}
	switch typ {
	case miUINT16, miUTF16:
		units := make([]uint16, len(payload)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(payload[i*2:])
		}
		return string(utf16.Decode(units)), nil
	case miUTF8, miINT8, miUINT8:
		return string(payload), nil
	}
	return "", fmt.Errorf("unsupported char storage type %d", typ)
}

func readInt32Sub(body []byte) ([]int32, int, error) {
	typ, payload, n, err := readTag(body)
	if err != nil {
		return nil, 0, err
	}
	if typ != miINT32 && typ != miUINT32 {
		return nil, 0, fmt.Errorf("expected int32 subelement, got type %d", typ)
	}
	out := make([]int32, len(payload)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return out, n, nil
}

func (el *matElement) readSparse(body []byte, nzmax int) error {
	ir, n, err := readInt32Sub(body)
	if err != nil {
		return fmt.Errorf("row indices: %w", err)
	}
	body = body[n:]
	jc, n, err := readInt32Sub(body)
	if err != nil {
		return fmt.Errorf("column pointers: %w", err)
	}
	body = body[n:]
	num, err := readNumericSub(body)
	if err != nil {
		return fmt.Errorf("values: %w", err)
	}
	if len(ir) < len(num) {
		return fmt.Errorf("sparse arrays disagree: %d indices for %d values", len(ir), len(num))
	}
	el.ir, el.jc, el.num = ir[:len(num)], jc, num
	_ = nzmax
	return nil
}

func (el *matElement) readCells(body []byte) error {
	count := 1
	for _, d := range el.dims {
		count *= int(d)
	}
	for i := 0; i < count; i++ {
		if len(body) == 0 {
			return fmt.Errorf("cell array truncated at element %d of %d", i, count)
		}
		_, _, n, err := readTag(body)
		if err != nil {
			return err
		}
		child, err := parseMatrix(body[:n])
		if err != nil {
			return err
		}
		el.cells = append(el.cells, child)
		body = body[n:]
	}
	return nil
}

func (el *matElement) readStruct(body []byte) error {
	// Field name length.
	typ, payload, n, err := readTag(body)
	if err != nil {
		return fmt.Errorf("field name length: %w", err)
	}
	if (typ != miINT32 && typ != miUINT32) || len(payload) < 4 {
		return fmt.Errorf("malformed field name length subelement")
	}
	slot := int(binary.LittleEndian.Uint32(payload))
	if slot <= 0 || slot > 256 {
		return fmt.Errorf("implausible field name length %d", slot)
	}
	body = body[n:]

	// Field names.
	typ, payload, n, err = readTag(body)
	if err != nil {
		return fmt.Errorf("field names: %w", err)
	}
	if typ != miINT8 {
		return fmt.Errorf("malformed field names subelement (type %d)", typ)
	}
	var names []string
	for off := 0; off+slot <= len(payload); off += slot {
		raw := payload[off : off+slot]
		if idx := bytes.IndexByte(raw, 0); idx >= 0 {
			raw = raw[:idx]
		}
		names = append(names, string(raw))
	}
	body = body[n:]

	el.fields = make(map[string]*matElement, len(names))
	for _, name := range names {
		if len(body) == 0 {
			return fmt.Errorf("struct truncated before field %s", name)
		}
		_, _, n, err := readTag(body)
		if err != nil {
			return err
		}
		child, err := parseMatrix(body[:n])
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		child.raw = append([]byte(nil), body[:n]...)
		el.fields[name] = child
		el.order = append(el.order, name)
		body = body[n:]
	}
	return nil
}

// cellStrings flattens a cell array of char matrices.
func (el *matElement) cellStrings() ([]string, error) {
	out := make([]string, 0, len(el.cells))
	for i, cell := range el.cells {
		if cell.class != mxCHAR {
			return nil, fmt.Errorf("cell %d of %s is class %d, expected char", i, el.name, cell.class)
		}
		out = append(out, cell.str)
	}
	return out, nil
}
