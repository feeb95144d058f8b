package output

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"ply/internal/ast"
)

// wireFormatters builds md's Dump and Compare functions from its
// inferred KeyType/ValueType — the concrete implementation
// internal/ast/dyn.go's own doc comment says a map descriptor is left
// without until "the drainer wires concrete implementations in". Every
// value this back end's maps ever hold is either a fixed-width integer
// or a fixed-width string (internal/lang/maps.go's valueShape never
// infers anything else), so the formatter only ever needs those two
// cases plus TypeRec for multi-field keys.
func wireFormatters(md *ast.MapDyn, ascii bool) {
	md.Dump = func(key, value []byte) string {
		k := formatField(md.KeyType, key, ascii)
		v := formatField(md.ValueType, value, ascii)
		if k == "" {
			return v
		}
		return k + ": " + v
	}
	md.Compare = func(a, b []byte) int {
		if md.ValueType == ast.TypeStr {
			return bytes.Compare(a, b)
		}
		av, bv := decodeInt(a), decodeInt(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
}

// formatField renders one key or value byte slice according to t. A
// TypeRec field is a multi-field key: internal/lang/maps.go's keyShape
// lays its fields out contiguously, each padded to an 8-byte slot, so
// it decodes back as that many fixed-width integer chunks.
func formatField(t ast.Type, raw []byte, ascii bool) string {
	switch t {
	case ast.TypeStr:
		return formatString(raw, ascii)
	case ast.TypeRec:
		return formatRecord(raw)
	case ast.TypeInt:
		return strconv.FormatInt(decodeInt(raw), 10)
	default:
		return ""
	}
}

// formatString trims a fixed-width, NUL-terminated kernel string
// buffer down to its text. A kernel string read is not guaranteed to
// be valid UTF-8, so with ascii set every byte outside the printable
// ASCII range becomes a \xNN escape instead of being passed through.
func formatString(raw []byte, ascii bool) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s := string(raw)
	if ascii {
		return asciiEscape(s)
	}
	return s
}

// formatRecord splits a multi-field key into its 8-byte-aligned
// fields and prints each as a decimal integer, comma-separated.
func formatRecord(raw []byte) string {
	var fields []string
	for i := 0; i+8 <= len(raw); i += 8 {
		fields = append(fields, strconv.FormatInt(decodeInt(raw[i:i+8]), 10))
	}
	return strings.Join(fields, ", ")
}

// decodeInt reads a little-endian integer from raw, right-padding a
// short slice with zero bytes rather than panicking on it.
func decodeInt(raw []byte) int64 {
	var buf [8]byte
	copy(buf[:], raw)
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
