package output

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
)

func TestWireFormattersIntField(t *testing.T) {
	md := &ast.MapDyn{ValueType: ast.TypeInt, ValueSize: 8}
	wireFormatters(md, false)

	buf := make([]byte, 8)
	buf[0] = 42
	require.Equal(t, "42", md.Dump(nil, buf))
}

func TestWireFormattersStringField(t *testing.T) {
	md := &ast.MapDyn{ValueType: ast.TypeStr, ValueSize: 16}
	wireFormatters(md, false)

	buf := make([]byte, 16)
	copy(buf, "hello")
	require.Equal(t, "hello", md.Dump(nil, buf))
}

func TestWireFormattersStringFieldAsciiEscapesNonPrintable(t *testing.T) {
	md := &ast.MapDyn{ValueType: ast.TypeStr, ValueSize: 8}
	wireFormatters(md, true)

	buf := []byte{'a', 0xff, 'b', 0}
	require.Equal(t, `a\xffb`, md.Dump(nil, buf))
}

func TestWireFormattersKeyAndValueJoined(t *testing.T) {
	md := &ast.MapDyn{KeyType: ast.TypeInt, KeySize: 8, ValueType: ast.TypeInt, ValueSize: 8}
	wireFormatters(md, false)

	key := make([]byte, 8)
	key[0] = 7
	value := make([]byte, 8)
	value[0] = 99
	require.Equal(t, "7: 99", md.Dump(key, value))
}

func TestWireFormattersRecordKey(t *testing.T) {
	md := &ast.MapDyn{KeyType: ast.TypeRec, KeySize: 16, ValueType: ast.TypeInt, ValueSize: 8}
	wireFormatters(md, false)

	key := make([]byte, 16)
	key[0] = 1
	key[8] = 2
	value := make([]byte, 8)
	require.Equal(t, "1, 2: 0", md.Dump(key, value))
}

func TestCompareOrdersIntValuesNumerically(t *testing.T) {
	md := &ast.MapDyn{ValueType: ast.TypeInt, ValueSize: 8}
	wireFormatters(md, false)

	small := make([]byte, 8)
	small[0] = 1
	big := make([]byte, 8)
	big[0] = 2

	require.Negative(t, md.Compare(small, big))
	require.Positive(t, md.Compare(big, small))
	require.Zero(t, md.Compare(small, small))
}

func TestCompareOrdersStringValuesLexically(t *testing.T) {
	md := &ast.MapDyn{ValueType: ast.TypeStr, ValueSize: 8}
	wireFormatters(md, false)

	require.Negative(t, md.Compare([]byte("aaa"), []byte("bbb")))
}

func TestAsciiEscapePassesThroughPrintable(t *testing.T) {
	require.Equal(t, "hello world", asciiEscape("hello world"))
}

func TestAsciiEscapeEscapesHighBytes(t *testing.T) {
	require.Equal(t, `\xff`, asciiEscape(string([]byte{0xff})))
}

func TestSortEntriesByValueDescOrdersDescending(t *testing.T) {
	entries := []struct{ key, value []byte }{
		{value: []byte{1}},
		{value: []byte{3}},
		{value: []byte{2}},
	}
	sortEntriesByValueDesc(entries, func(a, b []byte) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		default:
			return 0
		}
	})
	require.Equal(t, byte(3), entries[0].value[0])
	require.Equal(t, byte(2), entries[1].value[0])
	require.Equal(t, byte(1), entries[2].value[0])
}
