/*
 * Copyright (c) "Robsdedude"
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package packstream

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHydrate(tag StructTag, fields []any) (any, error) {
	return &Struct{Tag: tag, Fields: fields}, nil
}

func packValue(t *testing.T, x any) []byte {
	t.Helper()
	var buf bytes.Buffer
	p := NewPacker(&buf, nil)
	require.NoError(t, p.Pack(x))
	return buf.Bytes()
}

func unpackValue(t *testing.T, data []byte) any {
	t.Helper()
	var u Unpacker
	u.Reset(data)
	x, err := u.Unpack(testHydrate)
	require.NoError(t, err)
	require.Equal(t, 0, u.Rest())
	return x
}

func TestRoundTripScalars(t *testing.T) {
	cases := map[string]struct {
		in  any
		out any
	}{
		"nil":           {nil, nil},
		"true":          {true, true},
		"false":         {false, false},
		"zero":          {int64(0), int64(0)},
		"tiny positive": {int64(127), int64(127)},
		"tiny negative": {int64(-16), int64(-16)},
		"int8 low":      {int64(-17), int64(-17)},
		"int8 min":      {int64(-128), int64(-128)},
		"int16 low":     {int64(-129), int64(-129)},
		"int16 max":     {int64(32767), int64(32767)},
		"int32 min":     {int64(math.MinInt32), int64(math.MinInt32)},
		"int32 max":     {int64(math.MaxInt32), int64(math.MaxInt32)},
		"int64 min":     {int64(math.MinInt64), int64(math.MinInt64)},
		"int64 max":     {int64(math.MaxInt64), int64(math.MaxInt64)},
		"plain int":     {42, int64(42)},
		"float":         {3.14159, 3.14159},
		"float max":     {math.MaxFloat64, math.MaxFloat64},
		"string":        {"hello", "hello"},
		"unicode":       {"päck ströam", "päck ströam"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, c.out, unpackValue(t, packValue(t, c.in)))
		})
	}
}

// Sizes around every marker boundary: tiny string to str8, str8 to str16 and
// str16 to str32.
func TestRoundTripStringBoundaries(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 255, 256, 65535, 65536} {
		s := strings.Repeat("x", size)
		x := unpackValue(t, packValue(t, s))
		require.Equal(t, s, x)
	}
}

func TestRoundTripListBoundaries(t *testing.T) {
	for _, size := range []int{0, 15, 16, 255, 256, 65536} {
		l := make([]any, size)
		for i := range l {
			l[i] = int64(i % 100)
		}
		x := unpackValue(t, packValue(t, l))
		ul, ok := x.([]any)
		require.True(t, ok)
		require.Equal(t, size, len(ul))
		if size > 0 {
			assert.Equal(t, l[size-1], ul[size-1])
		}
	}
}

func TestRoundTripMapBoundaries(t *testing.T) {
	for _, size := range []int{0, 15, 16, 256} {
		m := make(map[string]any, size)
		for i := 0; i < size; i++ {
			m[strings.Repeat("k", i+1)] = int64(i)
		}
		x := unpackValue(t, packValue(t, m))
		um, ok := x.(map[string]any)
		require.True(t, ok)
		require.Equal(t, size, len(um))
	}
}

func TestRoundTripBytes(t *testing.T) {
	for _, size := range []int{0, 255, 256, 65536} {
		b := make([]byte, size)
		for i := range b {
			b[i] = byte(i)
		}
		x := unpackValue(t, packValue(t, b))
		require.Equal(t, b, x)
	}
}

func TestRoundTripHomogeneousSlices(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacker(&buf, nil)
	require.NoError(t, p.Pack([]string{"a", "b"}))
	require.NoError(t, p.Pack([]int64{1, 2, 3}))
	require.NoError(t, p.Pack([]float64{1.5}))

	var u Unpacker
	u.Reset(buf.Bytes())
	x, err := u.Unpack(testHydrate)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, x)
	x, err = u.Unpack(testHydrate)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, x)
	x, err = u.Unpack(testHydrate)
	require.NoError(t, err)
	assert.Equal(t, []any{1.5}, x)
}

func TestRoundTripStruct(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacker(&buf, nil)
	require.NoError(t, p.PackStruct(0x66, map[string]any{"mode": "r"}, []any{"bm1"}, "neo4j"))

	x := unpackValue(t, buf.Bytes())
	s, ok := x.(*Struct)
	require.True(t, ok)
	assert.Equal(t, StructTag(0x66), s.Tag)
	require.Equal(t, 3, len(s.Fields))
	assert.Equal(t, map[string]any{"mode": "r"}, s.Fields[0])
	assert.Equal(t, []any{"bm1"}, s.Fields[1])
	assert.Equal(t, "neo4j", s.Fields[2])
}

func TestRoundTripNested(t *testing.T) {
	in := map[string]any{
		"list":   []any{int64(1), "two", 3.0, nil, true},
		"nested": map[string]any{"deep": []any{map[string]any{"x": int64(1)}}},
	}
	assert.Equal(t, in, unpackValue(t, packValue(t, in)))
}

// Decoding must make progress with partial input: fed one byte at a time,
// the unpacker reports it needs more data until the value is complete, then
// yields the same value the whole buffer would have.
func TestUnpackIncremental(t *testing.T) {
	values := []any{
		"a somewhat longer string to cross a few marker boundaries",
		map[string]any{"k": []any{int64(1), int64(2)}, "f": 2.5},
		int64(math.MaxInt64),
		&Struct{Tag: 0x70, Fields: []any{map[string]any{"fields": []any{"n"}}}},
	}
	for _, in := range values {
		var buf bytes.Buffer
		p := NewPacker(&buf, nil)
		if s, ok := in.(*Struct); ok {
			require.NoError(t, p.PackStruct(s.Tag, s.Fields...))
		} else {
			require.NoError(t, p.Pack(in))
		}
		data := buf.Bytes()

		var u Unpacker
		var out any
		var err error
		for i := 0; i < len(data); i++ {
			u.Feed(data[i : i+1])
			out, err = u.Unpack(testHydrate)
			if i < len(data)-1 {
				require.True(t, errors.Is(err, ErrIncomplete), "byte %d of %d: %v", i, len(data), err)
			}
		}
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestUnpackerRest(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacker(&buf, nil)
	require.NoError(t, p.Pack(int64(1)))
	require.NoError(t, p.Pack("trailing"))

	var u Unpacker
	u.Reset(buf.Bytes())
	x, err := u.Unpack(testHydrate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), x)
	assert.NotEqual(t, 0, u.Rest())
}

// A few bytes claiming a huge collection must not make the unpacker allocate
// for the declared size; the truncated buffer is just an incomplete value.
func TestUnpackHostileSizeHeaders(t *testing.T) {
	cases := map[string][]byte{
		"list32": {0xd6, 0x7f, 0xff, 0xff, 0xff},
		"map32":  {0xda, 0x7f, 0xff, 0xff, 0xff},
		"list16": {0xd5, 0xff, 0xff},
		"map16":  {0xd9, 0xff, 0xff},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var u Unpacker
			u.Reset(data)
			_, err := u.Unpack(testHydrate)
			require.True(t, errors.Is(err, ErrIncomplete), "got %v", err)
		})
	}
}

func TestPackUnsupportedType(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacker(&buf, nil)
	err := p.Pack(struct{ X int }{X: 1})
	var unsupported *UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
}
