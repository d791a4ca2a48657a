// Copyright 2025 The respd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resp

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSimpleTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{
			name:  "SimpleString OK",
			input: "+OK\r\n",
			want:  Value{Type: SimpleString, Str: "OK"},
		},
		{
			name:  "SimpleString empty",
			input: "+\r\n",
			want:  Value{Type: SimpleString, Str: ""},
		},
		{
			name:  "Error message",
			input: "-Error message\r\n",
			want:  Value{Type: Error, Str: "Error message"},
		},
		{
			name:  "Error wrong type",
			input: "-WRONGTYPE Operation against a key holding the wrong kind of value\r\n",
			want:  Value{Type: Error, Str: "WRONGTYPE Operation against a key holding the wrong kind of value"},
		},
		{
			name:  "Integer 1000",
			input: ":1000\r\n",
			want:  Value{Type: Integer, Int: 1000},
		},
		{
			name:  "Integer negative",
			input: ":-42\r\n",
			want:  Value{Type: Integer, Int: -42},
		},
		{
			name:  "Integer zero",
			input: ":0\r\n",
			want:  Value{Type: Integer, Int: 0},
		},
		{
			name:  "Boolean true",
			input: "#t\r\n",
			want:  Value{Type: Boolean, Bool: true},
		},
		{
			name:  "Boolean false",
			input: "#f\r\n",
			want:  Value{Type: Boolean, Bool: false},
		},
		{
			name:  "BigNumber",
			input: "(3492890328409238509324850943850943825024385\r\n",
			want:  Value{Type: BigNumber, Str: "3492890328409238509324850943850943825024385"},
		},
		{
			name:  "Null bulk",
			input: "$-1\r\n",
			want:  Value{Type: Null},
		},
		{
			name:  "Null array",
			input: "*-1\r\n",
			want:  Value{Type: Null},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := Parse([]byte(tt.input), DefaultLimits())
			assert.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.want.Type, v.Type)
			assert.Equal(t, tt.want.Str, v.Str)
			assert.Equal(t, tt.want.Int, v.Int)
			assert.Equal(t, tt.want.Bool, v.Bool)
			assert.Equal(t, []byte(tt.input), v.Raw())
		})
	}
}

func TestParseDouble(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{
			name:  "Double pi",
			input: ",3.1415\r\n",
			want:  3.1415,
		},
		{
			name:  "Double integer form",
			input: ",10\r\n",
			want:  10,
		},
		{
			name:  "Double exponent",
			input: ",1.23e-3\r\n",
			want:  1.23e-3,
		},
		{
			name:  "Double inf",
			input: ",inf\r\n",
			want:  math.Inf(1),
		},
		{
			name:  "Double -inf",
			input: ",-inf\r\n",
			want:  math.Inf(-1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := Parse([]byte(tt.input), DefaultLimits())
			assert.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, Double, v.Type)
			assert.Equal(t, tt.want, v.Float)
		})
	}

	t.Run("Double nan", func(t *testing.T) {
		v, _, err := Parse([]byte(",nan\r\n"), DefaultLimits())
		assert.NoError(t, err)
		assert.True(t, math.IsNaN(v.Float))
	})
}

func TestParseBulkTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		typ   DataType
		want  []byte
	}{
		{
			name:  "BulkString foobar",
			input: "$6\r\nfoobar\r\n",
			typ:   BulkString,
			want:  []byte("foobar"),
		},
		{
			name:  "BulkString empty",
			input: "$0\r\n\r\n",
			typ:   BulkString,
			want:  []byte{},
		},
		{
			name:  "BulkString embedded CRLF",
			input: "$12\r\nhello\r\nworld\r\n",
			typ:   BulkString,
			want:  []byte("hello\r\nworld"),
		},
		{
			name:  "BulkString binary",
			input: "$4\r\n\x00\xff\x01\x80\r\n",
			typ:   BulkString,
			want:  []byte{0x00, 0xff, 0x01, 0x80},
		},
		{
			name:  "BlobError",
			input: "!21\r\nSYNTAX invalid syntax\r\n",
			typ:   BlobError,
			want:  []byte("SYNTAX invalid syntax"),
		},
		{
			name:  "VerbatimString",
			input: "=15\r\ntxt:Some string\r\n",
			typ:   VerbatimString,
			want:  []byte("txt:Some string"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := Parse([]byte(tt.input), DefaultLimits())
			assert.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.typ, v.Type)
			assert.Equal(t, tt.want, v.Bulk)
			assert.Equal(t, []byte(tt.input), v.Raw())
		})
	}

	t.Run("Verbatim split", func(t *testing.T) {
		v, _, err := Parse([]byte("=15\r\ntxt:Some string\r\n"), DefaultLimits())
		assert.NoError(t, err)
		encoding, content := v.Verbatim()
		assert.Equal(t, "txt", encoding)
		assert.Equal(t, []byte("Some string"), content)
	})
}

func TestParseAggregates(t *testing.T) {
	t.Run("Array command", func(t *testing.T) {
		input := "*2\r\n$3\r\nget\r\n$3\r\nkey\r\n"
		v, n, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Equal(t, Array, v.Type)
		assert.Len(t, v.Elems, 2)
		assert.Equal(t, []byte("get"), v.Elems[0].Bulk)
		assert.Equal(t, []byte("key"), v.Elems[1].Bulk)
		assert.Equal(t, []byte(input), v.Raw())
	})

	t.Run("Array empty", func(t *testing.T) {
		v, n, err := Parse([]byte("*0\r\n"), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, Array, v.Type)
		assert.Len(t, v.Elems, 0)
	})

	t.Run("Array mixed", func(t *testing.T) {
		input := "*5\r\n:1\r\n:2\r\n:3\r\n:4\r\n$6\r\nfoobar\r\n"
		v, n, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Len(t, v.Elems, 5)
		assert.Equal(t, int64(4), v.Elems[3].Int)
		assert.Equal(t, []byte("foobar"), v.Elems[4].Bulk)
	})

	t.Run("Array nested", func(t *testing.T) {
		input := "*2\r\n*2\r\n:1\r\n:2\r\n*1\r\n+three\r\n"
		v, _, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Len(t, v.Elems, 2)
		assert.Equal(t, Array, v.Elems[0].Type)
		assert.Len(t, v.Elems[0].Elems, 2)
		assert.Equal(t, "three", v.Elems[1].Elems[0].Str)
	})

	t.Run("Set", func(t *testing.T) {
		input := "~3\r\n:1\r\n:2\r\n:3\r\n"
		v, n, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Equal(t, Set, v.Type)
		assert.Len(t, v.Elems, 3)
	})

	t.Run("Push", func(t *testing.T) {
		input := ">4\r\n+pubsub\r\n+message\r\n+channel\r\n+payload\r\n"
		v, _, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, Push, v.Type)
		assert.Len(t, v.Elems, 4)
	})

	t.Run("Map", func(t *testing.T) {
		input := "%2\r\n+first\r\n:1\r\n+second\r\n:2\r\n"
		v, n, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Equal(t, Map, v.Type)
		assert.Len(t, v.Elems, 4)
		assert.Equal(t, "first", v.Elems[0].Str)
		assert.Equal(t, int64(1), v.Elems[1].Int)
	})

	t.Run("Attribute", func(t *testing.T) {
		input := "|1\r\n+key-popularity\r\n,0.1923\r\n"
		v, _, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
		assert.Equal(t, Attribute, v.Type)
		assert.Len(t, v.Elems, 2)
		assert.Equal(t, 0.1923, v.Elems[1].Float)
	})
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{
			name:   "unknown tag",
			input:  "@invalid\r\n",
			reason: "unknown type",
		},
		{
			name:   "bad integer",
			input:  ":abc\r\n",
			reason: "bad integer",
		},
		{
			name:   "integer plus sign",
			input:  ":+5\r\n",
			reason: "bad integer",
		},
		{
			name:   "integer empty",
			input:  ":\r\n",
			reason: "bad integer",
		},
		{
			name:   "integer out of range",
			input:  ":9223372036854775808\r\n",
			reason: "bad integer",
		},
		{
			name:   "bad double",
			input:  ",abc\r\n",
			reason: "bad double",
		},
		{
			name:   "bad boolean",
			input:  "#x\r\n",
			reason: "bad boolean",
		},
		{
			name:   "boolean too long",
			input:  "#tf\r\n",
			reason: "bad boolean",
		},
		{
			name:   "bad bulk length",
			input:  "$abc\r\n",
			reason: "bad length",
		},
		{
			name:   "bulk length plus sign",
			input:  "$+10\r\nabcdefghij\r\n",
			reason: "bad length",
		},
		{
			name:   "bulk negative length",
			input:  "$-2\r\n",
			reason: "bad length",
		},
		{
			name:   "bulk missing terminator",
			input:  "$5\r\nfoobar\r\n",
			reason: "missing terminator",
		},
		{
			name:   "bad verbatim payload",
			input:  "=5\r\nabcde\r\n",
			reason: "bad verbatim string",
		},
		{
			name:   "verbatim too short",
			input:  "=3\r\nabc\r\n",
			reason: "bad verbatim string",
		},
		{
			name:   "array negative count",
			input:  "*-2\r\n",
			reason: "bad length",
		},
		{
			name:   "map null count",
			input:  "%-1\r\n",
			reason: "bad length",
		},
		{
			name:   "embedded CR in simple string",
			input:  "+a\rb\r\n",
			reason: "embedded line break",
		},
		{
			name:   "embedded LF in error",
			input:  "-a\nb\r\n",
			reason: "embedded line break",
		},
		{
			name:   "malformed nested element",
			input:  "*2\r\n:1\r\n@x\r\n",
			reason: "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := Parse([]byte(tt.input), DefaultLimits())
			assert.Error(t, err)
			assert.Zero(t, n)

			var merr *MalformedError
			assert.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.reason, merr.Reason)
		})
	}
}

func TestParseLimits(t *testing.T) {
	t.Run("depth overflow", func(t *testing.T) {
		input := strings.Repeat("*1\r\n", 65) + ":1\r\n"
		_, _, err := Parse([]byte(input), DefaultLimits())

		var merr *MalformedError
		assert.ErrorAs(t, err, &merr)
		assert.Equal(t, "overflow", merr.Reason)
	})

	t.Run("depth within bound", func(t *testing.T) {
		input := strings.Repeat("*1\r\n", 32) + ":1\r\n"
		_, _, err := Parse([]byte(input), DefaultLimits())
		assert.NoError(t, err)
	})

	t.Run("element overflow", func(t *testing.T) {
		_, _, err := Parse([]byte("*16777217\r\n"), DefaultLimits())

		var merr *MalformedError
		assert.ErrorAs(t, err, &merr)
		assert.Equal(t, "overflow", merr.Reason)
	})

	t.Run("bulk too large", func(t *testing.T) {
		_, _, err := Parse([]byte("$536870913\r\n"), DefaultLimits())

		var merr *MalformedError
		assert.ErrorAs(t, err, &merr)
		assert.Equal(t, "too large", merr.Reason)
	})

	t.Run("custom limits", func(t *testing.T) {
		limits := Limits{MaxDepth: 1, MaxElements: 4, MaxBulkBytes: 8}
		_, _, err := Parse([]byte("$9\r\nabcdefghi\r\n"), limits)

		var merr *MalformedError
		assert.ErrorAs(t, err, &merr)
		assert.Equal(t, "too large", merr.Reason)
	})
}

// TestParseNeedMore 校验任意真前缀均返回 NeedMore 且不消费字节
func TestParseNeedMore(t *testing.T) {
	frames := []string{
		"+OK\r\n",
		"-Error message\r\n",
		":1000\r\n",
		",3.1415\r\n",
		"#t\r\n",
		"(123456789012345678901234567890\r\n",
		"$6\r\nfoobar\r\n",
		"$-1\r\n",
		"!21\r\nSYNTAX invalid syntax\r\n",
		"=15\r\ntxt:Some string\r\n",
		"*2\r\n$3\r\nget\r\n$3\r\nkey\r\n",
		"%2\r\n+first\r\n:1\r\n+second\r\n:2\r\n",
		"~3\r\n:1\r\n:2\r\n:3\r\n",
		"|1\r\n+key-popularity\r\n,0.1923\r\n",
		">2\r\n+message\r\n$7\r\npayload\r\n",
	}

	for _, frame := range frames {
		for i := 0; i < len(frame); i++ {
			_, n, err := Parse([]byte(frame[:i]), DefaultLimits())
			assert.ErrorIs(t, err, io.ErrShortBuffer, "frame=%q prefix=%d", frame, i)
			assert.Zero(t, n)
		}

		v, n, err := Parse([]byte(frame), DefaultLimits())
		assert.NoError(t, err, "frame=%q", frame)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, []byte(frame), v.Raw())
	}
}

// TestParseRepeatable 相同输入重复解析结果一致
func TestParseRepeatable(t *testing.T) {
	input := []byte("*2\r\n$3\r\nget\r\n$3\r\nkey\r\n:42\r\n")

	v1, n1, err1 := Parse(input, DefaultLimits())
	v2, n2, err2 := Parse(input, DefaultLimits())
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, n1, n2)
	assert.Equal(t, v1.Type, v2.Type)
	assert.Equal(t, v1.Raw(), v2.Raw())

	// 后续 Frame 不影响首个 Frame 的解析结果
	assert.Equal(t, "*2\r\n$3\r\nget\r\n$3\r\nkey\r\n", string(v1.Raw()))
}

func TestDataTypeRESP3(t *testing.T) {
	resp2 := []DataType{SimpleString, Error, Integer, BulkString, Null, Array}
	for _, dt := range resp2 {
		assert.False(t, dt.RESP3(), "type=%s", dt)
	}

	resp3 := []DataType{Double, Boolean, BigNumber, BlobError, VerbatimString, Map, Set, Attribute, Push}
	for _, dt := range resp3 {
		assert.True(t, dt.RESP3(), "type=%s", dt)
	}
}
