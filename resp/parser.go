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
	"bytes"
	"io"
	"strconv"

	"github.com/respd/respd/common"
)

var charCRLF = []byte("\r\n")

// MalformedError 标识无法恢复的协议错误
//
// RESP 是无同步标记的流式协议 一旦出现非法字节 流内便再无可靠的
// Frame 边界 调用方应当直接关闭链接
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "resp: malformed frame: " + e.Reason
}

func malformed(reason string) error {
	return &MalformedError{Reason: reason}
}

// Limits 约束单个 Frame 的解析开销 防止恶意输入耗尽内存
type Limits struct {
	MaxDepth     int
	MaxElements  int
	MaxBulkBytes int
}

// DefaultLimits 返回默认的解析限制
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:     common.MaxDepth,
		MaxElements:  common.MaxElements,
		MaxBulkBytes: common.MaxBulkBytes,
	}
}

// NewLimits 从 Options 中解析 Limits 缺省项使用默认值
func NewLimits(opts common.Options) Limits {
	limits := DefaultLimits()
	if n, err := opts.GetInt("maxDepth"); err == nil && n > 0 {
		limits.MaxDepth = n
	}
	if n, err := opts.GetInt("maxElements"); err == nil && n > 0 {
		limits.MaxElements = n
	}
	if n, err := opts.GetInt("maxBulkBytes"); err == nil && n > 0 {
		limits.MaxBulkBytes = n
	}
	return limits
}

// Parse 尝试从 b 的起始位置解析一个完整的 RESP Frame
//
// 解析使用 RESP 协议 RESP 是一个支持多种数据类型的序列化协议
// 数据的类型依赖于首字节 RESP2 定义了 5 种类型 RESP3 扩展至 14 种
//
// +-----------------+                      +-----------------+
// |     Client      |                      |      Server     |
// +-----------------+                      +-----------------+
// | *2\r\n          |  ----------------->  |                 |
// | $3\r\n          |                      |                 |
// | GET\r\n         |                      |                 |
// | $4\r\n          |                      |                 |
// | key1\r\n        |                      |                 |
// |                 |  <-----------------  | $6\r\n          |
// |                 |                      | value1\r\n      |
// +-----------------+                      +-----------------+
//
// 返回值分三种情况
//
// * 成功: 返回 Value 以及消费的字节数
// * 数据不完整: 返回 io.ErrShortBuffer 此时不消费任何字节
//   调用方等待更多数据到达后重试 对相同输入重复调用结果一致
// * 协议错误: 返回 *MalformedError 同样不消费任何字节
//
// Parse 是纯函数 不持有任何状态 TCP 层的任意切包方式都不影响结果
// 聚合类型递归解析 深度由 Limits.MaxDepth 约束
func Parse(b []byte, limits Limits) (Value, int, error) {
	return parseValue(b, limits, 0)
}

func parseValue(b []byte, limits Limits, depth int) (Value, int, error) {
	if depth > limits.MaxDepth {
		return Value{}, 0, malformed("overflow")
	}
	if len(b) == 0 {
		return Value{}, 0, io.ErrShortBuffer
	}

	// 所有类型的首行均以 CRLF 结尾 找不到则说明数据未到齐
	idx := bytes.Index(b[1:], charCRLF)
	if idx < 0 {
		return Value{}, 0, io.ErrShortBuffer
	}

	crlf := idx + 1
	header := b[1:crlf]
	consumed := crlf + 2

	var v Value
	switch b[0] {
	case '+', '-':
		// 单行类型 内容不允许出现回车或换行
		//
		// "+OK\r\n"
		// "-ERR unknown command\r\n"
		if bytes.IndexByte(header, '\r') >= 0 || bytes.IndexByte(header, '\n') >= 0 {
			return Value{}, 0, malformed("embedded line break")
		}
		v = Value{Type: SimpleString, Str: string(header)}
		if b[0] == '-' {
			v.Type = Error
		}

	case ':':
		// ":1000\r\n"
		n, ok := parseInt64(header)
		if !ok {
			return Value{}, 0, malformed("bad integer")
		}
		v = Value{Type: Integer, Int: n}

	case ',':
		// ",3.1415\r\n" 同时接受 inf/-inf/nan
		f, err := strconv.ParseFloat(string(header), 64)
		if err != nil {
			return Value{}, 0, malformed("bad double")
		}
		v = Value{Type: Double, Float: f}

	case '#':
		// "#t\r\n" 或 "#f\r\n"
		if len(header) != 1 || (header[0] != 't' && header[0] != 'f') {
			return Value{}, 0, malformed("bad boolean")
		}
		v = Value{Type: Boolean, Bool: header[0] == 't'}

	case '(':
		// 文本形式保留 不做数值范围校验
		//
		// "(3492890328409238509324850943850943825024385\r\n"
		v = Value{Type: BigNumber, Str: string(header)}

	case '$', '!', '=':
		// 长度前缀类型 负载为任意字节 包括内嵌的 \r\n
		//
		// - [$] 后面跟着负载的字节数(前缀长度) + CRLF
		// - 实际的负载数据 + CRLF
		//
		// "$6\r\nfoobar\r\n"
		length, ok := parseLength(header)
		if !ok {
			return Value{}, 0, malformed("bad length")
		}
		if length == -1 {
			v = Value{Type: Null}
			break
		}
		if length > limits.MaxBulkBytes {
			return Value{}, 0, malformed("too large")
		}

		need := consumed + length + 2
		if len(b) < need {
			return Value{}, 0, io.ErrShortBuffer
		}
		if b[consumed+length] != '\r' || b[consumed+length+1] != '\n' {
			return Value{}, 0, malformed("missing terminator")
		}

		// 负载逐字节拷贝 保证缓冲区压缩后依然可用
		payload := make([]byte, length)
		copy(payload, b[consumed:consumed+length])
		switch b[0] {
		case '$':
			v = Value{Type: BulkString, Bulk: payload}
		case '!':
			v = Value{Type: BlobError, Bulk: payload}
		case '=':
			// 前 3 字节为编码标记 其后紧跟 ':'
			if length < 4 || payload[3] != ':' {
				return Value{}, 0, malformed("bad verbatim string")
			}
			v = Value{Type: VerbatimString, Bulk: payload}
		}
		consumed = need

	case '*', '~', '>':
		// 同构聚合类型 递归解析 N 个子元素
		//
		// "*5\r\n"
		// ":1\r\n"
		// ":2\r\n"
		// ":3\r\n"
		// ":4\r\n"
		// "$6\r\n"
		// "foobar\r\n"
		count, ok := parseLength(header)
		if !ok {
			return Value{}, 0, malformed("bad length")
		}
		if count == -1 {
			v = Value{Type: Null}
			break
		}
		if count > limits.MaxElements {
			return Value{}, 0, malformed("overflow")
		}

		elems, n, err := parseElems(b[consumed:], limits, depth, count)
		if err != nil {
			return Value{}, 0, err
		}
		consumed += n

		switch b[0] {
		case '*':
			v = Value{Type: Array, Elems: elems}
		case '~':
			v = Value{Type: Set, Elems: elems}
		case '>':
			v = Value{Type: Push, Elems: elems}
		}

	case '%', '|':
		// 键值聚合类型 声明个数 N 实际解析 2N 个子元素
		//
		// "%2\r\n+first\r\n:1\r\n+second\r\n:2\r\n"
		count, ok := parseLength(header)
		if !ok || count < 0 {
			return Value{}, 0, malformed("bad length")
		}
		if count > limits.MaxElements/2 {
			return Value{}, 0, malformed("overflow")
		}

		elems, n, err := parseElems(b[consumed:], limits, depth, count*2)
		if err != nil {
			return Value{}, 0, err
		}
		consumed += n

		v = Value{Type: Map, Elems: elems}
		if b[0] == '|' {
			v.Type = Attribute
		}

	default:
		return Value{}, 0, malformed("unknown type")
	}

	v.raw = b[:consumed]
	return v, consumed, nil
}

// parseElems 从 b 的起始位置依次解析 count 个子元素
//
// 任意子元素的 NeedMore / Malformed 均向上传播 不产生部分结果
func parseElems(b []byte, limits Limits, depth int, count int) ([]Value, int, error) {
	if count == 0 {
		return []Value{}, 0, nil
	}

	// 子元素个数可能是恶意构造的超大值 分配前先做钳制
	// 实际能解析多少由字节流说了算
	alloc := count
	if alloc > 1024 {
		alloc = 1024
	}

	elems := make([]Value, 0, alloc)
	var consumed int
	for i := 0; i < count; i++ {
		child, n, err := parseValue(b[consumed:], limits, depth+1)
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, child)
		consumed += n
	}
	return elems, consumed, nil
}

// parseInt64 严格解析有符号十进制整数 仅允许前导 '-'
func parseInt64(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}

	digits := b
	if b[0] == '-' {
		digits = b[1:]
	}
	if len(digits) == 0 {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseLength 解析长度或者元素个数
//
// 仅允许十进制数字 前导零合法 负数中仅 -1 合法 作为 Null 的哨兵值
func parseLength(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	if b[0] == '-' {
		if len(b) == 2 && b[1] == '1' {
			return -1, true
		}
		return 0, false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, false
	}
	return n, true
}
