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

// DataType 定义 RESP 多种数据类型
//
// RESP2 定义了 5 种基础类型 RESP3 在其之上扩展出另外 9 种
// 两者的语法互为超集 解析行为不依赖协议版本
type DataType string

const (
	// SimpleString RESP 单行字符串
	//
	// "+OK\r\n"
	SimpleString DataType = "SimpleString"

	// Error RESP 错误
	//
	// "-Error message\r\n"
	Error DataType = "Error"

	// Integer RESP 整数
	//
	// ":1000\r\n"
	Integer DataType = "Integer"

	// BulkString RESP 多行字符串 二进制安全
	//
	// "$6\r\nfoobar\r\n"
	BulkString DataType = "BulkString"

	// Null 空值 由 "$-1\r\n" 或 "*-1\r\n" 表示
	Null DataType = "Null"

	// Array RESP 数组
	//
	// "*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	Array DataType = "Array"

	// Double RESP3 浮点数 支持 inf/-inf/nan
	//
	// ",3.1415\r\n"
	Double DataType = "Double"

	// Boolean RESP3 布尔值 仅允许 t/f
	//
	// "#t\r\n"
	Boolean DataType = "Boolean"

	// BigNumber RESP3 大整数 文本形式保留 不做数值范围校验
	//
	// "(3492890328409238509324850943850943825024385\r\n"
	BigNumber DataType = "BigNumber"

	// BlobError RESP3 二进制安全错误 编码方式同 BulkString
	//
	// "!21\r\nSYNTAX invalid syntax\r\n"
	BlobError DataType = "BlobError"

	// VerbatimString RESP3 带编码标记的字符串 前 3 字节为编码类型 其后紧跟 ':'
	//
	// "=15\r\ntxt:Some string\r\n"
	VerbatimString DataType = "VerbatimString"

	// Map RESP3 键值对集合 元素数量为声明个数的 2 倍
	//
	// "%2\r\n+first\r\n:1\r\n+second\r\n:2\r\n"
	Map DataType = "Map"

	// Set RESP3 集合 编码方式同 Array
	//
	// "~3\r\n:1\r\n:2\r\n:3\r\n"
	Set DataType = "Set"

	// Attribute RESP3 属性 语义上修饰紧随其后的数据 编码方式同 Map
	//
	// "|1\r\n+key-popularity\r\n,0.1923\r\n"
	Attribute DataType = "Attribute"

	// Push RESP3 服务端主动推送 编码方式同 Array
	//
	// ">4\r\n+pubsub\r\n+message\r\n+channel\r\n+payload\r\n"
	Push DataType = "Push"
)

// DataTypes 返回全部数据类型 顺序稳定
func DataTypes() []DataType {
	return []DataType{
		SimpleString, Error, Integer, BulkString, Null, Array,
		Double, Boolean, BigNumber, BlobError, VerbatimString,
		Map, Set, Attribute, Push,
	}
}

// RESP3 返回该类型是否为 RESP3 扩展类型
//
// 收到任意扩展类型的 Frame 代表对端已经使用 RESP3 通信
func (t DataType) RESP3() bool {
	switch t {
	case Double, Boolean, BigNumber, BlobError, VerbatimString, Map, Set, Attribute, Push:
		return true
	}
	return false
}

// Dialect 标识链接使用的协议版本
//
// 默认为 RESP2 一旦收到 RESP3 扩展类型的 Frame 即升级为 RESP3
// 升级仅作记录 不改变解析行为
type Dialect string

const (
	DialectRESP2 Dialect = "RESP2"
	DialectRESP3 Dialect = "RESP3"
)
