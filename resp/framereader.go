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
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// ErrBufferOverflow 未解析数据超出缓冲区上限
//
// 对端持续发送字节却迟迟拼不出一个完整 Frame 时触发
// 属于协议错误 调用方应当关闭链接
var ErrBufferOverflow = errors.New("resp: buffer overflow")

// FrameReader 管理单条链接的字节缓冲 并从中依次提取完整的 RESP Frame
//
// TCP 层不保证消息边界 一个 Frame 可能被切成任意多个分片到达
// 也可能一次 Read 带来多个 Frame 因此缓冲区维护一个消费游标
//
//	| <- 已消费 -> | <- 未解析 -> |
//	0             r            len
//
// Append 追加新到达的字节 TryNext 尝试从未解析区头部解析一个 Frame
// 成功后由调用方执行 Advance 推进游标 已消费前缀在下一次 Append 时
// 才被丢弃(惰性压缩) 保证本轮派发期间 Value 引用的字节始终有效
//
// FrameReader 非并发安全 仅允许链接自身的 goroutine 访问
type FrameReader struct {
	bb        *bytebufferpool.ByteBuffer
	r         int
	limits    Limits
	maxBuffer int
}

// NewFrameReader 创建并返回 *FrameReader 实例
//
// 背后的缓冲区从池中获取 链接关闭时必须调用 Free 归还
func NewFrameReader(limits Limits, maxBuffer int) *FrameReader {
	return &FrameReader{
		bb:        bytebufferpool.Get(),
		limits:    limits,
		maxBuffer: maxBuffer,
	}
}

// Append 追加新到达的字节
//
// 压缩后的未解析数据超出 maxBuffer 时返回 ErrBufferOverflow
// 此时缓冲区内容保持原样
func (f *FrameReader) Append(p []byte) error {
	f.compact()
	if len(f.bb.B)+len(p) > f.maxBuffer {
		return ErrBufferOverflow
	}

	f.bb.Write(p)
	return nil
}

// TryNext 尝试从未解析区头部解析一个完整 Frame
//
// 对当前缓冲内容是纯函数 不推进游标 重复调用返回相同结果
// 三种结果与 Parse 一致: 成功 / io.ErrShortBuffer / *MalformedError
func (f *FrameReader) TryNext() (Value, int, error) {
	return Parse(f.bb.B[f.r:], f.limits)
}

// Advance 将游标推进 n 个字节 仅在 TryNext 成功后调用
func (f *FrameReader) Advance(n int) {
	f.r += n
	if f.r > len(f.bb.B) {
		f.r = len(f.bb.B)
	}
}

// Buffered 返回未解析的字节数
func (f *FrameReader) Buffered() int {
	return len(f.bb.B) - f.r
}

// compact 丢弃已消费前缀
func (f *FrameReader) compact() {
	if f.r == 0 {
		return
	}

	n := copy(f.bb.B, f.bb.B[f.r:])
	f.bb.B = f.bb.B[:n]
	f.r = 0
}

// Free 归还缓冲区 此后 FrameReader 不再可用
func (f *FrameReader) Free() {
	if f.bb != nil {
		bytebufferpool.Put(f.bb)
		f.bb = nil
	}
}
