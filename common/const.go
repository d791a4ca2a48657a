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

package common

const (
	// App 应用程序名称
	App = "respd"

	// Version 应用程序版本
	Version = "v0.1.0"

	// ReadBlockSize 单次 socket Read 的块大小
	//
	// RESP 单个 Frame 可能远大于此值 读取循环会把多个块
	// 持续追加到链接的 FrameReader 中直至拼出完整 Frame
	ReadBlockSize = 4096

	// DefaultListenAddress RESP 监听地址 (Redis 默认端口)
	DefaultListenAddress = ":6379"
)

const (
	// MaxBufferBytes 单链接缓冲区上限 超出即视为协议错误 (64MiB)
	MaxBufferBytes = 64 << 20

	// MaxBulkBytes BulkString / BlobError / VerbatimString 负载上限 (512MiB)
	MaxBulkBytes = 512 << 20

	// MaxElements 聚合类型元素个数上限 (16Mi)
	MaxElements = 16 << 20

	// MaxDepth 聚合类型嵌套深度上限
	MaxDepth = 64
)
