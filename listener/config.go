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

package listener

import (
	"github.com/respd/respd/common"
	"github.com/respd/respd/resp"
)

type Config struct {
	// Address 监听地址 双栈 TCP
	Address string `config:"address"`

	// MaxBufferBytes 单链接未解析数据的缓冲上限
	MaxBufferBytes int `config:"maxBufferBytes"`

	// MaxBulkBytes 单个二进制负载的长度上限
	MaxBulkBytes int `config:"maxBulkBytes"`

	// MaxElements 聚合类型元素个数上限
	MaxElements int `config:"maxElements"`

	// MaxDepth 聚合类型嵌套深度上限
	MaxDepth int `config:"maxDepth"`
}

func (c *Config) Validate() {
	if c.Address == "" {
		c.Address = common.DefaultListenAddress
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = common.MaxBufferBytes
	}
	if c.MaxBulkBytes <= 0 {
		c.MaxBulkBytes = common.MaxBulkBytes
	}
	if c.MaxElements <= 0 {
		c.MaxElements = common.MaxElements
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = common.MaxDepth
	}
}

// Limits 将配置转换为解析限制
func (c *Config) Limits() resp.Limits {
	opts := common.NewOptions()
	opts.Merge("maxDepth", c.MaxDepth)
	opts.Merge("maxElements", c.MaxElements)
	opts.Merge("maxBulkBytes", c.MaxBulkBytes)
	return resp.NewLimits(opts)
}
