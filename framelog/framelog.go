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

package framelog

import (
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/respd/respd/confengine"
	"github.com/respd/respd/dispatch"
	"github.com/respd/respd/internal/json"
)

type Config struct {
	Enabled      bool   `config:"enabled"`
	Console      bool   `config:"console"`
	Filename     string `config:"filename"`
	MaxSize      int    `config:"maxSize"` // unit: MB
	MaxAge       int    `config:"maxAge"`  // unit: days
	MaxBackups   int    `config:"maxBackups"`
	PreviewBytes int    `config:"previewBytes"`
}

func (c *Config) Validate() {
	if c.Filename == "" {
		c.Filename = "respd.frames"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.PreviewBytes <= 0 {
		c.PreviewBytes = 64
	}
}

// FrameLog 入站 Frame 审计日志 按行写入 JSON 支持文件滚动
//
// 负载只落预览片段 完整字节不落盘 避免日志体积被大 value 撑爆
type FrameLog struct {
	mut     sync.Mutex
	wr      io.WriteCloser
	encoder json.Encoder
	cfg     Config
}

// New 创建并返回 FrameLog 实例
//
// 当 .Enabled 为 false 时会返回空指针 调用方需先判断
func New(conf *confengine.Config) (*FrameLog, error) {
	var cfg Config
	if err := conf.UnpackChild("framelog", &cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.Validate()

	var wr io.WriteCloser
	switch {
	case cfg.Console:
		wr = os.Stdout
	default:
		wr = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			LocalTime:  true,
		}
	}

	return &FrameLog{
		wr:      wr,
		cfg:     cfg,
		encoder: json.NewEncoder(wr),
	}, nil
}

// Sink 记录一条分发通知 可被多条链接的 goroutine 并发调用
func (fl *FrameLog) Sink(data dispatch.Data) error {
	type R struct {
		Time    string `json:"time"`
		ConnID  string `json:"connId"`
		Dialect string `json:"dialect"`
		Type    string `json:"type"`
		Size    int    `json:"size"`
		Preview string `json:"preview"`
	}

	preview := data.Raw
	if len(preview) > fl.cfg.PreviewBytes {
		preview = preview[:fl.cfg.PreviewBytes]
	}

	fl.mut.Lock()
	defer fl.mut.Unlock()

	return fl.encoder.Encode(R{
		Time:    data.Time.Format(time.RFC3339Nano),
		ConnID:  data.ConnID,
		Dialect: string(data.Dialect),
		Type:    string(data.Value.Type),
		Size:    len(data.Raw),
		Preview: strconv.Quote(string(preview)),
	})
}

func (fl *FrameLog) Close() {
	fl.wr.Close()
}
