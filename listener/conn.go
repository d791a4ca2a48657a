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
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/respd/respd/common"
	"github.com/respd/respd/dispatch"
	"github.com/respd/respd/internal/fasttime"
	"github.com/respd/respd/internal/rescue"
	"github.com/respd/respd/logger"
	"github.com/respd/respd/resp"
)

// client 单条链接的服务端视图 每条链接由独立的 goroutine 驱动
//
// 状态机 Read -> Drain -> Dispatch 循环
//
// * Read: 阻塞等待 socket 数据 读到 0 字节即对端关闭
// * Drain: 将新字节追加至 FrameReader 并持续提取完整 Frame
// * Dispatch: 每提取一个 Frame 同步分发一次 同链接严格保序
//
// 缓冲区 / 解析游标 / 协议版本均为链接私有 不与其他链接共享
// 仅 record 快照字段(name/dialect/stats)受小锁保护供管理端读取
type client struct {
	id          string
	conn        net.Conn
	remoteAddr  string
	connectedAt time.Time
	fr          *resp.FrameReader
	ln          *Listener

	mut      sync.RWMutex
	name     string
	dialect  resp.Dialect
	frames   uint64
	bytes    uint64
	activeAt int64
}

func newClient(id string, conn net.Conn, ln *Listener) *client {
	return &client{
		id:          id,
		conn:        conn,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		fr:          resp.NewFrameReader(ln.cfg.Limits(), ln.cfg.MaxBufferBytes),
		ln:          ln,
		dialect:     resp.DialectRESP2,
		activeAt:    fasttime.UnixTimestamp(),
	}
}

func (c *client) record() ClientRecord {
	c.mut.RLock()
	defer c.mut.RUnlock()

	return ClientRecord{
		ID:          c.id,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
		Name:        c.name,
		Dialect:     c.dialect,
		Frames:      c.frames,
		Bytes:       c.bytes,
	}
}

func (c *client) setName(name string) {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.name = name
}

func (c *client) getDialect() resp.Dialect {
	c.mut.RLock()
	defer c.mut.RUnlock()

	return c.dialect
}

// upgradeDialect 收到 RESP3 扩展类型标记的 Frame 后升级协议版本 不可逆
func (c *client) upgradeDialect() {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.dialect = resp.DialectRESP3
}

func (c *client) touch(frames, n uint64) {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.frames += frames
	c.bytes += n
	c.activeAt = fasttime.UnixTimestamp()
}

// loop 链接主循环 退出即代表链接进入终止态
//
// 退出原因分为四类
//
// * 对端关闭: reason = "peer closed"
// * 传输层错误: reason 为具体错误信息
// * 协议错误: reason 带 "protocol error" 前缀 同时产生 ErrorEvent
// * 缓冲溢出: reason = "buffer overflow" 同时产生 ErrorEvent
// * 服务端关闭(Stop/踢出): socket 已被摘除方关闭 本方仅负责退出
func (c *client) loop() {
	defer rescue.HandleCrash()

	buf := make([]byte, common.ReadBlockSize)
	var reason string

loop:
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			receivedBytesTotal.Add(float64(n))
			c.touch(0, uint64(n))

			if aerr := c.fr.Append(buf[:n]); aerr != nil {
				protocolErrorsTotal.Inc()
				c.ln.dp.EmitError(dispatch.ErrorEvent{
					ConnID: c.id,
					Time:   time.Now(),
					Err:    aerr,
				})
				reason = "buffer overflow"
				break loop
			}

			if derr := c.drain(); derr != nil {
				reason = derr.Error()
				break loop
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				reason = "peer closed"
			case errors.Is(err, net.ErrClosed):
				// socket 已被 Stop 或者管理端关闭 事件由摘除方负责
				reason = "server shutdown"
			default:
				reason = err.Error()
			}
			break loop
		}
	}

	c.fr.Free()
	c.ln.finalize(c, reason)
}

// drain 持续从 FrameReader 中提取完整 Frame 并逐个分发
//
// 返回非 nil 错误代表流内出现协议错误 链接无法恢复
// RESP 没有同步标记 任何 resync 尝试都不可靠 唯一正确动作是关闭
func (c *client) drain() error {
	for {
		v, n, err := c.fr.TryNext()
		if errors.Is(err, io.ErrShortBuffer) {
			return nil
		}
		if err != nil {
			protocolErrorsTotal.Inc()
			werr := errors.WithMessage(err, "protocol error")
			c.ln.dp.EmitError(dispatch.ErrorEvent{
				ConnID: c.id,
				Time:   time.Now(),
				Err:    werr,
			})
			logger.Warnf("connection %s: %v", c.id, werr)
			return werr
		}

		// 按顶层 Frame 的类型标记判断 RESP3 标记的 Null(如 "~-1\r\n")同样触发升级
		if strings.IndexByte(",#(!=%~|>", v.Raw()[0]) >= 0 && c.getDialect() == resp.DialectRESP2 {
			c.upgradeDialect()
		}
		c.touch(1, 0)
		framesTotal.WithLabelValues(string(v.Type)).Inc()

		// Stop 之后不再产生任何 Data 通知
		if !c.ln.stopped.Load() {
			c.ln.dp.EmitData(dispatch.Data{
				ConnID:  c.id,
				Time:    time.Now(),
				Dialect: c.getDialect(),
				Value:   &v,
				Raw:     v.Raw(),
			})
		}

		// 分发完成后才推进游标 期间 Raw 引用的缓冲字节保持有效
		c.fr.Advance(n)
	}
}
