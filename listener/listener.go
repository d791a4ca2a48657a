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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/respd/respd/confengine"
	"github.com/respd/respd/dispatch"
	"github.com/respd/respd/internal/rescue"
	"github.com/respd/respd/logger"
)

// Listener RESP 服务端监听器
//
// 负责 accept 循环 链接注册表以及链接的生命周期操作
// 每条被接受的链接在 accept 时分配一个全局唯一且永不复用的 identity
// 后续的枚举 / 定向断开 / 所有向上通知均以该 identity 关联
type Listener struct {
	cfg Config
	dp  *dispatch.Dispatcher
	reg *registry

	mut     sync.Mutex
	ln      net.Listener
	running bool
	stopped atomic.Bool

	// pending 记录已入表但 Connected 事件尚未发出的链接
	//
	// Stop 在清场前会先等待这些事件全部发出 保证同一 identity 的
	// Disconnected 永远排在 Connected 之后 且 Stop 返回后不再有 Connected
	pending sync.WaitGroup
}

// New 创建并返回 *Listener 实例
func New(conf *confengine.Config, dp *dispatch.Dispatcher) (*Listener, error) {
	var cfg Config
	if err := conf.UnpackChild("listener", &cfg); err != nil {
		return nil, err
	}
	cfg.Validate()

	return &Listener{
		cfg: cfg,
		dp:  dp,
		reg: newRegistry(),
	}, nil
}

// Start 绑定监听地址并启动 accept 循环 重复调用为 no-op
//
// 绑定失败同步返回错误
func (l *Listener) Start() error {
	l.mut.Lock()
	defer l.mut.Unlock()

	if l.running {
		return nil
	}

	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", l.cfg.Address)
	}

	l.ln = ln
	l.running = true
	l.stopped.Store(false)
	go l.acceptLoop(ln)

	logger.Infof("listener started on %s", ln.Addr())
	return nil
}

// Stop 停止 accept 并关闭所有存量链接 幂等
//
// 返回后不会再产生任何 Connected / Data 通知
// 每条被关闭的链接产生一条 Disconnected(reason="server shutdown")
func (l *Listener) Stop() error {
	l.mut.Lock()
	if !l.running {
		l.mut.Unlock()
		return nil
	}
	l.running = false
	l.stopped.Store(true)
	ln := l.ln
	l.ln = nil
	l.mut.Unlock()

	var errs error
	if err := ln.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	// 与 register 竞争的链接可能已经入表但还没发出 Connected
	// 先等待其落定 再统一清场
	l.pending.Wait()

	now := time.Now()
	for _, c := range l.reg.drain() {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
		connectedClients.Dec()
		l.dp.EmitDisconnected(dispatch.ConnEvent{
			ConnID:     c.id,
			Time:       now,
			RemoteAddr: c.remoteAddr,
			Reason:     "server shutdown",
		})
	}

	logger.Infof("listener stopped")
	return errs
}

// Address 返回实际绑定的地址 未启动时为空字符串
func (l *Listener) Address() string {
	l.mut.Lock()
	defer l.mut.Unlock()

	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// ConnectedCount 返回当前链接数
func (l *Listener) ConnectedCount() int {
	return l.reg.count()
}

// ListConnections 返回所有链接记录的快照
func (l *Listener) ListConnections() []ClientRecord {
	return l.reg.snapshot()
}

// Disconnect 定向断开指定链接 返回是否找到该链接
//
// 被断开的链接产生一条 Disconnected(reason="disconnected by server")
// identity 不存在(包括已经关闭的链接)时返回 false 且不产生任何事件
func (l *Listener) Disconnect(id string) bool {
	c, ok := l.reg.remove(id)
	if !ok {
		return false
	}

	c.conn.Close()
	connectedClients.Dec()
	l.dp.EmitDisconnected(dispatch.ConnEvent{
		ConnID:     c.id,
		Time:       time.Now(),
		RemoteAddr: c.remoteAddr,
		Reason:     "disconnected by server",
	})
	return true
}

// SetName 为指定链接设置名字 供上层实现 CLIENT SETNAME 一类的命令
func (l *Listener) SetName(id, name string) bool {
	c, ok := l.reg.get(id)
	if !ok {
		return false
	}
	c.setName(name)
	return true
}

func (l *Listener) acceptLoop(ln net.Listener) {
	defer rescue.HandleCrash()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			// 瞬时 accept 错误不影响存量链接 记录后继续
			acceptErrorsTotal.Inc()
			l.dp.EmitError(dispatch.ErrorEvent{
				Time: time.Now(),
				Err:  errors.WithMessage(err, "accept"),
			})
			logger.Warnf("accept failed: %v", err)
			continue
		}

		c := newClient(uuid.New().String(), conn, l)
		if !l.register(c) {
			// Stop 已经开始 放弃这条链接
			c.fr.Free()
			conn.Close()
			return
		}
		acceptedTotal.Inc()
		connectedClients.Inc()

		l.dp.EmitConnected(dispatch.ConnEvent{
			ConnID:     c.id,
			Time:       c.connectedAt,
			RemoteAddr: c.remoteAddr,
		})
		l.pending.Done()
		go c.loop()
	}
}

// register 在 running 状态下注册链接
//
// 与 Stop 使用同一把锁 保证不会出现 Stop 清场之后才入表的漏网链接
// pending 的累加与入表同锁完成 使 Stop 必定等到本链接的 Connected
// 事件发出之后才会开始 drain
func (l *Listener) register(c *client) bool {
	l.mut.Lock()
	defer l.mut.Unlock()

	if !l.running {
		return false
	}
	l.reg.add(c)
	l.pending.Add(1)
	return true
}

// finalize 链接主循环退出后的收尾
//
// 注册表摘除成功代表本方胜出 需要负责关闭 socket 并发出 Disconnected
// 摘除失败说明 Stop 或者 Disconnect 已经处理过 不再重复发事件
func (l *Listener) finalize(c *client, reason string) {
	if _, ok := l.reg.remove(c.id); !ok {
		return
	}

	c.conn.Close()
	connectedClients.Dec()
	l.dp.EmitDisconnected(dispatch.ConnEvent{
		ConnID:     c.id,
		Time:       time.Now(),
		RemoteAddr: c.remoteAddr,
		Reason:     reason,
	})
}
