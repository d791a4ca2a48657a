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

package dispatch

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/respd/respd/internal/rescue"
	"github.com/respd/respd/resp"
)

// Data 一条完整 Frame 的分发负载
//
// Raw 为 Frame 在线路上的原始字节 仅在本次回调期间有效
// 回调方如需留存 请先 copy 一份
type Data struct {
	ConnID  string
	Time    time.Time
	Dialect resp.Dialect
	Value   *resp.Value
	Raw     []byte
}

// ConnEvent 链接生命周期事件
type ConnEvent struct {
	ConnID     string
	Time       time.Time
	RemoteAddr string
	Reason     string
}

// ErrorEvent 错误通知
//
// 携带链接标识的错误(协议错误/回调 panic)以及 accept 错误都走此通道
// accept 错误的 ConnID 为空
type ErrorEvent struct {
	ConnID string
	Time   time.Time
	Err    error
}

type (
	DataFunc  func(Data)
	ConnFunc  func(ConnEvent)
	ErrorFunc func(ErrorEvent)

	// AuthFunc 认证钩子 返回是否放行
	//
	// 核心只负责路由 AUTH 凭据 具体策略由上层决定
	AuthFunc func(username, password string) bool
)

// Dispatcher 向上层暴露的类型化分发面
//
// 上层按数据类型挂载回调 每个 Frame 恰好命中一种类型
// 另有 AnyData 通配回调以及 Connected / Disconnected / Error 通知
//
// 回调在链接自身的 goroutine 中同步执行 同一条链接的 Frame
// 严格按到达顺序分发 回调耗时会阻塞该链接的读取(天然背压)
// 但不会影响其他链接 耗时操作应自行投递到独立的执行器
//
// 回调内的 panic 会被捕获并转换为一条 ErrorEvent 不中断链接
type Dispatcher struct {
	mut            sync.RWMutex
	onData         map[resp.DataType][]DataFunc
	onAny          []DataFunc
	onConnected    []ConnFunc
	onDisconnected []ConnFunc
	onError        []ErrorFunc
	auth           AuthFunc
}

// New 创建并返回 *Dispatcher 实例
func New() *Dispatcher {
	return &Dispatcher{
		onData: make(map[resp.DataType][]DataFunc),
	}
}

// OnData 挂载指定数据类型的回调
func (d *Dispatcher) OnData(t resp.DataType, f DataFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.onData[t] = append(d.onData[t], f)
}

// OnAnyData 挂载通配回调 任意类型的 Frame 均会触发
func (d *Dispatcher) OnAnyData(f DataFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.onAny = append(d.onAny, f)
}

// OnConnected 挂载链接建立回调
func (d *Dispatcher) OnConnected(f ConnFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.onConnected = append(d.onConnected, f)
}

// OnDisconnected 挂载链接断开回调
func (d *Dispatcher) OnDisconnected(f ConnFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.onDisconnected = append(d.onDisconnected, f)
}

// OnError 挂载错误通知回调
func (d *Dispatcher) OnError(f ErrorFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.onError = append(d.onError, f)
}

// SetAuthFunc 设置认证钩子 传入 nil 表示全部放行
func (d *Dispatcher) SetAuthFunc(f AuthFunc) {
	d.mut.Lock()
	defer d.mut.Unlock()

	d.auth = f
}

// EmitData 分发一个完整 Frame
//
// AUTH 形态的 Frame 先交由认证钩子裁决 拒绝时产生一条 ErrorEvent
// 但 Frame 本身依旧照常分发 拦截与否由上层策略决定
func (d *Dispatcher) EmitData(data Data) {
	d.mut.RLock()
	auth := d.auth
	fns := d.onData[data.Value.Type]
	any := d.onAny
	d.mut.RUnlock()

	if auth != nil {
		if username, password, ok := authCredentials(data.Value); ok {
			if !auth(username, password) {
				d.EmitError(ErrorEvent{
					ConnID: data.ConnID,
					Time:   data.Time,
					Err:    errors.Errorf("auth denied for user %q", username),
				})
			}
		}
	}

	for _, f := range fns {
		d.invokeData(f, data)
	}
	for _, f := range any {
		d.invokeData(f, data)
	}
}

// EmitConnected 分发链接建立事件
func (d *Dispatcher) EmitConnected(ev ConnEvent) {
	d.mut.RLock()
	fns := d.onConnected
	d.mut.RUnlock()

	for _, f := range fns {
		d.invokeConn(f, ev)
	}
}

// EmitDisconnected 分发链接断开事件
func (d *Dispatcher) EmitDisconnected(ev ConnEvent) {
	d.mut.RLock()
	fns := d.onDisconnected
	d.mut.RUnlock()

	for _, f := range fns {
		d.invokeConn(f, ev)
	}
}

// EmitError 分发错误通知
//
// 错误回调内的 panic 仅做兜底记录 不再递归产生新的 ErrorEvent
func (d *Dispatcher) EmitError(ev ErrorEvent) {
	d.mut.RLock()
	fns := d.onError
	d.mut.RUnlock()

	for _, f := range fns {
		func() {
			defer rescue.HandleCrash()
			f(ev)
		}()
	}
}

func (d *Dispatcher) invokeData(f DataFunc, data Data) {
	defer rescue.HandleCrashWith(func(r any) {
		d.EmitError(ErrorEvent{
			ConnID: data.ConnID,
			Time:   data.Time,
			Err:    errors.Errorf("data callback panic: %v", r),
		})
	})
	f(data)
}

func (d *Dispatcher) invokeConn(f ConnFunc, ev ConnEvent) {
	defer rescue.HandleCrashWith(func(r any) {
		d.EmitError(ErrorEvent{
			ConnID: ev.ConnID,
			Time:   ev.Time,
			Err:    errors.Errorf("conn callback panic: %v", r),
		})
	})
	f(ev)
}

// authCredentials 识别 AUTH 形态的 Frame 并提取凭据
//
// 客户端以 BulkString 数组发送命令
//
// * AUTH <password>: 两元素 用户名为空
// * AUTH <username> <password>: 三元素
func authCredentials(v *resp.Value) (string, string, bool) {
	if v.Type != resp.Array || len(v.Elems) < 2 || len(v.Elems) > 3 {
		return "", "", false
	}
	for _, e := range v.Elems {
		if e.Type != resp.BulkString {
			return "", "", false
		}
	}
	if !strings.EqualFold(string(v.Elems[0].Bulk), "AUTH") {
		return "", "", false
	}

	if len(v.Elems) == 2 {
		return "", string(v.Elems[1].Bulk), true
	}
	return string(v.Elems[1].Bulk), string(v.Elems[2].Bulk), true
}
