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
	"sync"
	"time"

	"github.com/respd/respd/resp"
)

// ClientRecord 单条链接的快照视图
type ClientRecord struct {
	ID          string       `json:"id"`
	RemoteAddr  string       `json:"remoteAddr"`
	ConnectedAt time.Time    `json:"connectedAt"`
	Name        string       `json:"name,omitempty"`
	Dialect     resp.Dialect `json:"dialect"`
	Frames      uint64       `json:"frames"`
	Bytes       uint64       `json:"bytes"`
}

// registry 链接注册表 identity -> *client
//
// 唯一的跨 goroutine 共享结构 锁内只做增删查和拷贝 不跨越任何 IO
// remove 的成败同时裁决了 Disconnected 事件的归属:
// 自然退出 / 管理端踢出 / 整体 Stop 三条路径中 谁先摘除谁负责发事件
// 保证每条链接的 Disconnected 恰好发出一次
type registry struct {
	mut     sync.Mutex
	clients map[string]*client
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[string]*client),
	}
}

func (r *registry) add(c *client) {
	r.mut.Lock()
	defer r.mut.Unlock()

	r.clients[c.id] = c
}

func (r *registry) remove(id string) (*client, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()

	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return c, ok
}

func (r *registry) get(id string) (*client, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()

	c, ok := r.clients[id]
	return c, ok
}

func (r *registry) count() int {
	r.mut.Lock()
	defer r.mut.Unlock()

	return len(r.clients)
}

// snapshot 拷贝出当前所有链接的记录
func (r *registry) snapshot() []ClientRecord {
	r.mut.Lock()
	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mut.Unlock()

	records := make([]ClientRecord, 0, len(clients))
	for _, c := range clients {
		records = append(records, c.record())
	}
	return records
}

// drain 一次性摘除所有链接 用于整体 Stop
func (r *registry) drain() []*client {
	r.mut.Lock()
	defer r.mut.Unlock()

	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*client)
	return clients
}
