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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/respd/respd/resp"
)

func parseFrame(t *testing.T, input string) *resp.Value {
	v, n, err := resp.Parse([]byte(input), resp.DefaultLimits())
	assert.NoError(t, err)
	assert.Equal(t, len(input), n)
	return &v
}

func newData(v *resp.Value) Data {
	return Data{
		ConnID:  "conn-1",
		Time:    time.Now(),
		Dialect: resp.DialectRESP2,
		Value:   v,
		Raw:     v.Raw(),
	}
}

func TestDispatchByType(t *testing.T) {
	d := New()

	var integers []int64
	var anyTypes []resp.DataType
	var strs []string

	d.OnData(resp.Integer, func(data Data) {
		integers = append(integers, data.Value.Int)
	})
	d.OnData(resp.SimpleString, func(data Data) {
		strs = append(strs, data.Value.Str)
	})
	d.OnAnyData(func(data Data) {
		anyTypes = append(anyTypes, data.Value.Type)
	})

	d.EmitData(newData(parseFrame(t, ":42\r\n")))
	d.EmitData(newData(parseFrame(t, "+OK\r\n")))
	d.EmitData(newData(parseFrame(t, "$3\r\nfoo\r\n")))

	assert.Equal(t, []int64{42}, integers)
	assert.Equal(t, []string{"OK"}, strs)
	assert.Equal(t, []resp.DataType{resp.Integer, resp.SimpleString, resp.BulkString}, anyTypes)
}

func TestDispatchConnEvents(t *testing.T) {
	d := New()

	var events []string
	d.OnConnected(func(ev ConnEvent) {
		events = append(events, "connected:"+ev.ConnID)
	})
	d.OnDisconnected(func(ev ConnEvent) {
		events = append(events, "disconnected:"+ev.Reason)
	})

	d.EmitConnected(ConnEvent{ConnID: "c1", RemoteAddr: "127.0.0.1:12345"})
	d.EmitDisconnected(ConnEvent{ConnID: "c1", Reason: "peer closed"})

	assert.Equal(t, []string{"connected:c1", "disconnected:peer closed"}, events)
}

// TestDispatchCallbackPanic 回调 panic 转换为 ErrorEvent 不影响后续回调
func TestDispatchCallbackPanic(t *testing.T) {
	d := New()

	var errs []error
	var fired bool
	d.OnError(func(ev ErrorEvent) {
		errs = append(errs, ev.Err)
	})
	d.OnData(resp.Integer, func(data Data) {
		panic("boom")
	})
	d.OnData(resp.Integer, func(data Data) {
		fired = true
	})

	d.EmitData(newData(parseFrame(t, ":1\r\n")))

	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "data callback panic")
	assert.True(t, fired)
}

func TestDispatchAuthHook(t *testing.T) {
	d := New()

	var errs []error
	var seen []resp.DataType
	var gotUser, gotPass string
	d.OnError(func(ev ErrorEvent) {
		errs = append(errs, ev.Err)
	})
	d.OnAnyData(func(data Data) {
		seen = append(seen, data.Value.Type)
	})
	d.SetAuthFunc(func(username, password string) bool {
		gotUser, gotPass = username, password
		return password == "sesame"
	})

	// AUTH <username> <password> 通过
	d.EmitData(newData(parseFrame(t, "*3\r\n$4\r\nAUTH\r\n$5\r\nadmin\r\n$6\r\nsesame\r\n")))
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "sesame", gotPass)
	assert.Empty(t, errs)

	// AUTH <password> 拒绝 产生 ErrorEvent 但 Frame 依旧分发
	d.EmitData(newData(parseFrame(t, "*2\r\n$4\r\nAUTH\r\n$5\r\nwrong\r\n")))
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "auth denied")

	// 非 AUTH Frame 不触发钩子
	gotUser, gotPass = "", ""
	d.EmitData(newData(parseFrame(t, "*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n")))
	assert.Empty(t, gotUser)
	assert.Len(t, seen, 3)
}

func TestDispatchNoAuthHook(t *testing.T) {
	d := New()

	var errs []error
	var count int
	d.OnError(func(ev ErrorEvent) {
		errs = append(errs, ev.Err)
	})
	d.OnAnyData(func(data Data) {
		count++
	})

	// 未设置钩子 一律放行
	d.EmitData(newData(parseFrame(t, "*2\r\n$4\r\nAUTH\r\n$6\r\nsecret\r\n")))
	assert.Empty(t, errs)
	assert.Equal(t, 1, count)
}

func TestDispatchAllKinds(t *testing.T) {
	frames := map[resp.DataType]string{
		resp.SimpleString:   "+OK\r\n",
		resp.Error:          "-ERR\r\n",
		resp.Integer:        ":1\r\n",
		resp.BulkString:     "$3\r\nfoo\r\n",
		resp.Null:           "$-1\r\n",
		resp.Array:          "*1\r\n:1\r\n",
		resp.Double:         ",1.5\r\n",
		resp.Boolean:        "#f\r\n",
		resp.BigNumber:      "(12345678901234567890\r\n",
		resp.BlobError:      "!3\r\nERR\r\n",
		resp.VerbatimString: "=8\r\ntxt:abcd\r\n",
		resp.Map:            "%1\r\n+k\r\n:1\r\n",
		resp.Set:            "~1\r\n:1\r\n",
		resp.Attribute:      "|1\r\n+k\r\n:1\r\n",
		resp.Push:           ">1\r\n+m\r\n",
	}

	d := New()
	hits := make(map[resp.DataType]int)
	for _, dt := range resp.DataTypes() {
		dt := dt
		d.OnData(dt, func(data Data) {
			assert.Equal(t, dt, data.Value.Type)
			hits[dt]++
		})
	}

	for _, input := range frames {
		d.EmitData(newData(parseFrame(t, input)))
	}

	assert.Len(t, hits, len(frames))
	for dt, n := range hits {
		assert.Equal(t, 1, n, "type=%s", dt)
	}
}
