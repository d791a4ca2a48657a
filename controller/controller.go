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

package controller

import (
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/respd/respd/common"
	"github.com/respd/respd/confengine"
	"github.com/respd/respd/dispatch"
	"github.com/respd/respd/framelog"
	"github.com/respd/respd/internal/json"
	"github.com/respd/respd/internal/pubsub"
	"github.com/respd/respd/listener"
	"github.com/respd/respd/logger"
	"github.com/respd/respd/server"
)

type Config struct {
	// Auth 静态认证配置 启用后安装认证钩子
	//
	// 核心只负责路由 AUTH 凭据并裁决 放行与否的回复由命令层处理
	Auth struct {
		Enabled  bool   `config:"enabled"`
		Username string `config:"username"`
		Password string `config:"password"`
	} `config:"auth"`
}

// Controller 负责拼装并驱动各个组件
//
// 数据通路: socket -> listener -> resp -> dispatch -> {framelog, watch, metrics}
type Controller struct {
	cfg       Config
	buildInfo common.BuildInfo

	dp  *dispatch.Dispatcher
	ln  *listener.Listener
	fl  *framelog.FrameLog
	svr *server.Server

	frameBus *pubsub.PubSub
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}

	if opts.Filename == "" {
		opts.Filename = "respd.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}

	logger.SetOptions(opts)
	return nil
}

func New(conf *confengine.Config, buildInfo common.BuildInfo) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	dp := dispatch.New()
	ln, err := listener.New(conf, dp)
	if err != nil {
		return nil, err
	}

	fl, err := framelog.New(conf)
	if err != nil {
		return nil, err
	}

	svr, err := server.New(conf)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.UnpackChild("controller", &cfg); err != nil {
		return nil, err
	}

	return &Controller{
		cfg:       cfg,
		buildInfo: buildInfo,
		dp:        dp,
		ln:        ln,
		fl:        fl,
		svr:       svr,
		frameBus:  pubsub.New(),
	}, nil
}

// Dispatcher 返回分发面 供上层(命令层)挂载业务回调
func (c *Controller) Dispatcher() *dispatch.Dispatcher {
	return c.dp
}

func (c *Controller) Start() error {
	c.setupDispatch()
	c.setupServer()

	if c.svr != nil {
		go func() {
			err := c.svr.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("failed to start server: %v", err)
			}
		}()
	}

	return c.ln.Start()
}

func (c *Controller) Stop() error {
	var errs error
	if err := c.ln.Stop(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.svr != nil {
		if err := c.svr.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if c.fl != nil {
		c.fl.Close()
	}
	return errs
}

// Reload 热加载配置 目前支持 logger 级别与输出的调整
//
// 监听地址等拓扑变更需要重启进程才会生效
func (c *Controller) Reload(conf *confengine.Config) error {
	return setupLogger(conf)
}

// setupDispatch 挂载内置的分发消费者
//
// * 生命周期与错误事件落运行日志
// * 每个 Frame 推送至 watch 总线 供管理端实时观察
// * framelog 审计日志(如启用)
// * 认证钩子(如启用)
func (c *Controller) setupDispatch() {
	c.dp.OnConnected(func(ev dispatch.ConnEvent) {
		logger.Infof("client connected: id=%s addr=%s", ev.ConnID, ev.RemoteAddr)
	})
	c.dp.OnDisconnected(func(ev dispatch.ConnEvent) {
		logger.Infof("client disconnected: id=%s addr=%s reason=%s", ev.ConnID, ev.RemoteAddr, ev.Reason)
	})
	c.dp.OnError(func(ev dispatch.ErrorEvent) {
		logger.Warnf("dispatch error: id=%s err=%v", ev.ConnID, ev.Err)
	})

	c.dp.OnAnyData(func(data dispatch.Data) {
		c.publishFrame(data)
		if c.fl != nil {
			if err := c.fl.Sink(data); err != nil {
				logger.Errorf("failed to sink frame: %v", err)
			}
		}
	})

	if c.cfg.Auth.Enabled {
		username := c.cfg.Auth.Username
		password := c.cfg.Auth.Password
		c.dp.SetAuthFunc(func(u, p string) bool {
			return u == username && p == password
		})
	}
}

func (c *Controller) publishFrame(data dispatch.Data) {
	if c.frameBus.Num() == 0 {
		return
	}

	type R struct {
		Time    string `json:"time"`
		ConnID  string `json:"connId"`
		Dialect string `json:"dialect"`
		Type    string `json:"type"`
		Size    int    `json:"size"`
	}
	b, err := json.Marshal(R{
		Time:    data.Time.Format("2006-01-02 15:04:05.000"),
		ConnID:  data.ConnID,
		Dialect: string(data.Dialect),
		Type:    string(data.Value.Type),
		Size:    len(data.Raw),
	})
	if err != nil {
		return
	}
	c.frameBus.Publish(b)
}
