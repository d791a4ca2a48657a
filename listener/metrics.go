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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/respd/respd/common"
)

var (
	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "connected_clients",
			Help:      "Currently connected clients",
		},
	)

	acceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "accepted_connections_total",
			Help:      "Accepted connections total",
		},
	)

	acceptErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "accept_errors_total",
			Help:      "Accept errors total",
		},
	)

	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "frames_total",
			Help:      "Dispatched frames total",
		},
		[]string{"type"},
	)

	receivedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "received_bytes_total",
			Help:      "Received bytes total",
		},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "protocol_errors_total",
			Help:      "Protocol errors total",
		},
	)
)
