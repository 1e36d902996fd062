// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package metrics contains the Prometheus collectors of the chatpay client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the chatpay collectors. It is separate from the default registry so that
	// embedding applications can choose whether to expose it.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatpay",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of backend API requests.",
		},
		[]string{"method", "route", "status"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatpay",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"method", "route"},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatpay",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total number of realtime events by direction and type.",
		},
		[]string{"direction", "type"},
	)

	realtimeReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatpay",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Total number of realtime reconnect attempts by outcome.",
		},
		[]string{"outcome"},
	)

	realtimeConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatpay",
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "Whether the realtime channel is currently connected.",
		},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatpay",
			Subsystem: "payments",
			Name:      "submitted_total",
			Help:      "Total number of payment submissions by route and outcome.",
		},
		[]string{"route", "success"},
	)
)

func init() {
	Registry.MustRegister(
		apiRequests,
		apiDuration,
		realtimeEvents,
		realtimeReconnects,
		realtimeConnected,
		payments,
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest records a finished backend request. Status 0 means the request failed
// before a response was received.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	apiRequests.WithLabelValues(method, route, statusLabel).Inc()
	apiDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRealtimeEvent counts an inbound ("in") or outbound ("out") realtime event.
func RecordRealtimeEvent(direction, eventType string) {
	realtimeEvents.WithLabelValues(direction, eventType).Inc()
}

// RecordReconnect counts a reconnect attempt. Outcome is one of attempt, success or gave_up.
func RecordReconnect(outcome string) {
	realtimeReconnects.WithLabelValues(outcome).Inc()
}

// SetRealtimeConnected updates the connection gauge.
func SetRealtimeConnected(connected bool) {
	if connected {
		realtimeConnected.Set(1)
	} else {
		realtimeConnected.Set(0)
	}
}

// RecordPayment counts a payment drawer submission.
func RecordPayment(route string, success bool) {
	payments.WithLabelValues(route, strconv.FormatBool(success)).Inc()
}
