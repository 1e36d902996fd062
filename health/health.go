// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package health provides health checking for the pieces a chatpay client depends on.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	cpLog "github.com/chatpay/chatpay-go/util/log"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Report represents the overall health status.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Names returns the component names in alphabetical order.
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checker defines the interface for health checkers.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// Monitor runs a set of checkers.
type Monitor struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	log      cpLog.Logger
}

// NewMonitor creates a new health monitor. The logger may be nil.
func NewMonitor(log cpLog.Logger) *Monitor {
	if log == nil {
		log = cpLog.Noop
	}
	return &Monitor{
		checkers: make(map[string]Checker),
		log:      log,
	}
}

// AddChecker adds a health checker, replacing any checker with the same name.
func (hm *Monitor) AddChecker(checker Checker) {
	hm.mu.Lock()
	hm.checkers[checker.Name()] = checker
	hm.mu.Unlock()
}

// Check performs health checks on all registered checkers.
func (hm *Monitor) Check(ctx context.Context) Report {
	hm.mu.RLock()
	checkers := make(map[string]Checker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	components := make(map[string]ComponentHealth)
	overallStatus := StatusHealthy

	for name, checker := range checkers {
		health := checker.Check(ctx)
		components[name] = health
		if health.Status != StatusHealthy {
			hm.log.Debugf("%s is %s: %s", name, health.Status, health.Message)
		}

		if health.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if health.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return Report{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// HTTPHandler returns an HTTP handler for health checks.
func (hm *Monitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := hm.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

func newComponentHealth(status Status, message string, details map[string]any) ComponentHealth {
	return ComponentHealth{Status: status, Message: message, Timestamp: time.Now(), Details: details}
}

// timeProbe runs probe and reports how long it took. Successful probes slower than slowAfter
// are degraded. A zero slowAfter disables the latency check.
func timeProbe(ctx context.Context, slowAfter time.Duration, probe func(ctx context.Context) error) (Status, time.Duration, error) {
	start := time.Now()
	err := probe(ctx)
	latency := time.Since(start)
	switch {
	case err != nil:
		return StatusUnhealthy, latency, err
	case slowAfter > 0 && latency > slowAfter:
		return StatusDegraded, latency, nil
	default:
		return StatusHealthy, latency, nil
	}
}

// DatabaseChecker checks connectivity of the session database.
type DatabaseChecker struct {
	pool *pgxpool.Pool
	name string
	// SlowAfter is the query latency above which the database is reported as degraded.
	SlowAfter time.Duration
}

// NewDatabaseChecker creates a database health checker.
func NewDatabaseChecker(pool *pgxpool.Pool, name string) *DatabaseChecker {
	if name == "" {
		name = "database"
	}
	return &DatabaseChecker{pool: pool, name: name, SlowAfter: 100 * time.Millisecond}
}

func (dc *DatabaseChecker) Name() string {
	return dc.name
}

func (dc *DatabaseChecker) Check(ctx context.Context) ComponentHealth {
	status, latency, err := timeProbe(ctx, dc.SlowAfter, func(ctx context.Context) error {
		var one int
		return dc.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	})
	details := map[string]any{"latency": latency.String()}
	if err != nil {
		return newComponentHealth(status, fmt.Sprintf("session database query failed: %v", err), details)
	}
	stat := dc.pool.Stat()
	details["acquired"] = stat.AcquiredConns()
	details["idle"] = stat.IdleConns()
	details["max"] = stat.MaxConns()
	return newComponentHealth(status, "", details)
}

// ConnectionState is implemented by the realtime channel.
type ConnectionState interface {
	IsConnected() bool
}

// SessionState is implemented by chatpay.Client.
type SessionState interface {
	IsAuthenticated() bool
}

// ClientChecker reports a client as unhealthy when logged out and degraded when logged in
// without an open realtime channel.
type ClientChecker struct {
	session  SessionState
	realtime ConnectionState
	name     string
}

// NewClientChecker creates a client health checker.
func NewClientChecker(session SessionState, realtime ConnectionState, name string) *ClientChecker {
	if name == "" {
		name = "client"
	}
	return &ClientChecker{session: session, realtime: realtime, name: name}
}

func (cc *ClientChecker) Name() string {
	return cc.name
}

func (cc *ClientChecker) Check(ctx context.Context) ComponentHealth {
	if cc.session == nil || cc.realtime == nil {
		return newComponentHealth(StatusUnhealthy, "client is nil", nil)
	}
	loggedIn := cc.session.IsAuthenticated()
	connected := cc.realtime.IsConnected()
	details := map[string]any{"connected": connected, "logged_in": loggedIn}
	switch {
	case !loggedIn:
		return newComponentHealth(StatusUnhealthy, "not logged in", details)
	case !connected:
		return newComponentHealth(StatusDegraded, "logged in but realtime channel is disconnected", details)
	default:
		return newComponentHealth(StatusHealthy, "", details)
	}
}

// FuncChecker wraps a probe function that returns an error when the component is down, such
// as a backend or fullnode ping. Slow successful probes are reported as degraded.
type FuncChecker struct {
	name      string
	probe     func(ctx context.Context) error
	SlowAfter time.Duration
}

// NewFuncChecker creates a checker from a probe function.
func NewFuncChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe, SlowAfter: 2 * time.Second}
}

func (fc *FuncChecker) Name() string {
	return fc.name
}

func (fc *FuncChecker) Check(ctx context.Context) ComponentHealth {
	status, latency, err := timeProbe(ctx, fc.SlowAfter, fc.probe)
	var message string
	if err != nil {
		message = err.Error()
	}
	return newComponentHealth(status, message, map[string]any{"latency": latency.String()})
}
