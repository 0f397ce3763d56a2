// Package health exposes Kubernetes-style liveness and readiness probes.
//
// Probes run on their own tickers in the background; HTTP handlers only read
// the last observed state and never execute a check inline. A probe flips to
// unhealthy after failThreshold consecutive failures and back to healthy
// after okThreshold consecutive successes, so a single slow database ping or
// a one-off provider hiccup does not bounce the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failThreshold = 3
	okThreshold   = 1
)

type probeKind int

const (
	liveness probeKind = iota
	readiness
)

// probe is the runtime state of one registered check. The streak counters
// are touched only by the single loop goroutine; state and lastErr are read
// by HTTP handlers and therefore atomic.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	state   atomic.Bool
	lastErr atomic.Pointer[error]

	failStreak int
	okStreak   int
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.okStreak = 0
		if p.failStreak++; p.failStreak >= failThreshold {
			p.state.Store(false)
		}
		return
	}
	p.failStreak = 0
	if p.okStreak++; p.okStreak >= okThreshold {
		p.state.Store(true)
	}
}

func (p *probe) report() string {
	if p.state.Load() {
		return "ok"
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error()
	}
	return "unhealthy"
}

// Health tracks the registered probes and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*probe
	reads  []*probe
	cancel context.CancelFunc
}

// New returns a Health in the not-ready state. Call SetReady(true) after the
// service finishes wiring.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe on /livez. Liveness answers "is this
// process stuck": goroutine leaks, runaway GC pauses.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(liveness, name, timeout, check)
}

// AddReadinessCheck registers a probe on /readyz. Readiness answers "can this
// process serve a quote right now": database reachable, live rates available.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(readiness, name, timeout, check)
}

func (h *Health) add(kind probeKind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{name: name, timeout: timeout, check: check}
	// Optimistic until the first observation lands.
	p.state.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == liveness {
		h.live = append(h.live, p)
		return
	}
	h.reads = append(h.reads, p)
}

// Start launches one loop goroutine per registered probe. Register all
// probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := append(append([]*probe{}, h.live...), h.reads...)
	h.mu.Unlock()

	for _, p := range all {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.observe(ctx)
		}
	}
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it false
// before draining so the load balancer stops sending new work.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.reads {
		if !p.state.Load() {
			return false
		}
	}
	return true
}

// Stop cancels the probe loops. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while every liveness probe passes, 503
// with the per-probe state otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe{}, h.live...)
	h.mu.RUnlock()

	writeStatus(w, snapshot(probes), healthyAll(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe{}, h.reads...)
	h.mu.RUnlock()

	checks := snapshot(probes)
	ok := healthyAll(probes)
	if !h.ready.Load() {
		checks["gate"] = "service is not ready"
		ok = false
	}
	writeStatus(w, checks, ok)
}

// snapshot reports every probe by name, healthy ones as "ok", so the probe
// output is useful beyond spotting failures.
func snapshot(probes []*probe) map[string]string {
	checks := make(map[string]string, len(probes))
	for _, p := range probes {
		checks[p.name] = p.report()
	}
	return checks
}

func healthyAll(probes []*probe) bool {
	for _, p := range probes {
		if !p.state.Load() {
			return false
		}
	}
	return true
}

func writeStatus(w http.ResponseWriter, checks map[string]string, ok bool) {
	w.Header().Set("Content-Type", "application/json")

	body := statusBody{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ok {
		body.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
