// Package health serves liveness and readiness checks.
//
// Checks run in the background, one goroutine each. A check turns unhealthy
// after failureThreshold consecutive failures and healthy again after
// successThreshold consecutive passes, so one slow ping does not flap the
// endpoint. Endpoints only read the last outcome.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by *pgxpool.Pool and the redis idempotency store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts a Pinger to a CheckFunc.
func Ping(p Pinger) CheckFunc {
	return p.Ping
}

const (
	failureThreshold = 3
	successThreshold = 1
)

// runner is one registered check. The counters belong to the goroutine calling
// run; healthy and lastErr are read concurrently by the endpoints.
type runner struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails  int
	passes int
}

func newRunner(name string, timeout time.Duration, check CheckFunc) *runner {
	p := &runner{name: name, timeout: timeout, check: check}
	p.healthy.Store(true)
	return p
}

func (p *runner) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= successThreshold {
		p.healthy.Store(true)
	}
}

func (p *runner) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// Health holds the liveness and readiness checks of one process.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*runner
	readiness []*runner
	cancel    context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newRunner(name, timeout, check))
}

// AddReadinessCheck registers a check that decides whether the process
// should receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newRunner(name, timeout, check))
}

// Start runs every registered check now and then every interval until Stop
// or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := append(append([]*runner(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range all {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop ends the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch, set after startup and cleared
// when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and every readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(failures(h.snapshot(&h.readiness))) == 0
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	write(w, failed)
}

func (h *Health) snapshot(list *[]*runner) []*runner {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*runner(nil), *list...)
}

func failures(runners []*runner) map[string]string {
	out := make(map[string]string)
	for _, p := range runners {
		if p.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		out[p.name] = msg
	}
	return out
}

// write renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func write(w http.ResponseWriter, failed map[string]string) {
	code, status := http.StatusOK, "ok"
	if len(failed) > 0 {
		code, status = http.StatusServiceUnavailable, "unhealthy"
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(failed) == 0 {
			return
		}
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
