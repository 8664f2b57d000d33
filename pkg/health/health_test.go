package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, fn http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w.Code, b
}

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runN(p *runner, n int) {
	for range n {
		p.run(context.Background())
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestLiveness(t *testing.T) {
	h := New()
	h.AddLivenessCheck("ok", time.Second, pass)
	h.AddLivenessCheck("db", time.Second, fail("connection refused"))

	code, b := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks start healthy")
	assert.Equal(t, "ok", b.Status)
	assert.Nil(t, b.Checks)

	runN(h.liveness[1], failureThreshold-1)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below threshold")

	runN(h.liveness[1], 1)
	code, b = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, b.Checks)
}

func TestReadiness(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, Ping(pinger{}))
	h.AddReadinessCheck("redis", time.Second, Ping(pinger{err: errors.New("dial tcp: refused")}))

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, b.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(h.readiness[1], failureThreshold)
	code, b = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "dial tcp: refused"}, b.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, b = serve(t, h.ReadyEndpoint)
	assert.Len(t, b.Checks, 2)
}

func TestCheckRecovers(t *testing.T) {
	down := true
	p := newRunner("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	assert.Nil(t, p.err())

	runN(p, failureThreshold)
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	down = false
	runN(p, successThreshold)
	assert.True(t, p.healthy.Load())
	assert.NoError(t, p.err())
}

func TestCheckTimeout(t *testing.T) {
	p := newRunner("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	p.run(context.Background())
	assert.ErrorIs(t, p.err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("fail", time.Second, fail("err"))
	h.AddReadinessCheck("pass", time.Second, pass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
		return w.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestRuntimeChecks(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
