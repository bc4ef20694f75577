package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc tests one dependency; a nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker backs /healthz and /readyz. The service is ready once
// recovery has finished and every registered dependency check passes.
type HealthChecker struct {
	ready    atomic.Bool
	sequence atomic.Int64
	started  time.Time
	timeout  time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		started: time.Now(),
		timeout: 2 * time.Second,
		checks:  make(map[string]CheckFunc),
	}
}

// AddCheck registers a dependency check run on every readiness request.
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	h.checks[name] = fn
	h.mu.Unlock()
}

func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

// SetSequence records the last committed sequence for /readyz.
func (h *HealthChecker) SetSequence(seq int64) { h.sequence.Store(seq) }

func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

type healthBody struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime,omitempty"`
	Sequence int64             `json:"sequence,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, healthBody{
		Status: "alive",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeHealth(w, http.StatusServiceUnavailable, healthBody{Status: "not_ready"})
		return
	}
	failures := h.runChecks(r.Context())
	if len(failures) > 0 {
		writeHealth(w, http.StatusServiceUnavailable, healthBody{Status: "degraded", Checks: failures})
		return
	}
	writeHealth(w, http.StatusOK, healthBody{Status: "ready", Sequence: h.sequence.Load()})
}

// runChecks returns the failing checks by name.
func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var failures map[string]string
	for _, name := range names {
		h.mu.RLock()
		fn := h.checks[name]
		h.mu.RUnlock()
		if err := fn(ctx); err != nil {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[name] = err.Error()
		}
	}
	return failures
}

func writeHealth(w http.ResponseWriter, code int, body healthBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
