// Package health serves the liveness and readiness endpoints of the metrics
// listener.
//
//   - /healthz answers 200 while the process can serve HTTP.
//   - /readyz runs every registered [Check] concurrently and answers 503
//     when a required check fails. A failing optional check only marks the
//     service as degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each probe.
const checkTimeout = 5 * time.Second

// Status values reported in responses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Check probes one dependency, such as the recognition engine or the report
// store.
type Check struct {
	// Name keys the result in the response (e.g. "engine", "reports").
	Name string

	// Probe returns nil when the dependency is usable. It must respect
	// context cancellation.
	Probe func(ctx context.Context) error

	// Optional checks cannot make the service unready. Fallback engines use
	// this: losing one reduces redundancy but recordings can still be scored.
	Optional bool
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Optional  bool   `json:"optional,omitempty"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checks are fixed at construction.
type Handler struct {
	checks []Check
	now    func() time.Time
}

// New returns a Handler evaluating checks on each /readyz request.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...), now: time.Now}
}

// Evaluate runs every check concurrently and summarises the results.
func (h *Handler) Evaluate(ctx context.Context) Report {
	results := make(map[string]CheckResult, len(h.checks))
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range h.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := h.now()
			err := c.Probe(cctx)
			res := CheckResult{
				Status:    StatusOK,
				LatencyMS: h.now().Sub(start).Milliseconds(),
				Optional:  c.Optional,
			}
			if err != nil {
				res.Status = StatusFail
				res.Error = err.Error()
			}
			mu.Lock()
			results[c.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: results}
	for _, r := range results {
		switch {
		case r.Status == StatusOK:
		case r.Optional:
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		default:
			rep.Status = StatusFail
		}
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
