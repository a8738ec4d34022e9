package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Report {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Check{Name: "engine", Probe: failing("closed")})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 regardless of checks", rec.Code)
	}
	if rep := decode(t, rec); rep.Status != StatusOK || len(rep.Checks) != 0 {
		t.Errorf("report = %+v, want plain ok", rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "all pass",
			checks: []Check{
				{Name: "engine", Probe: ok},
				{Name: "reports", Probe: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "required failure",
			checks: []Check{
				{Name: "engine", Probe: failing("stt: engine closed")},
				{Name: "reports", Probe: ok},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantFailed: []string{"engine"},
		},
		{
			name: "optional failure degrades",
			checks: []Check{
				{Name: "engine", Probe: ok},
				{Name: "engine:whisper-server", Probe: failing("circuit open"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantFailed: []string{"engine:whisper-server"},
		},
		{
			name: "required failure wins over degraded",
			checks: []Check{
				{Name: "reports", Probe: failing("database is closed")},
				{Name: "engine:exec", Probe: failing("circuit open"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantFailed: []string{"reports", "engine:exec"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checks...).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			rep := decode(t, rec)
			if rep.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", rep.Status, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.checks) {
				t.Errorf("checks = %d, want %d", len(rep.Checks), len(tt.checks))
			}
			for _, name := range tt.wantFailed {
				r := rep.Checks[name]
				if r.Status != StatusFail || r.Error == "" {
					t.Errorf("check %q = %+v, want a failure with an error", name, r)
				}
			}
		})
	}
}

func TestEvaluate_RunsChecksConcurrently(t *testing.T) {
	t.Parallel()
	const n = 4
	arrived := make(chan struct{}, n)
	release := make(chan struct{})
	checks := make([]Check, n)
	for i := range checks {
		checks[i] = Check{Name: string(rune('a' + i)), Probe: func(ctx context.Context) error {
			arrived <- struct{}{}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}
	}
	h := New(checks...)

	done := make(chan Report, 1)
	go func() { done <- h.Evaluate(context.Background()) }()
	for range n {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("checks did not run concurrently")
		}
	}
	close(release)
	if rep := <-done; rep.Status != StatusOK {
		t.Errorf("status = %q, want ok", rep.Status)
	}
}

func TestEvaluate_ProbeSeesDeadline(t *testing.T) {
	t.Parallel()
	h := New(Check{Name: "engine", Probe: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if rep := h.Evaluate(context.Background()); rep.Status != StatusOK {
		t.Errorf("report = %+v", rep)
	}
}

func TestEvaluate_Latency(t *testing.T) {
	t.Parallel()
	h := New(Check{Name: "reports", Probe: ok})
	base := time.Unix(0, 0)
	calls := 0
	h.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 25 * time.Millisecond)
	}
	if got := h.Evaluate(context.Background()).Checks["reports"].LatencyMS; got != 25 {
		t.Errorf("latency = %d ms, want 25", got)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Check{Name: "engine", Probe: failing("down")}).Register(mux)

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/readyz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /readyz = %d, want 405", rec.Code)
	}
}
