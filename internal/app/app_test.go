package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/speakcheck/internal/capture"
	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/health"
	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/internal/phrase"
	"github.com/MrWong99/speakcheck/internal/report"
	"github.com/MrWong99/speakcheck/internal/resilience"
	"github.com/MrWong99/speakcheck/internal/scoring"
	"github.com/MrWong99/speakcheck/pkg/audio"
	audiomock "github.com/MrWong99/speakcheck/pkg/audio/mock"
	sttmock "github.com/MrWong99/speakcheck/pkg/provider/stt/mock"
)

const phraseText = "o rato roeu a roupa do rei de roma"

// block matches the default capture block size.
const block = 4096

// ─── helpers ─────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.Name = "mock"
	cfg.Transcription.Workers = 2
	off := false
	cfg.Transcription.BoostPriority = &off
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func speechThenSilence() *audiomock.Source {
	return &audiomock.Source{
		Blocks: audiomock.Repeat(audiomock.Constant(block, 8000), 4),
		Tail:   audiomock.Constant(block, 0),
	}
}

type fixture struct {
	app     *App
	engine  *sttmock.Engine
	source  *audiomock.Source
	reports *report.Store
}

func newFixture(t *testing.T, cfg *config.Config, src *audiomock.Source, eng *sttmock.Engine, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := report.Open(ctx, filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("report.Open: %v", err)
	}

	providers := Providers{
		Engine: eng,
		Open:   func(context.Context) (audio.Source, error) { return src, nil },
	}
	opts = append([]Option{
		WithReportStore(store),
		WithMetrics(testMetrics(t)),
		WithClock(capture.SampleClock{}),
	}, opts...)

	a, err := New(ctx, cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return &fixture{app: a, engine: eng, source: src, reports: store}
}

func practiceCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ─── New / Shutdown ──────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := func(context.Context) (audio.Source, error) { return &audiomock.Source{}, nil }

	if _, err := New(ctx, testConfig(), Providers{Open: open}); err == nil {
		t.Error("New without engine should fail")
	}
	if _, err := New(ctx, testConfig(), Providers{Engine: &sttmock.Engine{}}); err == nil {
		t.Error("New without source should fail")
	}
}

func TestShutdown_ClosesEngineOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), speechThenSilence(), &sttmock.Engine{})

	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if f.engine.CloseCount != 1 {
		t.Errorf("engine closed %d times, want 1", f.engine.CloseCount)
	}
	if !f.app.pool.Closed() {
		t.Error("pool should be closed after Shutdown")
	}
}

// ─── Practice ────────────────────────────────────────────────────────────────

func TestPractice_ScoresSpeech(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{DefaultText: " O rato roeu a roupa do rei de Roma. "}
	f := newFixture(t, testConfig(), speechThenSilence(), eng)
	ctx := practiceCtx(t)

	att, err := f.app.Practice(ctx, PracticeOptions{Phrase: phraseText})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}

	if att.Reason != capture.ReasonAutoStopSpeech.String() {
		t.Errorf("reason = %q, want auto_stop_speech", att.Reason)
	}
	if !att.Scored {
		t.Fatal("attempt should be scored")
	}
	if att.WER != 0 {
		t.Errorf("WER = %v, want 0", att.WER)
	}
	want := scoring.WPM(9, att.Elapsed)
	if att.WPM != want || att.WPM == 0 {
		t.Errorf("WPM = %d, want %d (non-zero)", att.WPM, want)
	}
	if att.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", att.Chunks)
	}
	if s := scoring.Summarize(att.Alignment); s.Matches != 9 || s.Errors() != 0 {
		t.Errorf("alignment summary = %+v, want 9 matches", s)
	}
	if len(eng.Calls()) != 1 {
		t.Errorf("engine calls = %d, want 1", len(eng.Calls()))
	}

	stored, err := f.reports.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != att.ID || stored[0].WPM != att.WPM {
		t.Errorf("stored = %+v, want the attempt", stored)
	}
}

func TestPractice_SilenceIsStoredUnscored(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{DefaultText: "should not be used"}
	src := &audiomock.Source{Tail: audiomock.Constant(block, 0)}
	f := newFixture(t, testConfig(), src, eng)
	ctx := practiceCtx(t)

	att, err := f.app.Practice(ctx, PracticeOptions{Phrase: phraseText})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	if att.Scored {
		t.Error("silent attempt should not be scored")
	}
	if att.Reason != capture.ReasonAutoStopSilence.String() {
		t.Errorf("reason = %q, want auto_stop_silence", att.Reason)
	}
	if len(eng.Calls()) != 0 {
		t.Errorf("engine called %d times for a silent attempt", len(eng.Calls()))
	}
	stored, _ := f.reports.Recent(ctx, 5)
	if len(stored) != 1 || stored[0].Scored {
		t.Errorf("stored = %+v, want one unscored attempt", stored)
	}
}

func TestPractice_ManualStopIsScored(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{DefaultText: "o rato roeu"}
	// The third read waits until Stop is posted, so the recording holds
	// exactly three blocks however fast the loop spins.
	reached := make(chan struct{})
	release := make(chan struct{})
	src := &audiomock.Source{
		Tail: audiomock.Constant(block, 8000),
		OnRead: func(call int) {
			if call == 3 {
				close(reached)
				<-release
			}
		},
	}
	f := newFixture(t, testConfig(), src, eng)
	ctx := practiceCtx(t)

	var gotPhrase string
	att, err := f.app.Practice(ctx, PracticeOptions{
		Phrase: phraseText,
		Manual: true,
		OnStart: func(p string, s *capture.Session) {
			gotPhrase = p
			<-reached
			s.Stop()
			close(release)
		},
	})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	if gotPhrase != phraseText {
		t.Errorf("OnStart phrase = %q", gotPhrase)
	}
	if att.Reason != capture.ReasonManualStop.String() {
		t.Errorf("reason = %q, want manual_stop", att.Reason)
	}
	if !att.Scored {
		t.Fatal("manual stop should be scored")
	}
	if att.Chunks != 1 {
		t.Errorf("chunks = %d, want 1 for a three-block recording", att.Chunks)
	}
	// Six of nine words missing.
	if got, want := att.WER, 600.0/9.0; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("WER = %v, want %v", got, want)
	}
}

func TestPractice_EngineErrorStoresNothing(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{Err: errors.New("model exploded")}
	f := newFixture(t, testConfig(), speechThenSilence(), eng)
	ctx := practiceCtx(t)

	_, err := f.app.Practice(ctx, PracticeOptions{Phrase: phraseText})
	if err == nil || !strings.Contains(err.Error(), "model exploded") {
		t.Fatalf("err = %v, want engine error", err)
	}
	if stored, _ := f.reports.Recent(ctx, 5); len(stored) != 0 {
		t.Errorf("stored %d attempts after an engine failure", len(stored))
	}
}

func TestPractice_CaptureErrorStoresNothing(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{FailAt: 2, ReadErr: errors.New("device unplugged"), Tail: audiomock.Constant(block, 8000)}
	f := newFixture(t, testConfig(), src, &sttmock.Engine{})
	ctx := practiceCtx(t)

	_, err := f.app.Practice(ctx, PracticeOptions{Phrase: phraseText})
	if !errors.Is(err, capture.ErrDeviceRead) {
		t.Fatalf("err = %v, want ErrDeviceRead", err)
	}
	if stored, _ := f.reports.Recent(ctx, 5); len(stored) != 0 {
		t.Errorf("stored %d attempts after a capture failure", len(stored))
	}
}

func TestPractice_NoPhrase(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), speechThenSilence(), &sttmock.Engine{})

	if _, err := f.app.Practice(practiceCtx(t), PracticeOptions{}); !errors.Is(err, ErrNoPhrase) {
		t.Errorf("err = %v, want ErrNoPhrase", err)
	}
}

func TestPractice_PhraseFromSelector(t *testing.T) {
	t.Parallel()
	eng := &sttmock.Engine{DefaultText: phraseText}
	f := newFixture(t, testConfig(), speechThenSilence(), eng, WithPhrases(phrase.Fixed(phraseText)))

	att, err := f.app.Practice(practiceCtx(t), PracticeOptions{})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	if att.Phrase != phraseText {
		t.Errorf("phrase = %q, want %q", att.Phrase, phraseText)
	}
}

func TestPractice_PhraseFromConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Phrases.List = []string{"só uma frase"}
	f := newFixture(t, cfg, speechThenSilence(), &sttmock.Engine{DefaultText: "só uma frase"})

	att, err := f.app.Practice(practiceCtx(t), PracticeOptions{})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	if att.Phrase != "só uma frase" || att.WER != 0 {
		t.Errorf("attempt = %+v", att.Attempt)
	}
}

func TestPractice_WritesRecordingPerAttempt(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Reports.RecordingsDir = t.TempDir()
	f := newFixture(t, cfg, speechThenSilence(), &sttmock.Engine{DefaultText: phraseText})

	att, err := f.app.Practice(practiceCtx(t), PracticeOptions{Phrase: phraseText})
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	want := filepath.Join(cfg.Reports.RecordingsDir, att.ID+".wav")
	if att.WAVPath != want {
		t.Errorf("WAVPath = %q, want %q", att.WAVPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("recording not written: %v", err)
	}
}

func TestPractice_CancelledContext(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Tail: audiomock.Constant(block, 8000)}
	eng := &sttmock.Engine{DefaultText: "x"}
	f := newFixture(t, testConfig(), src, eng)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.app.Practice(ctx, PracticeOptions{
		Phrase:  phraseText,
		Manual:  true,
		OnStart: func(string, *capture.Session) { cancel() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(eng.Calls()) != 0 {
		t.Errorf("engine called after cancellation")
	}
}

// ─── config reload ───────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	old := testConfig()
	f := newFixture(t, old, speechThenSilence(), &sttmock.Engine{})

	cur := testConfig()
	cur.VAD.SilenceThreshold = 0.1
	cur.Transcription.ChunkSize = 80000
	cur.Transcription.ChunkOverlap = 8000
	cur.Phrases.List = []string{"nova frase"}
	f.app.ApplyConfig(old, cur)

	if f.app.Config() != cur {
		t.Error("Config() should return the new config")
	}
	if got := f.app.chunked.Config().ChunkSize; got != 80000 {
		t.Errorf("chunk size = %d, want 80000", got)
	}
	p, err := f.app.nextPhrase("")
	if err != nil || p != "nova frase" {
		t.Errorf("nextPhrase = %q, %v; want nova frase", p, err)
	}
}

func TestApplyConfig_InvalidChunkingKeepsOld(t *testing.T) {
	t.Parallel()
	old := testConfig()
	f := newFixture(t, old, speechThenSilence(), &sttmock.Engine{})
	before := f.app.chunked.Config()

	cur := testConfig()
	cur.Transcription.ChunkOverlap = cur.Transcription.ChunkSize
	f.app.ApplyConfig(old, cur)

	if got := f.app.chunked.Config(); got != before {
		t.Errorf("chunking changed to %+v on an invalid reload", got)
	}
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

func TestHandler_Endpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), speechThenSilence(), &sttmock.Engine{})
	h := f.app.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz after shutdown = %d, want 503", rec.Code)
	}
}

func TestHandler_ReportsFallbackEngines(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{Err: errors.New("server down")}
	backup := &sttmock.Engine{DefaultText: phraseText}
	chain := resilience.NewEngine(primary, "whisper-server", resilience.CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	chain.AddFallback("exec", backup)
	f := newFixture(t, testConfig(), speechThenSilence(), &sttmock.Engine{})
	f.app.providers.Engine = chain

	if _, err := chain.Transcribe(context.Background(), []float32{0}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	rec := httptest.NewRecorder()
	f.app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /readyz = %d, want 200 while a fallback works", rec.Code)
	}
	var rep health.Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Status != health.StatusDegraded {
		t.Errorf("status = %q, want degraded", rep.Status)
	}
	if got := rep.Checks["engine:whisper-server"].Status; got != health.StatusFail {
		t.Errorf("primary check = %q, want fail", got)
	}
	if got := rep.Checks["engine:exec"].Status; got != health.StatusOK {
		t.Errorf("fallback check = %q, want ok", got)
	}
}

func TestRun_ReturnsFnResult(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	f := newFixture(t, cfg, speechThenSilence(), &sttmock.Engine{})

	boom := errors.New("loop failed")
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(context.Background(), func(context.Context) error { return boom })
	}()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run = %v, want %v", err, boom)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after fn finished")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), speechThenSilence(), &sttmock.Engine{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
