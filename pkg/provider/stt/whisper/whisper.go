// Package whisper provides whisper.cpp-backed speech recognition engines.
//
// Two engines are available:
//
//   - [Engine] talks to a running whisper-server binary (which exposes a REST
//     API at POST /inference). Each Transcribe call encodes the samples as a
//     16-bit mono WAV file and uploads it as multipart/form-data.
//   - [NativeEngine] links whisper.cpp directly through its CGO bindings and
//     keeps the model in process.
//
// Usage:
//
//	e, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("pt"),
//	)
//	text, err := e.Transcribe(ctx, samples)
//	e.Close()
package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/audio/wavfile"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 120 * time.Second
)

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with; this is the default.
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server (e.g.,
// "en", "pt"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		e.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// Defaults to 120 s; inference on a 10 s chunk can be slow on small CPUs.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.httpClient = &http.Client{Timeout: d}
	}
}

// Engine implements stt.Engine backed by a whisper.cpp HTTP server. The
// server queues requests itself, so Engine is safe for concurrent use.
type Engine struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
	closed     atomic.Bool
}

// New creates an Engine that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close marks the engine closed. The server is not affected.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Transcribe encodes samples as a WAV file and POSTs it to the whisper.cpp
// /inference endpoint. It returns the transcribed text or an error.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if e.closed.Load() {
		return "", stt.ErrClosed
	}

	path, err := wavfile.WriteTemp("", audio.FromFloat32(samples), audio.SampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer os.Remove(path)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(e.writeForm(mw, path))
	}()

	endpoint := e.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

// writeForm streams the WAV at path and the hint fields into mw.
func (e *Engine) writeForm(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("whisper: open wav: %w", err)
	}
	defer f.Close()

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("whisper: write wav data: %w", err)
	}

	if e.language != "" {
		if err := mw.WriteField("language", e.language); err != nil {
			return fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if e.model != "" {
		if err := mw.WriteField("model", e.model); err != nil {
			return fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return fmt.Errorf("whisper: write response_format field: %w", err)
	}
	return mw.Close()
}
