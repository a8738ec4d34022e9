package whisper

// NativeEngine needs libwhisper.a and whisper.h at link time, found through
// LIBRARY_PATH and C_INCLUDE_PATH.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/speakcheck/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Engine = (*NativeEngine)(nil)

// ErrLanguageUnsupported is returned by [NewNative] when the model cannot
// transcribe the requested language, e.g. "pt" with an English-only model.
var ErrLanguageUnsupported = errors.New("whisper: language not supported by model")

// NativeEngine runs whisper.cpp in process. The model is loaded once and
// inference is serialised on it.
type NativeEngine struct {
	language string
	threads  uint

	mu    sync.Mutex
	model whisperlib.Model // nil once closed
}

// NativeOption configures a [NativeEngine].
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the language the speaker practises. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithNativeThreads sets the inference thread count. Zero keeps the library
// default.
func WithNativeThreads(n uint) NativeOption {
	return func(e *NativeEngine) { e.threads = n }
}

// NewNative loads the ggml model at modelPath. It fails fast if the model
// cannot handle the configured language rather than producing nonsense
// transcripts later.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is empty")
	}
	e := &NativeEngine{language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	if err := checkLanguage(model.IsMultilingual(), model.Languages(), e.language); err != nil {
		_ = model.Close()
		return nil, fmt.Errorf("%w (%s)", err, modelPath)
	}
	e.model = model
	return e, nil
}

func checkLanguage(multilingual bool, supported []string, lang string) error {
	switch {
	case !multilingual && lang != "en":
		return fmt.Errorf("%w: %q needs a multilingual model", ErrLanguageUnsupported, lang)
	case multilingual && lang != "auto" && len(supported) > 0 && !slices.Contains(supported, lang):
		return fmt.Errorf("%w: %q", ErrLanguageUnsupported, lang)
	}
	return nil
}

// Close frees the model after any in-flight inference. Idempotent.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}

// Transcribe runs one inference over samples and joins the segment texts.
func (e *NativeEngine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		return "", stt.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	// A context holds per-run state and is not safe to share.
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", e.language, err)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}
	return joinSegments(wctx.NextSegment)
}

// joinSegments drains next until io.EOF, joining non-blank segment texts
// with single spaces.
func joinSegments(next func() (whisperlib.Segment, error)) (string, error) {
	var b strings.Builder
	for {
		seg, err := next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}
