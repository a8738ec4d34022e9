// Package exec implements stt.Engine by running an external recognition
// command once per call.
//
// The samples are written to a temporary 16-bit mono WAV file and the command
// is invoked as:
//
//	<command...> --audio <wav> [--model <path>] [--language <code>]
//
// The command must print a JSON object with a "text" field to stdout, for
// example {"text": "o rato roeu", "confidence": 0.93}. Anything on stderr is
// included in the error when the command fails.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/audio/wavfile"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModel passes --model path to the command.
func WithModel(path string) Option {
	return func(e *Engine) { e.model = path }
}

// WithLanguage passes --language code to the command.
func WithLanguage(code string) Option {
	return func(e *Engine) { e.language = code }
}

// WithTempDir sets where the WAV hand-off files are written. Defaults to the
// OS temporary directory.
func WithTempDir(dir string) Option {
	return func(e *Engine) { e.tempDir = dir }
}

// Engine runs an external command per transcription. Calls are serialised
// so at most one recogniser process runs at a time.
type Engine struct {
	argv     []string
	model    string
	language string
	tempDir  string

	mu     sync.Mutex
	closed bool
}

type result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// New parses command with shell quoting rules and returns an Engine.
func New(command string, opts ...Option) (*Engine, error) {
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("exec: parse command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("exec: command is empty")
	}
	e := &Engine{argv: argv}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Transcribe implements stt.Engine.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", stt.ErrClosed
	}

	path, err := wavfile.WriteTemp(e.tempDir, audio.FromFloat32(samples), audio.SampleRate)
	if err != nil {
		return "", fmt.Errorf("exec: %w", err)
	}
	defer os.Remove(path)

	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--audio", path)
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	cmd := osexec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("exec: command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var res result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return "", fmt.Errorf("exec: decode response: %w", err)
	}
	return res.Text, nil
}
