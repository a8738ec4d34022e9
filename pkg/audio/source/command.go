package source

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/MrWong99/speakcheck/pkg/audio"
)

var _ audio.Source = (*Command)(nil)

// RecordCommand captures the default ALSA capture device as raw 16 kHz mono
// signed 16-bit little-endian PCM on stdout.
var RecordCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", "16000", "-c", "1"}

// Command is an [audio.Source] that reads raw PCM from the stdout of a child
// process such as arecord or parec. Close stops the process.
type Command struct {
	*Stream
	cmd    *exec.Cmd
	stderr *tailBuffer

	closeOnce sync.Once
	closeErr  error
}

// ParseCommand splits a shell-style command line into argv.
func ParseCommand(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("source: parse command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("source: empty command")
	}
	return argv, nil
}

// StartCommand starts argv and returns a source reading its stdout.
func StartCommand(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("source: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source: stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source: start %s: %w", argv[0], err)
	}
	return &Command{Stream: NewStream(stdout), cmd: cmd, stderr: stderr}, nil
}

// Read implements [audio.Source]. A read failure carries the tail of the
// process's stderr.
func (c *Command) Read(block []int16) (int, error) {
	n, err := c.Stream.Read(block)
	if err != nil {
		if msg := c.stderr.String(); msg != "" {
			return n, fmt.Errorf("%w (stderr: %s)", err, msg)
		}
	}
	return n, err
}

// Close kills the process and waits for it to exit.
func (c *Command) Close() error {
	c.closeOnce.Do(func() {
		if c.cmd.ProcessState == nil {
			_ = c.cmd.Process.Kill()
		}
		err := c.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			c.closeErr = fmt.Errorf("source: wait %s: %w", c.cmd.Path, err)
		}
	})
	return c.closeErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
