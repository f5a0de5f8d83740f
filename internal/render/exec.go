package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"chartreel/internal/progress"
	"chartreel/internal/services"
)

var commandContext = exec.CommandContext

const stderrTailLines = 20

// runStreaming starts argv and forwards each stdout and stderr line. Both
// streams are drained before Wait so no output is lost.
func runStreaming(ctx context.Context, component string, argv []string, onStdout, onStderr func(string)) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return services.Wrap(services.ErrConfiguration, component, "run", "command not configured", nil)
	}
	cmd := commandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, component, "start", argv[0], err)
	}

	tail := newLineTail(stderrTailLines)
	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, func(line string) {
		tail.add(line)
		if onStderr != nil {
			onStderr(line)
		}
	})
	wg.Wait()

	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, component, "run", "deadline exceeded", ctxErr)
		}
		return ctxErr
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if waitErr != nil {
		return services.Wrap(services.ErrExternalTool, component, "run", tail.summary(), waitErr)
	}
	return nil
}

// lineTail keeps the last n lines, preferring error lines for the summary.
type lineTail struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newLineTail(n int) *lineTail {
	return &lineTail{max: n}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.lines) - 1; i >= 0; i-- {
		if progress.IsErrorLine(t.lines[i]) {
			return t.lines[i]
		}
	}
	if len(t.lines) > 0 {
		return t.lines[len(t.lines)-1]
	}
	return ""
}
