package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// exitUnreadable is the exit status an extraction script uses to say the
// audio itself could not be decoded.
const exitUnreadable = 3

const maxStderr = 2048

// Command runs the model as a subprocess:
//
//	<argv...> --model <name> <path>
//
// and reads one JSON Extraction from its stdout.
type Command struct {
	argv  []string
	model string
}

func NewCommand(argv []string, model string) *Command {
	return &Command{argv: argv, model: model}
}

func (c *Command) Name() string { return "command-" + c.model }

func (c *Command) Extract(ctx context.Context, path string) (*Extraction, error) {
	if len(c.argv) == 0 {
		return nil, errors.New("extract: empty command")
	}
	args := append(append([]string{}, c.argv[1:]...), "--model", c.model, path)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("extract: %s: %w", c.argv[0], ctxErr)
		}
		msg := tail(stderr.String(), maxStderr)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == exitUnreadable || strings.Contains(strings.ToLower(msg), "could not decode") {
				return nil, fmt.Errorf("%w: %s", ErrUnreadableAudio, msg)
			}
			return nil, fmt.Errorf("extract: %s exited with code %d: %s", c.argv[0], exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("extract: run %s: %w", c.argv[0], err)
	}

	var out Extraction
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("extract: parse model output: %w", err)
	}
	return &out, nil
}

// Check verifies the program can be found and, when the command names a
// script (the first non-flag argument with a file extension), that the
// script exists.
func (c *Command) Check(ctx context.Context) error {
	if len(c.argv) == 0 {
		return errors.New("extract: empty command")
	}
	if _, err := exec.LookPath(c.argv[0]); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if script := c.script(); script != "" {
		if _, err := os.Stat(script); err != nil {
			return fmt.Errorf("extract: script: %w", err)
		}
	}
	return nil
}

func (c *Command) script() string {
	for _, arg := range c.argv[1:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if filepath.Ext(arg) != "" {
			return arg
		}
		return ""
	}
	return ""
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
