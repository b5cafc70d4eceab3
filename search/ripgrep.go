package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Ripgrep runs the rg binary as a subprocess.
type Ripgrep struct {
	Path   string
	Logger *slog.Logger
}

// NewRipgrep creates an invoker for the rg binary at path ("rg" resolves through PATH).
func NewRipgrep(path string, logger *slog.Logger) *Ripgrep {
	if path == "" {
		path = "rg"
	}
	return &Ripgrep{Path: path, Logger: logger}
}

// Invoke launches rg and collects its output lines. Exit status 1 without
// output or stderr is rg's "no matches" and yields an empty result; any other
// failure, including the process being killed, is an ErrSubprocess.
func (r *Ripgrep) Invoke(ctx context.Context, args Args) ([]string, error) {
	start := time.Now()
	argv := args.Build()

	cmd := exec.CommandContext(ctx, r.Path, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(out) == 0 && stderr.Len() == 0 {
			r.Logger.Debug("rg found no matches", "root", args.Root, "elapsed", time.Since(start))
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrSubprocess, r.Path, err, strings.TrimSpace(stderr.String()))
	}

	lines := SplitLines(out)
	r.Logger.Debug("rg finished", "root", args.Root, "lines", len(lines), "elapsed", time.Since(start))
	return lines, nil
}

// SplitLines splits tool output into lines, dropping the trailing newline and CRs.
func SplitLines(out []byte) []string {
	text := strings.TrimRight(string(out), "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
