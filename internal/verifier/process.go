package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// waitDelay bounds how long Wait blocks on pipes held open by orphaned
	// children after the process was killed.
	waitDelay      = 2 * time.Second
	maxOutputBytes = 1 << 20
)

var ErrNotInstalled = errors.New("verifier executable not available")

type processResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runProcess runs path with stdin and captures its output. The process and
// its group are killed when ctx ends. A non-zero exit is reported through
// ExitCode, not as an error; ctx errors are returned unwrapped.
func runProcess(ctx context.Context, path string, args []string, stdin string) (processResult, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, max: maxOutputBytes}

	err := cmd.Run()
	res := processResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", filepath.Base(path), err)
	}
	return res, nil
}

type limitedWriter struct {
	w   *bytes.Buffer
	max int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if room := l.max - l.w.Len(); room > 0 {
		if len(p) > room {
			l.w.Write(p[:room])
		} else {
			l.w.Write(p)
		}
	}
	return len(p), nil
}

// searchDirs are checked after $PATH when auto-detecting a verifier.
var searchDirs = []string{"/usr/bin", "/usr/local/bin"}

// Detect locates an executable by name on $PATH or in the standard install
// directories.
func Detect(name string) (string, bool) {
	if p, err := exec.LookPath(name); err == nil {
		return p, true
	}
	for _, dir := range searchDirs {
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p, true
		}
	}
	return "", false
}

func isExecutable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// errorLine returns the first line of s mentioning "error", trimmed.
func errorLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(strings.ToLower(line), "error") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
