// Package runner executes the external tools (parted, losetup, mkfs.*,
// qemu-img, ...) that do the actual work of building an image.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:generate mockery --name=Runner --structname=Runner

// Runner runs a single external command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Command describes one invocation of an external tool.
type Command struct {
	// Args is the argv of the command; Args[0] is the program.
	Args []string
	// Stdin is written to the process; when empty the process reads from
	// the null device.
	Stdin string
	// IgnoreFailure suppresses the error for a non-zero exit status.
	IgnoreFailure bool
	// Env holds extra environment variables.
	Env map[string]string
}

// Result is the captured outcome of a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ToolExecutionError is returned when a command exits with a non-zero status.
type ToolExecutionError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("process %q returned %d. stdout: %s, stderr: %s",
		e.Args, e.ExitCode, strings.TrimSpace(e.Stdout), strings.TrimSpace(e.Stderr))
}

// Cmd builds a Command from an argv.
func Cmd(args ...string) Command {
	return Command{Args: args}
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *logrus.Entry) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// WithEnv adds variables to the environment of every command.
func WithEnv(env map[string]string) Option {
	return func(r *ExecRunner) {
		for k, v := range env {
			r.env[k] = v
		}
	}
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *logrus.Entry
	env    map[string]string
}

// New creates an ExecRunner.
func New(setters ...Option) *ExecRunner {
	r := &ExecRunner{
		logger: logrus.WithField("component", "runner"),
		env:    map[string]string{},
	}

	for _, s := range setters {
		s(r)
	}

	return r
}

func (r *ExecRunner) environ(extra map[string]string) []string {
	vars := map[string]string{}
	for k, v := range r.env {
		vars[k] = v
	}

	// the locale is fixed so that callers can parse error messages
	vars["LANG"] = "C"
	vars["LC_ALL"] = "C"

	for k, v := range extra {
		vars[k] = v
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}

	return env
}

// Run executes cmd and waits for it to exit. Stdout and stderr are both
// drained before Run returns.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}

	r.logger.Debugf("%q", cmd.Args)

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Env = r.environ(cmd.Env)

	if cmd.Stdin != "" {
		r.logger.Debugf("stdin was set: %s", cmd.Stdin)
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	r.logOutput(result, cmd.IgnoreFailure)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if errors.Is(err, exec.ErrNotFound) {
				return nil, fmt.Errorf("couldn't find the program %q on your system: %w", cmd.Args[0], err)
			}

			return nil, fmt.Errorf("couldn't launch the program %q: %w", cmd.Args[0], err)
		}

		result.ExitCode = exitErr.ExitCode()

		if !cmd.IgnoreFailure {
			return result, &ToolExecutionError{
				Args:     cmd.Args,
				ExitCode: result.ExitCode,
				Stdout:   result.Stdout,
				Stderr:   result.Stderr,
			}
		}
	}

	return result, nil
}

func (r *ExecRunner) logOutput(result *Result, quiet bool) {
	logStderr := r.logger.Info
	if quiet {
		logStderr = r.logger.Debug
	}

	scanner := bufio.NewScanner(strings.NewReader(result.Stderr))
	for scanner.Scan() {
		logStderr(scanner.Text())
	}

	scanner = bufio.NewScanner(strings.NewReader(result.Stdout))
	for scanner.Scan() {
		r.logger.Debug(scanner.Text())
	}
}

// Output runs args with r and returns the captured stdout.
func Output(ctx context.Context, r Runner, args ...string) (string, error) {
	result, err := r.Run(ctx, Cmd(args...))
	if err != nil {
		return "", err
	}

	return result.Stdout, nil
}
