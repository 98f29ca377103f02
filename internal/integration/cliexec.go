package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// CLIExecConfig holds all parameters needed to execute an external CLI tool.
type CLIExecConfig struct {
	CLI  string
	Args []string
	// Env is appended to the inherited environment.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CLIExecResult captures the outcome of an external CLI invocation.
type CLIExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CLIExecutor invokes external programs: the script interpreter, credential
// helpers and the keychain tool.
type CLIExecutor interface {
	// Exec runs config.CLI with config.Args. A non-zero exit is reported in
	// the result, not as an error; failing to start or being cancelled is
	// an error.
	Exec(ctx context.Context, config CLIExecConfig) (*CLIExecResult, error)
	// Shell runs cmdLine through the system shell.
	Shell(ctx context.Context, cmdLine string) (*CLIExecResult, error)
}

// cliExecutor implements CLIExecutor.
type cliExecutor struct{}

// NewCLIExecutor creates a new CLIExecutor.
func NewCLIExecutor() CLIExecutor {
	return &cliExecutor{}
}

// Exec runs the command and captures its output, teeing to the provided
// writers when set.
func (e *cliExecutor) Exec(ctx context.Context, config CLIExecConfig) (*CLIExecResult, error) {
	cmd := exec.CommandContext(ctx, config.CLI, config.Args...)
	cmd.Env = BuildEnv(os.Environ(), config.Env)

	var stdoutBuf, stderrBuf bytes.Buffer

	if config.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdoutBuf, config.Stdout)
	} else {
		cmd.Stdout = &stdoutBuf
	}

	if config.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderrBuf, config.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	if config.Stdin != nil {
		cmd.Stdin = config.Stdin
	}

	err := cmd.Run()

	result := &CLIExecResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("executing %s: %w", config.CLI, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Command could not be started (e.g., not found).
			return result, fmt.Errorf("executing %s: %w", config.CLI, err)
		}
	}

	return result, nil
}

// Shell delegates cmdLine to sh -c, or cmd /c on Windows.
func (e *cliExecutor) Shell(ctx context.Context, cmdLine string) (*CLIExecResult, error) {
	if runtime.GOOS == "windows" {
		return e.Exec(ctx, CLIExecConfig{CLI: "cmd", Args: []string{"/c", cmdLine}})
	}
	return e.Exec(ctx, CLIExecConfig{CLI: "sh", Args: []string{"-c", cmdLine}})
}

// BuildEnv returns base with extra appended. When extra is empty, base is
// returned unchanged.
func BuildEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)
	return append(env, extra...)
}
