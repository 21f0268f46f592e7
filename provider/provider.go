package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Handle identifies a live sandbox environment. Callers must treat it as
// opaque: a handle is owned by exactly one pooled session and only the
// provider that created it may act on it.
type Handle struct {
	// Language the environment was created for.
	Language string
	// Ref is the provider-internal reference (container name or workdir).
	Ref string
}

// RunResult represents the result of running code inside a sandbox
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// InstallResult represents the result of a library installation attempt
type InstallResult struct {
	ExitCode int
	Stderr   string
}

// Provider defines the sandbox provider boundary. Create and Destroy are
// slow operations (seconds) and must never be called while holding pool
// bookkeeping locks.
type Provider interface {
	// Create builds a new isolated environment for the given language.
	Create(ctx context.Context, language string) (Handle, error)
	// Run executes code inside the environment and captures its output.
	Run(ctx context.Context, handle Handle, code string) (RunResult, error)
	// InstallLibraries installs packages into the environment. Best effort:
	// a non-zero exit code is reported in the result, not as an error.
	InstallLibraries(ctx context.Context, handle Handle, libraries []string) (InstallResult, error)
	// Destroy tears the environment down and releases its resources.
	Destroy(ctx context.Context, handle Handle) error
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, dir string, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments in dir (empty dir
// means the current working directory)
func (RealCommandRunner) RunCommand(ctx context.Context, dir string, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
			err = nil
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0600
)
