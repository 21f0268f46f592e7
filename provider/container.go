package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// ContainerProvider implements Provider on top of a container engine CLI.
// The same implementation serves both Docker and Podman since their run,
// cp, exec and rm verbs are argument compatible; the binary name is the
// only difference.
type ContainerProvider struct {
	logger    *zap.Logger
	config    *Config
	binary    string
	languages map[string]config.Language
	cmdRunner CommandRunner
	fs        FileSystem
}

// Config holds configuration shared by all provider backends
type Config struct {
	MemoryMB       int
	NetworkEnabled bool
	CreateTimeout  time.Duration
}

// ContainerProviderOption defines a functional option for ContainerProvider
type ContainerProviderOption func(*ContainerProvider)

// WithContainerCommandRunner sets the CommandRunner for ContainerProvider
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerProviderOption {
	return func(c *ContainerProvider) {
		c.cmdRunner = cmdRunner
	}
}

// WithContainerFileSystem sets the FileSystem for ContainerProvider
func WithContainerFileSystem(fs FileSystem) ContainerProviderOption {
	return func(c *ContainerProvider) {
		c.fs = fs
	}
}

// NewContainerProvider creates a provider that drives the given container
// engine binary ("docker" or "podman")
func NewContainerProvider(logger *zap.Logger, cfg *Config, languages map[string]config.Language, binary string, opts ...ContainerProviderOption) *ContainerProvider {
	p := &ContainerProvider{
		logger:    logger,
		config:    cfg,
		binary:    binary,
		languages: languages,
		cmdRunner: &RealCommandRunner{}, // Default implementation
		fs:        &RealFileSystem{},    // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Create starts a long-lived container for the language and returns its handle
func (p *ContainerProvider) Create(ctx context.Context, language string) (Handle, error) {
	lang, ok := p.languages[language]
	if !ok {
		return Handle{}, fmt.Errorf("unsupported language: %s", language)
	}

	name := fmt.Sprintf("runbox-%s-%d", language, time.Now().UnixNano())

	cmdArgs := []string{
		p.binary, "run",
		"-d", // Keep the container running until Destroy
		"--name", name,
		"--workdir", "/workdir",
		"--memory", fmt.Sprintf("%dm", p.config.MemoryMB),
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
	}

	if p.config.NetworkEnabled {
		cmdArgs = append(cmdArgs, "--network", "bridge")
	} else {
		cmdArgs = append(cmdArgs, "--network", "none")
	}

	for key, value := range lang.Environment {
		cmdArgs = append(cmdArgs, "-e", fmt.Sprintf("%s=%s", key, value))
	}

	cmdArgs = append(cmdArgs, lang.Image, "sleep", "infinity")

	createCtx, cancel := context.WithTimeout(ctx, p.config.CreateTimeout)
	defer cancel()

	_, stderr, exitCode, err := p.cmdRunner.RunCommand(createCtx, "", cmdArgs)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to start container: %w", err)
	}
	if exitCode != 0 {
		return Handle{}, fmt.Errorf("failed to start container: %s", strings.TrimSpace(stderr))
	}

	p.logger.Info("sandbox container started",
		zap.String("language", language),
		zap.String("container", name),
		zap.String("image", lang.Image))

	return Handle{Language: language, Ref: name}, nil
}

// Run copies the code into the container and executes the language run command
func (p *ContainerProvider) Run(ctx context.Context, handle Handle, code string) (RunResult, error) {
	lang, ok := p.languages[handle.Language]
	if !ok {
		return RunResult{}, fmt.Errorf("unsupported language: %s", handle.Language)
	}

	tempDir, err := p.fs.MkdirTemp("", "runbox-run-*")
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if rmErr := p.fs.RemoveAll(tempDir); rmErr != nil {
			p.logger.Error("failed to remove temp directory", zap.String("path", tempDir), zap.Error(rmErr))
		}
	}()

	codeFilePath := filepath.Join(tempDir, lang.FileName)
	if writeErr := p.fs.WriteFile(codeFilePath, []byte(code), FilePermission); writeErr != nil {
		return RunResult{}, fmt.Errorf("failed to write user code: %w", writeErr)
	}

	cpArgs := []string{p.binary, "cp", codeFilePath, fmt.Sprintf("%s:/workdir/%s", handle.Ref, lang.FileName)}
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, "", cpArgs)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to copy code into container: %w", err)
	}
	if exitCode != 0 {
		return RunResult{}, fmt.Errorf("failed to copy code into container: %s", strings.TrimSpace(stderr))
	}

	execArgs := []string{p.binary, "exec", "--workdir", "/workdir", handle.Ref, "sh", "-c", lang.RunCmd}
	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, "", execArgs)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute code: %w", err)
	}

	return RunResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// InstallLibraries installs packages into the running container. The install
// command is split into argv fields and the library names are appended as
// plain arguments, so no shell ever interprets user input.
func (p *ContainerProvider) InstallLibraries(ctx context.Context, handle Handle, libraries []string) (InstallResult, error) {
	if len(libraries) == 0 {
		return InstallResult{}, nil
	}

	lang, ok := p.languages[handle.Language]
	if !ok {
		return InstallResult{}, fmt.Errorf("unsupported language: %s", handle.Language)
	}
	if lang.InstallCmd == "" {
		return InstallResult{}, fmt.Errorf("language %s has no install command configured", handle.Language)
	}

	execArgs := []string{p.binary, "exec", "--workdir", "/workdir", handle.Ref}
	execArgs = append(execArgs, strings.Fields(lang.InstallCmd)...)
	execArgs = append(execArgs, libraries...)

	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, "", execArgs)
	if err != nil {
		return InstallResult{}, fmt.Errorf("failed to install libraries: %w", err)
	}

	return InstallResult{ExitCode: exitCode, Stderr: stderr}, nil
}

// Destroy removes the container, killing anything still running inside it
func (p *ContainerProvider) Destroy(ctx context.Context, handle Handle) error {
	rmArgs := []string{p.binary, "rm", "-f", handle.Ref}
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, "", rmArgs)
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("failed to remove container: %s", strings.TrimSpace(stderr))
	}

	p.logger.Info("sandbox container removed", zap.String("container", handle.Ref))
	return nil
}
