package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// LocalProvider implements Provider using plain host processes
// (WARNING: not isolated, for development only). A session's environment
// is just a temporary working directory that survives between runs.
type LocalProvider struct {
	logger    *zap.Logger
	config    *Config
	languages map[string]config.Language
	cmdRunner CommandRunner
	fs        FileSystem
}

// LocalProviderOption defines a functional option for LocalProvider
type LocalProviderOption func(*LocalProvider)

// WithLocalCommandRunner sets the CommandRunner for LocalProvider
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalProviderOption {
	return func(l *LocalProvider) {
		l.cmdRunner = cmdRunner
	}
}

// WithLocalFileSystem sets the FileSystem for LocalProvider
func WithLocalFileSystem(fs FileSystem) LocalProviderOption {
	return func(l *LocalProvider) {
		l.fs = fs
	}
}

// NewLocalProvider creates a new LocalProvider
func NewLocalProvider(logger *zap.Logger, cfg *Config, languages map[string]config.Language, opts ...LocalProviderOption) *LocalProvider {
	p := &LocalProvider{
		logger:    logger,
		config:    cfg,
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

// Create allocates a working directory for the session
func (p *LocalProvider) Create(ctx context.Context, language string) (Handle, error) {
	if _, ok := p.languages[language]; !ok {
		return Handle{}, fmt.Errorf("unsupported language: %s", language)
	}

	workdir, err := p.fs.MkdirTemp("", fmt.Sprintf("runbox-%s-*", language))
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create workdir: %w", err)
	}

	p.logger.Info("local sandbox created",
		zap.String("language", language),
		zap.String("workdir", workdir))

	return Handle{Language: language, Ref: workdir}, nil
}

// Run writes the code into the session workdir and executes the run command
func (p *LocalProvider) Run(ctx context.Context, handle Handle, code string) (RunResult, error) {
	lang, ok := p.languages[handle.Language]
	if !ok {
		return RunResult{}, fmt.Errorf("unsupported language: %s", handle.Language)
	}

	codeFilePath := filepath.Join(handle.Ref, lang.FileName)
	if writeErr := p.fs.WriteFile(codeFilePath, []byte(code), FilePermission); writeErr != nil {
		return RunResult{}, fmt.Errorf("failed to write user code: %w", writeErr)
	}

	args := make([]string, 0, 4+len(lang.Environment))
	if len(lang.Environment) > 0 {
		args = append(args, "env")
		for key, value := range lang.Environment {
			args = append(args, fmt.Sprintf("%s=%s", key, value))
		}
	}
	args = append(args, "sh", "-c", lang.RunCmd)

	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, handle.Ref, args)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute code: %w", err)
	}

	return RunResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// InstallLibraries installs packages into the session workdir
func (p *LocalProvider) InstallLibraries(ctx context.Context, handle Handle, libraries []string) (InstallResult, error) {
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

	args := strings.Fields(lang.InstallCmd)
	args = append(args, libraries...)

	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, handle.Ref, args)
	if err != nil {
		return InstallResult{}, fmt.Errorf("failed to install libraries: %w", err)
	}

	return InstallResult{ExitCode: exitCode, Stderr: stderr}, nil
}

// Destroy removes the session workdir
func (p *LocalProvider) Destroy(ctx context.Context, handle Handle) error {
	if err := p.fs.RemoveAll(handle.Ref); err != nil {
		return fmt.Errorf("failed to remove workdir: %w", err)
	}

	p.logger.Info("local sandbox removed", zap.String("workdir", handle.Ref))
	return nil
}
