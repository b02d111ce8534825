// Package deps installs the Python packages the RFC2217 bridge script
// needs before anything else runs.
//
// Installation is a setup step: if pip fails, nothing that follows can
// work, so the failure aborts the whole run with ExitDependencyInstallFailed.
package deps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/config"
	"github.com/shinji-kodama/espbridge/internal/model"
)

// CommandRunner abstracts command execution so tests can observe the pip
// invocation without a Python installation.
type CommandRunner interface {
	Run(cmd *exec.Cmd) error
}

type execRunner struct{}

func (execRunner) Run(cmd *exec.Cmd) error { return cmd.Run() }

// Installer runs pip against the requirements file.
type Installer struct {
	python  string
	cfg     config.DepsConfig
	workDir string
	runner  CommandRunner
	logger  *zap.Logger
}

// NewInstaller creates an Installer that uses the given interpreter. The
// requirements path is resolved relative to workDir.
func NewInstaller(python string, cfg config.DepsConfig, workDir string, logger *zap.Logger) *Installer {
	return &Installer{
		python:  python,
		cfg:     cfg,
		workDir: workDir,
		runner:  execRunner{},
		logger:  logger.With(zap.String("component", "deps")),
	}
}

// Args returns the interpreter arguments for the install.
func (i *Installer) Args() []string {
	return []string{"-m", "pip", "install", "-r", i.cfg.Requirements}
}

// Install runs `<python> -m pip install -r <requirements>`. pip's stdout
// is discarded; its stderr is kept and returned in the error on failure.
// When installation is disabled by configuration, Install does nothing.
func (i *Installer) Install(ctx context.Context) error {
	if i.cfg.Skip {
		i.logger.Debug("dependency installation skipped")
		return nil
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, i.python, i.Args()...)
	cmd.Dir = i.workDir
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	i.logger.Debug("installing requirements",
		zap.String("python", i.python),
		zap.String("requirements", i.cfg.Requirements))

	if err := i.runner.Run(cmd); err != nil {
		msg := "Error installing requirements"
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg = fmt.Sprintf("%s:\n%s", msg, detail)
		}
		return model.WrapCLIError(model.ExitDependencyInstallFailed, msg, err)
	}

	i.logger.Debug("requirements installed")
	return nil
}
