// app.go wires configuration, logging and state into the
// collaborators each command needs.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/bridge"
	"github.com/shinji-kodama/espbridge/internal/config"
	"github.com/shinji-kodama/espbridge/internal/deps"
	"github.com/shinji-kodama/espbridge/internal/docker"
	"github.com/shinji-kodama/espbridge/internal/logging"
	"github.com/shinji-kodama/espbridge/internal/model"
	"github.com/shinji-kodama/espbridge/internal/orchestrator"
	"github.com/shinji-kodama/espbridge/internal/port"
	"github.com/shinji-kodama/espbridge/internal/serialport"
	"github.com/shinji-kodama/espbridge/internal/state"
)

// app holds everything loaded once per command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *state.Store
	os      model.OS
	workDir string
}

// loadApp reads the configuration, builds the logger and resolves the
// host OS and working directory.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to initialize logger", err)
	}

	hostOS, err := model.ParseOS(runtime.GOOS)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "unsupported platform", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", err)
	}

	logger.Debug("configuration loaded",
		zap.String("config", configPath),
		zap.String("stateDir", cfg.State.Dir),
		zap.Int("bridgePort", cfg.Bridge.Port))

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   state.NewStore(cfg.State.Dir),
		os:      hostOS,
		workDir: workDir,
	}, nil
}

// close flushes the logger.
func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) reaper() *port.Reaper {
	return port.NewReaper(port.NewSystemTable(), a.store, a.cfg.Reap.Timeout, a.logger)
}

func (a *app) enumerator() *serialport.SystemEnumerator {
	return serialport.NewSystemEnumerator(a.logger)
}

func (a *app) matcher() *serialport.Matcher {
	return serialport.NewMatcher(serialport.SignatureFromConfig(a.cfg.Match))
}

// dependencies assembles the collaborators of a full run.
func (a *app) dependencies() orchestrator.Dependencies {
	return orchestrator.Dependencies{
		Installer:  deps.NewInstaller(a.cfg.Bridge.Python, a.cfg.Deps, a.workDir, a.logger),
		Reaper:     a.reaper(),
		Scanner:    port.NewScanner(),
		Enumerator: a.enumerator(),
		Matcher:    a.matcher(),
		Launcher:   bridge.NewLauncher(a.cfg.Bridge, bridge.NewDetacher(), a.store, a.workDir, a.logger),
		Container:  docker.NewRunner(a.cfg, a.logger),
	}
}

// openContainerLog opens the background toolchain log for appending.
func (a *app) openContainerLog() (*os.File, error) {
	if err := os.MkdirAll(a.store.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", a.store.Dir(), err)
	}
	return os.OpenFile(a.store.ContainerLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
