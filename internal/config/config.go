// Package config loads espbridge settings from defaults, an optional
// espbridge.jsonc file and ESPBRIDGE_* environment variables.
//
// The config file is JSON with comments. It is normalised to plain JSON
// with tidwall/jsonc before viper reads it, so users can annotate the
// device signatures and container settings in place.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// DefaultConfigFile is the file looked up in the working directory when
// no --config flag is given.
const DefaultConfigFile = "espbridge.jsonc"

// EnvPrefix is the prefix for environment overrides, e.g.
// ESPBRIDGE_BRIDGE_PORT=4001.
const EnvPrefix = "ESPBRIDGE"

// Config represents the application configuration
type Config struct {
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Container ContainerConfig `mapstructure:"container"`
	Deps      DepsConfig      `mapstructure:"deps"`
	Match     MatchConfig     `mapstructure:"match"`
	Reap      ReapConfig      `mapstructure:"reap"`
	State     StateConfig     `mapstructure:"state"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BridgeConfig configures the RFC2217 bridge process.
type BridgeConfig struct {
	Port        int           `mapstructure:"port"`
	Script      string        `mapstructure:"script"`
	Python      string        `mapstructure:"python"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Verbose     bool          `mapstructure:"verbose"`
}

// ContainerConfig configures the containerized ESP-IDF toolchain run.
type ContainerConfig struct {
	Image      string `mapstructure:"image"`
	Name       string `mapstructure:"name"`
	Workdir    string `mapstructure:"workdir"`
	Home       string `mapstructure:"home"`
	BridgeHost string `mapstructure:"bridge_host"`
}

// DepsConfig configures the Python dependency installer.
type DepsConfig struct {
	Requirements string `mapstructure:"requirements"`
	Skip         bool   `mapstructure:"skip"`
}

// MatchConfig holds the per-OS device signatures.
type MatchConfig struct {
	WindowsDescription string `mapstructure:"windows_description"`
	DarwinPrefix       string `mapstructure:"darwin_prefix"`
	LinuxPrefix        string `mapstructure:"linux_prefix"`
}

// ReapConfig configures the port reaper.
type ReapConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StateConfig locates the directory holding the bridge record and log.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load builds the configuration. If path is empty, DefaultConfigFile is
// read from the working directory when it exists; an explicit path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// jsonc.ToJSON strips comments and trailing commas while keeping
		// byte offsets, so viper's JSON errors still point at the right spot.
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No config file; defaults and environment only.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Bridge defaults
	v.SetDefault("bridge.port", model.DefaultBridgePort)
	v.SetDefault("bridge.script", "esp_rfc2217_server.py")
	v.SetDefault("bridge.python", defaultPython())
	v.SetDefault("bridge.grace_period", "1s")
	v.SetDefault("bridge.verbose", true)

	// Container defaults
	v.SetDefault("container.image", "espressif/idf")
	v.SetDefault("container.name", "UCF-Senior-Design")
	v.SetDefault("container.workdir", "/project")
	v.SetDefault("container.home", "/tmp")
	v.SetDefault("container.bridge_host", "host.docker.internal")

	// Dependency installer defaults
	v.SetDefault("deps.requirements", "./tools/config/requirements.txt")
	v.SetDefault("deps.skip", false)

	// Device signatures for the CP210x USB-UART bridge
	v.SetDefault("match.windows_description", "Silicon Labs CP210x USB to UART Bridge")
	v.SetDefault("match.darwin_prefix", "/dev/cu.SLAB_USBtoUART")
	v.SetDefault("match.linux_prefix", "/dev/ttyUSB")

	v.SetDefault("reap.timeout", "10s")

	v.SetDefault("state.dir", defaultStateDir())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", false)
}

// defaultPython returns the interpreter name that is on PATH by default:
// the python.org Windows installer ships "python", most Unix systems only
// guarantee "python3".
func defaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// defaultStateDir places bridge state under the user cache directory,
// falling back to the system temp directory when no cache dir exists.
func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "espbridge")
	}
	return filepath.Join(os.TempDir(), "espbridge")
}

// Validate checks the fields the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port %d out of range (1-65535)", c.Bridge.Port)
	}
	if c.Bridge.Script == "" {
		return fmt.Errorf("bridge.script must not be empty")
	}
	if c.Bridge.Python == "" {
		return fmt.Errorf("bridge.python must not be empty")
	}
	if c.Bridge.GracePeriod <= 0 {
		return fmt.Errorf("bridge.grace_period must be positive, got %s", c.Bridge.GracePeriod)
	}
	if c.Container.Image == "" {
		return fmt.Errorf("container.image must not be empty")
	}
	if c.Reap.Timeout <= 0 {
		return fmt.Errorf("reap.timeout must be positive, got %s", c.Reap.Timeout)
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir must not be empty")
	}
	return nil
}

// BridgeAddress returns the RFC2217 URL the toolchain uses to reach the
// bridge from inside the container.
func (c *Config) BridgeAddress() string {
	return fmt.Sprintf("rfc2217://%s:%d?ign_set_control", c.Container.BridgeHost, c.Bridge.Port)
}
