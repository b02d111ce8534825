// Package cli implements the cobra-based CLI for espbridge.
//
// The root command performs the full run: install dependencies, free the
// bridge port, match the USB-UART adapter, launch the RFC2217 bridge and
// optionally run the ESP-IDF toolchain container. The ports and reap
// subcommands expose the discovery and cleanup steps on their own.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/espbridge/internal/model"
	"github.com/shinji-kodama/espbridge/internal/orchestrator"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, the final result is printed as JSON on stdout and status
	// messages move to stderr.
	jsonOutput bool

	// verbose raises the log level to debug.
	verbose bool

	// configPath is an explicit JSONC config file. Empty means
	// espbridge.jsonc in the working directory, if present.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// runFlags holds the flag values for the root run.
type runFlags struct {
	// flash runs the toolchain container in flashing mode after the
	// bridge starts.
	flash bool

	// startContainer runs the container without flashing.
	startContainer bool

	// nonInteractive selects background mode: no TTY, container output
	// goes to the container log.
	nonInteractive bool

	// skipDeps skips the pip install step.
	skipDeps bool
}

// mode maps --non-interactive to the run mode.
func (f *runFlags) mode() model.Mode {
	if f.nonInteractive {
		return model.ModeBackground
	}
	return model.ModeForeground
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand() *cobra.Command {
	flags := &runFlags{}

	rootCmd := &cobra.Command{
		// Use is the one-line usage pattern shown in help output.
		Use:   "espbridge",
		Short: "Expose an ESP32's USB-UART over RFC2217 and run the ESP-IDF container",
		Long: `espbridge prepares a local machine for flashing an ESP32 from the
espressif/idf Docker image.

It installs the bridge's Python requirements, frees TCP port 4000, finds the
CP210x USB-UART adapter, and starts esp_rfc2217_server.py against it as a
detached process. The container then reaches the device at
rfc2217://host.docker.internal:4000.

Examples:
  espbridge
  espbridge --flash
  espbridge --start-container
  espbridge --flash --non-interactive`,

		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd.Context(), flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	rootCmd.Flags().BoolVar(&flags.flash, "flash", false,
		"Flash the ESP32 from the container after the bridge starts")
	rootCmd.Flags().BoolVar(&flags.startContainer, "start-container", false,
		"Start the ESP-IDF container without flashing")
	rootCmd.Flags().BoolVar(&flags.nonInteractive, "non-interactive", false,
		"Run headless: no TTY, container output goes to the state log")
	rootCmd.Flags().BoolVar(&flags.skipDeps, "skip-deps", false,
		"Skip installing the bridge's Python requirements")

	// PersistentFlags are inherited by all subcommands.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSONC config file (default: ./espbridge.jsonc)")

	rootCmd.AddCommand(NewPortsCommand())
	rootCmd.AddCommand(NewReapCommand())

	return rootCmd
}

// runResultJSON is the --json output of a full run.
type runResultJSON struct {
	Outcome string `json:"outcome"`
	Mode    string `json:"mode"`
	OS      string `json:"os"`
	LogPath string `json:"bridgeLog,omitempty"`
}

// buildRunResult converts an outcome into the JSON document. The bridge
// log is only reported when a bridge was launched.
func buildRunResult(outcome orchestrator.Outcome, mode model.Mode, hostOS model.OS, bridgeLog string) runResultJSON {
	result := runResultJSON{
		Outcome: outcome.String(),
		Mode:    mode.String(),
		OS:      hostOS.String(),
	}
	switch outcome {
	case orchestrator.OutcomeBridge, orchestrator.OutcomeBridgeContainer:
		result.LogPath = bridgeLog
	}
	return result
}

// runRoot executes one full run through the orchestrator.
func runRoot(ctx context.Context, flags *runFlags, stdout, stderr io.Writer) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	if flags.skipDeps {
		a.cfg.Deps.Skip = true
	}

	// In JSON mode stdout carries only the result document.
	status := stdout
	if jsonOutput {
		status = stderr
	}

	opts := orchestrator.Options{
		Flash:          flags.flash,
		StartContainer: flags.startContainer,
		Mode:           flags.mode(),
		OS:             a.os,
		Port:           a.cfg.Bridge.Port,
		ProjectDir:     a.workDir,
	}

	if opts.Mode.IsInteractive() {
		opts.Stdin = os.Stdin
		opts.Stdout = status
		opts.Stderr = stderr
	} else {
		logFile, err := a.openContainerLog()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to open container log", err)
		}
		defer logFile.Close()
		opts.Stdout = logFile
		opts.Stderr = logFile
		fmt.Fprintf(status, "Running in background mode; container output goes to %s\n\n", a.store.ContainerLogPath())
	}

	outcome, err := orchestrator.New(a.dependencies(), status, a.logger).Run(ctx, opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(stdout, buildRunResult(outcome, opts.Mode, a.os, a.store.LogPath()))
	}
	return nil
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError types carry their own exit codes; other errors default to
// exit code 1.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(os.Stderr, cliErr.Message, cliErr.Err)
		} else {
			printError(os.Stderr, err.Error(), nil)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return int(model.ExitSuccess)
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return int(cliErr.Code)
	}
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
