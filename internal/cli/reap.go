// reap.go implements the "espbridge reap" command.
//
// The reap command runs only the cleanup step of a full run: it stops the
// previously launched bridge, or whatever else holds the bridge port.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/espbridge/internal/model"
	"github.com/shinji-kodama/espbridge/internal/port"
)

// reapFlags holds the flag values for the reap command.
type reapFlags struct {
	// port overrides the configured bridge port. Zero means bridge.port.
	port int
}

// NewReapCommand creates the "reap" cobra command.
func NewReapCommand() *cobra.Command {
	flags := &reapFlags{}

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Stop whatever process holds the bridge port",
		Long: `Stop the process occupying the bridge port.

The bridge recorded by the last launch is tried first. If it no longer owns
the port, every process is scanned and the first one with a connection on
the port is terminated, whether or not espbridge started it.

Examples:
  espbridge reap
  espbridge reap --port 4001
  espbridge reap --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runReap(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&flags.port, "port", 0, "Port to free (default: bridge.port)")

	return cmd
}

// runReap frees the port and reports the result.
func runReap(ctx context.Context, flags *reapFlags, w io.Writer) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	p := flags.port
	if p == 0 {
		p = a.cfg.Bridge.Port
	}
	if p < 1 || p > 65535 {
		return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("invalid port %d", p))
	}

	res, err := a.reaper().Reap(ctx, p)
	if err != nil {
		return model.WrapCLIError(model.ExitPortReapFailed, fmt.Sprintf("failed to free port %d", p), err)
	}
	available := port.NewScanner().IsPortAvailable(p, "tcp")

	if IsJSONOutput() {
		printJSON(w, buildReapResult(p, res, available))
		return nil
	}
	printReapText(w, p, res, available)
	return nil
}

// reapResultJSON is the --json output of the reap command.
type reapResultJSON struct {
	Port      int                  `json:"port"`
	Freed     bool                 `json:"freed"`
	Method    string               `json:"method,omitempty"`
	Process   *model.ProcessHandle `json:"process,omitempty"`
	Available bool                 `json:"available"`
}

func buildReapResult(p int, res port.ReapResult, available bool) reapResultJSON {
	out := reapResultJSON{
		Port:      p,
		Freed:     res.Freed,
		Method:    string(res.Method),
		Available: available,
	}
	if res.Freed {
		h := res.Process
		out.Process = &h
	}
	return out
}

func printReapText(w io.Writer, p int, res port.ReapResult, available bool) {
	if res.Freed {
		fmt.Fprintf(w, "Port %d was in use by %s and has been terminated.\n", p, res.Process)
	} else {
		fmt.Fprintf(w, "Port %d is free.\n", p)
	}
	if !available {
		fmt.Fprintf(w, "Warning: port %d still cannot be bound.\n", p)
	}
}
