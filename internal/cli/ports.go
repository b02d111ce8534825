// ports.go implements the "espbridge ports" command.
//
// The ports command enumerates serial ports and shows which one, if any,
// matches the USB-UART adapter signature for this OS. It changes nothing
// on the system, so it is the quickest way to check drivers and cabling.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// NewPortsCommand creates the "ports" cobra command.
func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and the matched ESP32 adapter",
		Long: `List the serial ports visible to the OS and mark the one matching the
CP210x USB-UART adapter signature for this platform.

Examples:
  espbridge ports
  espbridge ports --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPorts(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// runPorts enumerates, matches and prints.
func runPorts(ctx context.Context, w io.Writer) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ports, err := a.enumerator().List(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to enumerate serial ports", err)
	}
	match, ok := a.matcher().Match(ports, a.os)

	if IsJSONOutput() {
		printJSON(w, buildPortsResult(a.os, ports, match, ok))
		return nil
	}
	printPortsText(w, a.os, ports, match, ok)
	return nil
}

// portsResultJSON is the --json output of the ports command.
type portsResultJSON struct {
	OS    string                 `json:"os"`
	Ports []model.SerialPortInfo `json:"ports"`
	Match *model.SerialPortInfo  `json:"match"`
}

// buildPortsResult converts an enumeration into the JSON document. Ports
// is never null and Match is null when nothing matched.
func buildPortsResult(hostOS model.OS, ports []model.SerialPortInfo, match model.SerialPortInfo, ok bool) portsResultJSON {
	result := portsResultJSON{
		OS:    hostOS.String(),
		Ports: make([]model.SerialPortInfo, 0, len(ports)),
	}
	result.Ports = append(result.Ports, ports...)
	if ok {
		m := match
		result.Match = &m
	}
	return result
}

// printPortsText prints the port list with the matched port marked.
//
//	Available serial ports:
//	 - /dev/ttyS0: n/a
//	 * /dev/ttyUSB0: CP2102 USB to UART Bridge Controller
//	Your operating system is: Linux
//	Match found: /dev/ttyUSB0 -> CP2102 USB to UART Bridge Controller
func printPortsText(w io.Writer, hostOS model.OS, ports []model.SerialPortInfo, match model.SerialPortInfo, ok bool) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return
	}

	fmt.Fprintln(w, "Available serial ports:")
	for _, p := range ports {
		marker := "-"
		if ok && p.Device == match.Device {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s\n", marker, p)
	}

	fmt.Fprintf(w, "Your operating system is: %s\n", hostOS.DisplayName())
	if ok {
		fmt.Fprintf(w, "Match found: %s -> %s\n", match.Device, match.Description)
	} else {
		fmt.Fprintln(w, "No matching serial port found.")
	}
}
