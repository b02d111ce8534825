package docker

import (
	"fmt"
	"sort"
	"strconv"
)

// Label key constants for the toolchain container. They let a later run
// find and clean up a container this tool started, and let users see in
// `docker ps` which device a flashing run targeted.
//
// All keys share the "espbridge." prefix to avoid collisions with labels
// set by the espressif/idf image or other tools.
const (
	// LabelPrefix is the common prefix for all espbridge labels.
	LabelPrefix = "espbridge."

	// LabelManagedBy identifies containers started by espbridge.
	// Key: "espbridge.managed-by", Value: always "espbridge".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelFlash records whether the run was a flashing run.
	// Key: "espbridge.flash", Value: "true" or "false".
	LabelFlash = LabelPrefix + "flash"

	// LabelDevice records the serial device behind the bridge, if any.
	// Key: "espbridge.device", Value: e.g. "/dev/ttyUSB0" or "COM5".
	LabelDevice = LabelPrefix + "device"

	// LabelBridgePort records the bridge port the toolchain was pointed at.
	// Only set for flashing runs.
	LabelBridgePort = LabelPrefix + "bridge-port"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "espbridge"

// BuildLabels constructs the label map for a toolchain run.
func BuildLabels(flash bool, device string, bridgePort int) map[string]string {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelFlash:     strconv.FormatBool(flash),
	}
	if device != "" {
		labels[LabelDevice] = device
	}
	if flash && bridgePort > 0 {
		labels[LabelBridgePort] = strconv.Itoa(bridgePort)
	}
	return labels
}

// labelArgs renders labels as sorted --label flags so the printed command
// line is stable between runs.
func labelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return args
}
