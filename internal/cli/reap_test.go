package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shinji-kodama/espbridge/internal/model"
	"github.com/shinji-kodama/espbridge/internal/port"
)

// TestPrintReapText verifies the reap command's text output for a free
// port, a terminated occupant, and a port that still cannot be bound.
func TestPrintReapText(t *testing.T) {
	tests := []struct {
		name      string
		res       port.ReapResult
		available bool
		want      string
	}{
		{
			name:      "already free",
			available: true,
			want:      "Port 4000 is free.\n",
		},
		{
			name: "terminated occupant",
			res: port.ReapResult{
				Freed:   true,
				Process: model.ProcessHandle{PID: 812, Name: "python3"},
				Method:  port.MethodRecord,
			},
			available: true,
			want:      "Port 4000 was in use by python3 (PID: 812) and has been terminated.\n",
		},
		{
			name:      "still bound",
			available: false,
			want:      "Port 4000 is free.\nWarning: port 4000 still cannot be bound.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printReapText(&buf, 4000, tt.res, tt.available)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

// TestBuildReapResult verifies the JSON document omits the process and
// method when nothing was terminated.
func TestBuildReapResult(t *testing.T) {
	var buf bytes.Buffer
	printJSON(&buf, buildReapResult(4000, port.ReapResult{}, true))
	assert.JSONEq(t, `{"port": 4000, "freed": false, "available": true}`, buf.String())

	buf.Reset()
	printJSON(&buf, buildReapResult(4000, port.ReapResult{
		Freed:   true,
		Process: model.ProcessHandle{PID: 812, Name: "python3", LocalPorts: []uint32{4000}},
		Method:  port.MethodScan,
	}, true))
	assert.JSONEq(t, `{
		"port": 4000,
		"freed": true,
		"method": "scan",
		"process": {"pid": 812, "name": "python3", "localPorts": [4000]},
		"available": true
	}`, buf.String())
}
