package port

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable is the reaper's view of the OS process list.
type ProcessTable interface {
	// Processes returns every process the caller can see.
	Processes(ctx context.Context) ([]Process, error)

	// Lookup returns the process with the given PID, or an error if it
	// does not exist.
	Lookup(ctx context.Context, pid int32) (Process, error)
}

// Process is a single OS process as seen by the reaper. Every getter may
// fail when the process vanishes, is a zombie, or denies inspection.
type Process interface {
	PID() int32
	Name(ctx context.Context) (string, error)
	LocalPorts(ctx context.Context) ([]uint32, error)
	Terminate(ctx context.Context) error
	Kill(ctx context.Context) error

	// Exited reports whether the process is gone or only a zombie entry
	// remains.
	Exited(ctx context.Context) (bool, error)
}

// SystemTable is the gopsutil-backed ProcessTable.
type SystemTable struct{}

// NewSystemTable returns a ProcessTable reading the live OS process list.
func NewSystemTable() *SystemTable {
	return &SystemTable{}
}

// Processes lists all processes via gopsutil.
func (SystemTable) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, &systemProcess{p: p})
	}
	return out, nil
}

// Lookup opens a single process by PID.
func (SystemTable) Lookup(ctx context.Context, pid int32) (Process, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	return &systemProcess{p: p}, nil
}

type systemProcess struct {
	p *process.Process
}

func (s *systemProcess) PID() int32 {
	return s.p.Pid
}

func (s *systemProcess) Name(ctx context.Context) (string, error) {
	return s.p.NameWithContext(ctx)
}

// LocalPorts returns the local port of each of the process's connections.
// Unix domain sockets report port 0 and never match a TCP port.
func (s *systemProcess) LocalPorts(ctx context.Context) ([]uint32, error) {
	conns, err := s.p.ConnectionsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	ports := make([]uint32, 0, len(conns))
	for _, c := range conns {
		if c.Laddr.Port == 0 || slices.Contains(ports, c.Laddr.Port) {
			continue
		}
		ports = append(ports, c.Laddr.Port)
	}
	return ports, nil
}

func (s *systemProcess) Terminate(ctx context.Context) error {
	return s.p.TerminateWithContext(ctx)
}

func (s *systemProcess) Kill(ctx context.Context) error {
	return s.p.KillWithContext(ctx)
}

func (s *systemProcess) Exited(ctx context.Context) (bool, error) {
	running, err := s.p.IsRunningWithContext(ctx)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return true, nil
		}
		return false, err
	}
	if !running {
		return true, nil
	}

	// A terminated child that nobody reaped still shows up as running.
	statuses, err := s.p.StatusWithContext(ctx)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return true, nil
		}
		return false, nil
	}
	return slices.Contains(statuses, process.Zombie), nil
}
