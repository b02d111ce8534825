package port

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// defaultPollInterval is how often the reaper re-checks whether a
// terminated process has exited.
const defaultPollInterval = 50 * time.Millisecond

// UnsafeReaper frees a TCP port by terminating the process bound to it.
//
// Implementations may terminate a process this tool never started if it
// happens to hold the port. Callers accept that risk; the interface exists
// so a safer ownership check can be added without touching them.
type UnsafeReaper interface {
	Reap(ctx context.Context, port int) (ReapResult, error)
}

// ReapMethod records how the occupant was found.
type ReapMethod string

const (
	// MethodNone means the port was already free.
	MethodNone ReapMethod = ""

	// MethodRecord means the PID came from the last bridge record.
	MethodRecord ReapMethod = "record"

	// MethodScan means the PID was found by scanning all processes.
	MethodScan ReapMethod = "scan"
)

// ReapResult reports the outcome of a Reap call.
type ReapResult struct {
	// Freed is true when a process was terminated. False means the port
	// was already free.
	Freed bool

	// Process is the terminated occupant, zero when Freed is false.
	Process model.ProcessHandle

	// Method is how the occupant was located.
	Method ReapMethod
}

// RecordSource provides the PID recorded by the last bridge launch.
// state.Store satisfies it.
type RecordSource interface {
	Load() (model.BridgeRecord, bool, error)
	Clear() error
}

// Reaper implements UnsafeReaper on top of a ProcessTable.
type Reaper struct {
	table        ProcessTable
	records      RecordSource
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewReaper creates a Reaper. records may be nil, in which case only the
// port scan is used. timeout bounds how long to wait for a terminated
// process to exit before it is killed.
func NewReaper(table ProcessTable, records RecordSource, timeout time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		table:        table,
		records:      records,
		timeout:      timeout,
		pollInterval: defaultPollInterval,
		logger:       logger.With(zap.String("component", "reaper")),
	}
}

// Reap terminates the process bound to port and waits for it to exit.
//
// The recorded bridge PID is tried first when it still owns the port.
// Otherwise every process is scanned; processes that vanish mid-scan, deny
// inspection, or are zombies are skipped. Running Reap on a free port is a
// no-op that reports Freed=false.
func (r *Reaper) Reap(ctx context.Context, port int) (ReapResult, error) {
	if r.records != nil {
		res, ok, err := r.reapRecorded(ctx, port)
		if err != nil || ok {
			return res, err
		}
	}
	return r.reapByScan(ctx, port)
}

// reapRecorded handles the PID from the bridge record. The boolean is
// false when the record is missing or stale and the scan must run.
func (r *Reaper) reapRecorded(ctx context.Context, port int) (ReapResult, bool, error) {
	rec, ok, err := r.records.Load()
	if err != nil {
		// An unreadable record only costs us the fast path.
		r.logger.Warn("ignoring unreadable bridge record", zap.Error(err))
		return ReapResult{}, false, nil
	}
	if !ok || rec.Port != port || rec.PID <= 0 {
		return ReapResult{}, false, nil
	}

	log := r.logger.With(zap.Int("pid", rec.PID), zap.Int("port", port))

	p, err := r.table.Lookup(ctx, int32(rec.PID))
	if err != nil {
		log.Debug("recorded bridge is gone", zap.Error(err))
		r.clearRecord()
		return ReapResult{}, false, nil
	}

	ports, err := p.LocalPorts(ctx)
	if err != nil || !slices.Contains(ports, uint32(port)) {
		// The PID was reused or the bridge died and something else took
		// the port. Either way the record no longer describes the occupant.
		log.Debug("recorded bridge no longer owns the port", zap.Error(err))
		r.clearRecord()
		return ReapResult{}, false, nil
	}

	handle := r.handleFor(ctx, p, ports)
	if err := r.terminate(ctx, p); err != nil {
		return ReapResult{}, true, fmt.Errorf("failed to terminate %s on port %d: %w", handle, port, err)
	}
	r.clearRecord()

	log.Info("terminated recorded bridge", zap.String("name", handle.Name))
	return ReapResult{Freed: true, Process: handle, Method: MethodRecord}, true, nil
}

// reapByScan walks every visible process looking for one whose inet
// connections include port.
func (r *Reaper) reapByScan(ctx context.Context, port int) (ReapResult, error) {
	procs, err := r.table.Processes(ctx)
	if err != nil {
		return ReapResult{}, err
	}

	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return ReapResult{}, err
		}

		ports, err := p.LocalPorts(ctx)
		if err != nil {
			// Vanished, zombie or access denied; none of these can be
			// the occupant we are able to act on.
			r.logger.Debug("skipping process", zap.Int32("pid", p.PID()), zap.Error(err))
			continue
		}
		if !slices.Contains(ports, uint32(port)) {
			continue
		}

		handle := r.handleFor(ctx, p, ports)
		r.logger.Info("port in use, terminating occupant",
			zap.Int("port", port), zap.Int32("pid", handle.PID), zap.String("name", handle.Name))

		if err := r.terminate(ctx, p); err != nil {
			if gone, _ := p.Exited(ctx); gone {
				r.logger.Debug("occupant exited on its own", zap.Int32("pid", handle.PID))
				continue
			}
			return ReapResult{}, fmt.Errorf("failed to terminate %s on port %d: %w", handle, port, err)
		}
		return ReapResult{Freed: true, Process: handle, Method: MethodScan}, nil
	}

	return ReapResult{}, nil
}

func (r *Reaper) handleFor(ctx context.Context, p Process, ports []uint32) model.ProcessHandle {
	name, err := p.Name(ctx)
	if err != nil {
		name = ""
	}
	return model.ProcessHandle{PID: p.PID(), Name: name, LocalPorts: ports}
}

// terminate asks the process to exit and blocks until it has. If it is
// still alive after the timeout it is killed.
func (r *Reaper) terminate(ctx context.Context, p Process) error {
	if err := p.Terminate(ctx); err != nil {
		return err
	}
	if r.waitExit(ctx, p, r.timeout) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.logger.Warn("process ignored terminate, killing", zap.Int32("pid", p.PID()))
	if err := p.Kill(ctx); err != nil {
		return err
	}
	if !r.waitExit(ctx, p, r.timeout) {
		return fmt.Errorf("process %d still running after kill", p.PID())
	}
	return nil
}

// waitExit polls until p has exited, the timeout elapses, or ctx ends.
func (r *Reaper) waitExit(ctx context.Context, p Process, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if gone, err := p.Exited(ctx); err == nil && gone {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

func (r *Reaper) clearRecord() {
	if err := r.records.Clear(); err != nil {
		r.logger.Warn("failed to clear bridge record", zap.Error(err))
	}
}
