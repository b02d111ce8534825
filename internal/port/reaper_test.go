package port

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shinji-kodama/espbridge/internal/model"
)

// fakeProcess is an in-memory Process. Terminating it removes its ports
// from the owning table, which is what "the port is now free" means to
// the next scan.
type fakeProcess struct {
	table *fakeTable

	pid          int32
	name         string
	ports        []uint32
	inspectErr   error
	terminateErr error
	ignoreTerm   bool // stays alive after Terminate, dies on Kill

	terminated bool
	killed     bool
	exited     bool
}

func (p *fakeProcess) PID() int32 { return p.pid }

func (p *fakeProcess) Name(context.Context) (string, error) { return p.name, nil }

func (p *fakeProcess) LocalPorts(context.Context) ([]uint32, error) {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	if p.inspectErr != nil {
		return nil, p.inspectErr
	}
	if p.exited {
		return nil, errors.New("process not running")
	}
	return p.ports, nil
}

func (p *fakeProcess) Terminate(context.Context) error {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	p.terminated = true
	if p.terminateErr != nil {
		return p.terminateErr
	}
	if !p.ignoreTerm {
		p.exited = true
	}
	return nil
}

func (p *fakeProcess) Kill(context.Context) error {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	p.killed = true
	p.exited = true
	return nil
}

func (p *fakeProcess) Exited(context.Context) (bool, error) {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	return p.exited, nil
}

type fakeTable struct {
	mu      sync.Mutex
	procs   []*fakeProcess
	listErr error
}

func (t *fakeTable) add(p *fakeProcess) *fakeProcess {
	p.table = t
	t.procs = append(t.procs, p)
	return p
}

func (t *fakeTable) Processes(context.Context) ([]Process, error) {
	if t.listErr != nil {
		return nil, t.listErr
	}
	out := make([]Process, 0, len(t.procs))
	for _, p := range t.procs {
		if !p.exited {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTable) Lookup(_ context.Context, pid int32) (Process, error) {
	for _, p := range t.procs {
		if p.pid == pid && !p.exited {
			return p, nil
		}
	}
	return nil, errors.New("process does not exist")
}

type fakeRecords struct {
	rec     model.BridgeRecord
	ok      bool
	loadErr error
	cleared int
}

func (f *fakeRecords) Load() (model.BridgeRecord, bool, error) { return f.rec, f.ok, f.loadErr }

func (f *fakeRecords) Clear() error {
	f.cleared++
	f.ok = false
	return nil
}

func newTestReaper(table ProcessTable, records RecordSource) *Reaper {
	r := NewReaper(table, records, 200*time.Millisecond, zap.NewNop())
	r.pollInterval = 5 * time.Millisecond
	return r
}

// TestReap_TerminatesOccupant verifies that the process bound to the port
// is terminated and that a second scan then sees the port as free.
func TestReap_TerminatesOccupant(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProcess{pid: 10, name: "sshd", ports: []uint32{22}})
	bridge := table.add(&fakeProcess{pid: 20, name: "python3", ports: []uint32{4000, 51234}})

	r := newTestReaper(table, nil)

	res, err := r.Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.True(t, res.Freed)
	assert.Equal(t, MethodScan, res.Method)
	assert.Equal(t, int32(20), res.Process.PID)
	assert.Equal(t, "python3", res.Process.Name)
	assert.True(t, bridge.terminated)
	assert.True(t, bridge.exited)

	again, err := r.Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.False(t, again.Freed, "port should be reported free after the reap")
}

// TestReap_FreePortIsIdempotent runs the reaper twice on a free port; both
// runs must report "free" and touch nothing.
func TestReap_FreePortIsIdempotent(t *testing.T) {
	table := &fakeTable{}
	other := table.add(&fakeProcess{pid: 10, name: "nginx", ports: []uint32{80, 443}})

	r := newTestReaper(table, nil)
	for i := 0; i < 2; i++ {
		res, err := r.Reap(context.Background(), 4000)
		require.NoError(t, err)
		assert.False(t, res.Freed)
		assert.Equal(t, MethodNone, res.Method)
	}
	assert.False(t, other.terminated)
}

// TestReap_SkipsUninspectableProcesses verifies that access-denied,
// vanished and zombie processes are skipped without failing the scan.
func TestReap_SkipsUninspectableProcesses(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProcess{pid: 1, name: "launchd", inspectErr: errors.New("operation not permitted")})
	table.add(&fakeProcess{pid: 2, name: "gone", inspectErr: errors.New("process does not exist")})
	table.add(&fakeProcess{pid: 3, name: "zombie", inspectErr: errors.New("zombie process")})
	target := table.add(&fakeProcess{pid: 4, name: "python", ports: []uint32{4000}})

	res, err := newTestReaper(table, nil).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.True(t, res.Freed)
	assert.Equal(t, int32(4), res.Process.PID)
	assert.True(t, target.exited)
}

// TestReap_KillsAfterTimeout verifies escalation to Kill when the occupant
// ignores Terminate.
func TestReap_KillsAfterTimeout(t *testing.T) {
	table := &fakeTable{}
	stubborn := table.add(&fakeProcess{pid: 7, name: "stubborn", ports: []uint32{4000}, ignoreTerm: true})

	r := newTestReaper(table, nil)
	r.timeout = 20 * time.Millisecond

	res, err := r.Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.True(t, res.Freed)
	assert.True(t, stubborn.terminated)
	assert.True(t, stubborn.killed)
}

func TestReap_TerminateDenied(t *testing.T) {
	table := &fakeTable{}
	table.add(&fakeProcess{pid: 9, name: "root-owned", ports: []uint32{4000}, terminateErr: errors.New("permission denied")})

	_, err := newTestReaper(table, nil).Reap(context.Background(), 4000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root-owned (PID: 9)")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestReap_ListError(t *testing.T) {
	table := &fakeTable{listErr: errors.New("failed to list processes")}
	_, err := newTestReaper(table, nil).Reap(context.Background(), 4000)
	assert.Error(t, err)
}

// TestReap_PrefersRecordedBridge verifies that when the recorded PID still
// owns the port it is terminated directly, without scanning, and the
// record is cleared.
func TestReap_PrefersRecordedBridge(t *testing.T) {
	table := &fakeTable{}
	// An unrelated process listed first also claims the port (SO_REUSEPORT);
	// the record must win over scan order.
	unrelated := table.add(&fakeProcess{pid: 5, name: "other", ports: []uint32{4000}})
	bridge := table.add(&fakeProcess{pid: 50, name: "python3", ports: []uint32{4000}})
	records := &fakeRecords{ok: true, rec: model.BridgeRecord{PID: 50, Port: 4000, Device: "/dev/ttyUSB0"}}

	res, err := newTestReaper(table, records).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.True(t, res.Freed)
	assert.Equal(t, MethodRecord, res.Method)
	assert.Equal(t, int32(50), res.Process.PID)
	assert.True(t, bridge.exited)
	assert.False(t, unrelated.terminated)
	assert.Equal(t, 1, records.cleared)
}

// TestReap_StaleRecordFallsBackToScan covers a recorded PID that exists
// but no longer owns the port (PID reuse).
func TestReap_StaleRecordFallsBackToScan(t *testing.T) {
	table := &fakeTable{}
	reused := table.add(&fakeProcess{pid: 50, name: "bash", ports: nil})
	occupant := table.add(&fakeProcess{pid: 60, name: "python3", ports: []uint32{4000}})
	records := &fakeRecords{ok: true, rec: model.BridgeRecord{PID: 50, Port: 4000}}

	res, err := newTestReaper(table, records).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.Equal(t, MethodScan, res.Method)
	assert.Equal(t, int32(60), res.Process.PID)
	assert.False(t, reused.terminated, "a reused PID must never be terminated")
	assert.True(t, occupant.exited)
	assert.Equal(t, 1, records.cleared)
}

func TestReap_RecordedProcessGone(t *testing.T) {
	table := &fakeTable{}
	records := &fakeRecords{ok: true, rec: model.BridgeRecord{PID: 999, Port: 4000}}

	res, err := newTestReaper(table, records).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.False(t, res.Freed)
	assert.Equal(t, 1, records.cleared)
}

func TestReap_UnreadableRecordIgnored(t *testing.T) {
	table := &fakeTable{}
	occupant := table.add(&fakeProcess{pid: 60, name: "python3", ports: []uint32{4000}})
	records := &fakeRecords{loadErr: errors.New("yaml: line 1: did not find expected key")}

	res, err := newTestReaper(table, records).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.True(t, res.Freed)
	assert.True(t, occupant.exited)
}

// TestReap_RecordForDifferentPort verifies a record for another port is
// left alone.
func TestReap_RecordForDifferentPort(t *testing.T) {
	table := &fakeTable{}
	records := &fakeRecords{ok: true, rec: model.BridgeRecord{PID: 50, Port: 4001}}

	res, err := newTestReaper(table, records).Reap(context.Background(), 4000)
	require.NoError(t, err)
	assert.False(t, res.Freed)
	assert.Equal(t, 0, records.cleared)
}

// TestReaper_ImplementsUnsafeReaper keeps the interface contract explicit.
func TestReaper_ImplementsUnsafeReaper(t *testing.T) {
	var _ UnsafeReaper = NewReaper(&fakeTable{}, nil, time.Second, zap.NewNop())
}
