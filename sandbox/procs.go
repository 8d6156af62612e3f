package sandbox

import (
	"fmt"
	"mtriage_go/common"
	"sort"

	psutil "github.com/shirou/gopsutil/v4/process"
)

// procObserver accumulates the spawned process tree as a flat,
// append-only set of {pid, name, parent_pid} records. Hierarchy is
// reconstructed by the report consumer only, never used for control flow.
type procObserver struct {
	rootPID int32
	seen    map[int32]common.ChildProcess
	netSeen map[string]struct{}
	netLog  []string
}

func newProcObserver(rootPID int32) *procObserver {
	return &procObserver{
		rootPID: rootPID,
		seen:    make(map[int32]common.ChildProcess),
		netSeen: make(map[string]struct{}),
	}
}

// poll walks the descendants of the sandboxed root process and records
// any pid not seen before, plus connection attempts the isolation layer
// is blocking. Called repeatedly while the sample runs, processes that
// exit between polls keep their record.
func (o *procObserver) poll() {
	root, err := psutil.NewProcess(o.rootPID)
	if err != nil {
		return
	}
	o.recordConnections(root)
	children, err := root.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		o.recordTree(c, o.rootPID, 0)
	}
}

func (o *procObserver) recordTree(p *psutil.Process, parent int32, depth int) {
	// adversarial fork storms, stop descending at a sane depth
	if depth > 16 {
		return
	}
	if _, ok := o.seen[p.Pid]; !ok {
		name, err := p.Name()
		if err != nil {
			name = "unknown"
		}
		o.seen[p.Pid] = common.ChildProcess{PID: p.Pid, Name: name, ParentPID: parent}
	}
	o.recordConnections(p)
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		o.recordTree(c, p.Pid, depth+1)
	}
}

func (o *procObserver) recordConnections(p *psutil.Process) {
	conns, err := p.Connections()
	if err != nil {
		return
	}
	for _, conn := range conns {
		if conn.Raddr.IP == "" {
			continue
		}
		key := fmt.Sprintf("%s:%d", conn.Raddr.IP, conn.Raddr.Port)
		if _, ok := o.netSeen[key]; ok {
			continue
		}
		o.netSeen[key] = struct{}{}
		o.netLog = append(o.netLog, fmt.Sprintf("%s (%s)", key, conn.Status))
	}
}

// childRecords returns the flat spawn list ordered by pid for stable output.
func (o *procObserver) childRecords() []common.ChildProcess {
	out := make([]common.ChildProcess, 0, len(o.seen))
	for _, cp := range o.seen {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (o *procObserver) networkAttempts() []string {
	return o.netLog
}

// killOrphans force-terminates any recorded descendant still alive after
// the isolation context was torn down. Cleanup must leave zero orphans.
func (o *procObserver) killOrphans() {
	for pid := range o.seen {
		p, err := psutil.NewProcess(pid)
		if err != nil {
			continue
		}
		if running, err := p.IsRunning(); err != nil || !running {
			continue
		}
		common.Logger.Warnf("orphaned sandbox child pid %d survived teardown, killing\n", pid)
		if err := p.Kill(); err != nil {
			_ = p.Terminate()
		}
	}
}
