package sandbox

import (
	"context"
	"mtriage_go/common"
	"mtriage_go/customerrs"
	"os/exec"
	"time"
)

// State tracks the single-use executor lifecycle:
// Created -> WorkspacePrepared -> Launched -> {Completed|TimedOut|LaunchFailed} -> Cleaned
// A canceled run moves from Launched straight to Cleaned, it has no
// reportable outcome.
type State int

const (
	StateCreated State = iota
	StateWorkspacePrepared
	StateLaunched
	StateCompleted
	StateTimedOut
	StateLaunchFailed
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWorkspacePrepared:
		return "workspace_prepared"
	case StateLaunched:
		return "launched"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateLaunchFailed:
		return "launch_failed"
	case StateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

const (
	// how often the spawned process tree and its connection attempts are sampled
	observeInterval = 200 * time.Millisecond

	// workspace retention for forensic re-inspection of dropped artifacts
	defaultRetention = 10 * time.Minute

	// captured output is truncated to a tail of this size
	tailLimit = 4096
)

// launchedProc is what a platform backend hands back after starting the
// sample inside its isolation context.
type launchedProc struct {
	cmd            *exec.Cmd
	networkBlocked bool
	// killTree forcibly terminates the whole process tree, job object or
	// namespace root, transitively killing all children.
	killTree func()
	// release tears down isolation resources. Guaranteed to run exactly
	// once on every path, including early failure, so a created firewall
	// rule is always removed.
	release func()
}

// Executor runs one sample once under OS isolation. Each run owns its
// isolation context exclusively, instances are single-use.
type Executor struct {
	sampleSrc string
	timeout   time.Duration
	retention time.Duration
	state     State
	used      bool
}

func NewExecutor(samplePath string, timeout time.Duration) *Executor {
	return &Executor{
		sampleSrc: samplePath,
		timeout:   timeout,
		retention: defaultRetention,
		state:     StateCreated,
	}
}

// SetRetention overrides the forensic retention window, zero deletes the
// workspace immediately after the run.
func (e *Executor) SetRetention(d time.Duration) {
	e.retention = d
}

func (e *Executor) State() State {
	return e.state
}

// Probe reports the isolation backend available on this host. Called
// once at startup; when it reports unavailable the caller must be told
// "sandbox unavailable, static only" instead of running unsandboxed.
func Probe() string {
	return probeBackend()
}

// Run executes the sample and produces a SandboxRun exactly once. A
// timeout is a valid, reported outcome (success=true, timed_out=true),
// not a failure. Caller cancellation is not timeout evidence: the tree
// is killed and the workspace cleaned, but Run returns the context
// error and no run. Only launch-stage errors and cancellation return a
// nil run: they abort this scan's sandbox stage and nothing else.
func (e *Executor) Run(ctx context.Context) (*common.SandboxRun, error) {
	if e.used {
		return nil, customerrs.ErrSandboxAlreadyUsed
	}
	e.used = true

	if Probe() == common.SandboxBackendUnavailable {
		e.state = StateLaunchFailed
		return nil, customerrs.ErrSandboxUnavailable
	}

	ws, err := prepareWorkspace(e.sampleSrc)
	if err != nil {
		e.state = StateLaunchFailed
		return nil, err
	}
	e.state = StateWorkspacePrepared

	regBaseline := snapshotRegistry()

	stdoutTail := newTailBuffer(tailLimit)
	stderrTail := newTailBuffer(tailLimit)

	started := time.Now()
	lp, err := launchSample(ws.root, ws.samplePath, stdoutTail, stderrTail)
	if err != nil {
		common.Logger.Errorln("sandbox launch failed: ", err)
		e.state = StateLaunchFailed
		ws.scheduleCleanup(0)
		return nil, err
	}
	e.state = StateLaunched
	defer lp.release()

	obs := newProcObserver(int32(lp.cmd.Process.Pid))
	obsDone := make(chan struct{})
	obsStopped := make(chan struct{})
	go func() {
		defer close(obsStopped)
		ticker := time.NewTicker(observeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-obsDone:
				return
			case <-ticker.C:
				obs.poll()
			}
		}
	}()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- lp.cmd.Wait()
	}()

	timedOut := false
	canceled := false
	select {
	case <-waitCh:
		e.state = StateCompleted
	case <-time.After(e.timeout):
		timedOut = true
		lp.killTree()
		<-waitCh
		e.state = StateTimedOut
	case <-ctx.Done():
		// analyst abort, not sample behavior: the tree still dies
		// before cleanup but no outcome is reported as evidence
		canceled = true
		lp.killTree()
		<-waitCh
	}
	duration := time.Since(started)

	close(obsDone)
	<-obsStopped
	obs.poll()

	if canceled {
		obs.killOrphans()
		ws.scheduleCleanup(0)
		e.state = StateCleaned
		return nil, ctx.Err()
	}

	run := &common.SandboxRun{
		Success:           true,
		TimedOut:          timedOut,
		DurationMs:        duration.Milliseconds(),
		NetworkWasBlocked: lp.networkBlocked,
		ChildProcesses:    obs.childRecords(),
		NetworkAttempts:   obs.networkAttempts(),
		StdoutTail:        stdoutTail.String(),
		StderrTail:        stderrTail.String(),
	}
	if !timedOut && lp.cmd.ProcessState != nil {
		code := lp.cmd.ProcessState.ExitCode()
		run.ExitCode = &code
	}

	run.FilesCreated, run.FilesModified, run.FilesDeleted = ws.diff()
	run.RegistryModifications = diffRegistry(regBaseline, snapshotRegistry())

	// tree is dead, isolation context is torn down by the deferred
	// release, stragglers get hunted down before the workspace goes away
	obs.killOrphans()
	ws.scheduleCleanup(e.retention)
	e.state = StateCleaned

	return run, nil
}

// diffRegistry reports values present or changed relative to the
// pre-execution snapshot. Both maps are nil on platforms without a
// registry, which diffs to nothing.
func diffRegistry(before, after map[string]string) []string {
	var out []string
	for key, val := range after {
		if prev, ok := before[key]; !ok || prev != val {
			out = append(out, key+" = "+val)
		}
	}
	return out
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
