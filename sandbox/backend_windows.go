//go:build windows

package sandbox

import (
	"io"
	"mtriage_go/common"
	"mtriage_go/customerrs"
	"os/exec"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const (
	jobMemoryLimitBytes = 512 * 1024 * 1024
	jobActiveProcessCap = 32
	// per-job user-mode CPU budget, 100ns units (60s)
	jobCPUTimeLimit = 60 * 10 * 1000 * 1000
)

var (
	probeOnce   sync.Once
	probeResult string
)

// probeBackend verifies both primitives the Windows backend needs: a
// kernel job object and netsh for the outbound-block firewall rule.
// Missing network isolation means no sandbox at all, never a silent
// unsandboxed run.
func probeBackend() string {
	probeOnce.Do(func() {
		probeResult = common.SandboxBackendUnavailable
		job, err := windows.CreateJobObject(nil, nil)
		if err != nil {
			common.Logger.Warnln("job object probe failed, sandbox unavailable: ", err)
			return
		}
		_ = windows.CloseHandle(job)
		if _, err = exec.LookPath("netsh"); err != nil {
			common.Logger.Warnln(customerrs.ErrNetworkIsolationMissing)
			return
		}
		probeResult = common.SandboxBackendWindowsJob
	})
	return probeResult
}

func launchSample(workDir string, samplePath string, stdout, stderr io.Writer) (*launchedProc, error) {
	// outbound-block rule scoped to the sample copy's path, added before
	// the process starts so there is no unblocked window
	ruleName := "mtriage-sbx-" + filepath.Base(workDir)
	if err := addBlockRule(ruleName, samplePath); err != nil {
		return nil, customerrs.ErrNetworkIsolationMissing
	}
	removeRule := func() {
		if err := removeBlockRule(ruleName); err != nil {
			common.Logger.Errorln("firewall rule removal failed, manual cleanup needed: ", ruleName, err)
		}
	}

	job, err := newRestrictedJob()
	if err != nil {
		removeRule()
		return nil, err
	}

	cmd := exec.Command(samplePath)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err = cmd.Start(); err != nil {
		_ = windows.CloseHandle(job)
		removeRule()
		return nil, err
	}

	if err = assignToJob(job, uint32(cmd.Process.Pid)); err != nil {
		// never let the sample continue outside the job
		_ = cmd.Process.Kill()
		_ = windows.CloseHandle(job)
		removeRule()
		return nil, err
	}

	var releaseOnce sync.Once
	return &launchedProc{
		cmd:            cmd,
		networkBlocked: true,
		killTree: func() {
			_ = windows.TerminateJobObject(job, 1)
		},
		release: func() {
			releaseOnce.Do(func() {
				// KILL_ON_JOB_CLOSE makes this a second kill switch
				_ = windows.CloseHandle(job)
				removeRule()
			})
		},
	}, nil
}

// newRestrictedJob creates a job object with process-count, memory and
// CPU-time limits plus KILL_ON_JOB_CLOSE.
func newRestrictedJob() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE |
				windows.JOB_OBJECT_LIMIT_ACTIVE_PROCESS |
				windows.JOB_OBJECT_LIMIT_JOB_MEMORY |
				windows.JOB_OBJECT_LIMIT_JOB_TIME,
			ActiveProcessLimit:  jobActiveProcessCap,
			PerJobUserTimeLimit: jobCPUTimeLimit,
		},
		JobMemoryLimit: jobMemoryLimitBytes,
	}
	_, err = windows.SetInformationJobObject(job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)))
	if err != nil {
		_ = windows.CloseHandle(job)
		return 0, err
	}
	return job, nil
}

func assignToJob(job windows.Handle, pid uint32) error {
	hProc, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(hProc)
	return windows.AssignProcessToJobObject(job, hProc)
}

func addBlockRule(ruleName string, programPath string) error {
	cmd := exec.Command("netsh", "advfirewall", "firewall", "add", "rule",
		"name="+ruleName, "dir=out", "action=block", "program="+programPath,
		"enable=yes")
	return cmd.Run()
}

func removeBlockRule(ruleName string) error {
	cmd := exec.Command("netsh", "advfirewall", "firewall", "delete", "rule",
		"name="+ruleName)
	return cmd.Run()
}

// autorun registry locations worth diffing around a sandbox run
var watchedRunKeys = []struct {
	root registry.Key
	path string
	name string
}{
	{registry.CURRENT_USER, `Software\Microsoft\Windows\CurrentVersion\Run`, `HKCU\...\Run`},
	{registry.CURRENT_USER, `Software\Microsoft\Windows\CurrentVersion\RunOnce`, `HKCU\...\RunOnce`},
	{registry.LOCAL_MACHINE, `Software\Microsoft\Windows\CurrentVersion\Run`, `HKLM\...\Run`},
}

// snapshotRegistry captures the autorun persistence keys so a run-key
// dropped by the sample shows up in the post-run diff. Full registry
// auditing would need kernel hooking, which is out of scope.
func snapshotRegistry() map[string]string {
	snap := make(map[string]string)
	for _, wk := range watchedRunKeys {
		k, err := registry.OpenKey(wk.root, wk.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		names, err := k.ReadValueNames(0)
		if err == nil {
			for _, n := range names {
				val, _, verr := k.GetStringValue(n)
				if verr != nil {
					continue
				}
				snap[wk.name+"\\"+n] = val
			}
		}
		k.Close()
	}
	return snap
}
