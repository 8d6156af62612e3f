//go:build linux

package sandbox

import (
	"io"
	"mtriage_go/common"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	probeOnce   sync.Once
	probeResult string
)

// probeBackend checks once whether unprivileged user namespaces actually
// work here, by cloning a trivial process with the full isolation flag
// set. Kernels with kernel.unprivileged_userns_clone=0 fail this.
func probeBackend() string {
	probeOnce.Do(func() {
		probeResult = common.SandboxBackendUnavailable
		cmd := exec.Command("/bin/true")
		cmd.SysProcAttr = isolationAttrs()
		if err := cmd.Run(); err != nil {
			if common.Logger != nil {
				common.Logger.Warnln("namespace isolation probe failed, sandbox unavailable: ", err)
			}
			return
		}
		probeResult = common.SandboxBackendLinuxNamespace
	})
	return probeResult
}

// isolationAttrs builds the clone flag set for a sandboxed child:
// a new unprivileged user namespace mapping the current uid to root
// inside, a new PID namespace so the sample becomes init of its own
// tree, a new mount namespace for an isolated /proc view, and a new
// network namespace whose only interface is a down loopback, which is
// the network containment layer.
func isolationAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUSER | syscall.CLONE_NEWPID |
			syscall.CLONE_NEWNS | syscall.CLONE_NEWNET,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
		GidMappingsEnableSetgroups: false,
		Setpgid:                    true,
	}
}

func launchSample(workDir string, samplePath string, stdout, stderr io.Writer) (*launchedProc, error) {
	cmd := exec.Command(samplePath)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// minimal environment, nothing from the host leaks in
	cmd.Env = []string{"PATH=/usr/bin:/bin", "HOME=" + workDir, "TMPDIR=" + workDir}
	cmd.SysProcAttr = isolationAttrs()

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid

	return &launchedProc{
		cmd: cmd,
		// the netns has no usable interface, outbound traffic cannot leave
		networkBlocked: true,
		killTree: func() {
			// killing the process group and the pid-namespace init
			// transitively takes down every descendant
			_ = unix.Kill(-pid, unix.SIGKILL)
			_ = unix.Kill(pid, unix.SIGKILL)
		},
		release: func() {},
	}, nil
}

// snapshotRegistry has nothing to snapshot on Linux.
func snapshotRegistry() map[string]string {
	return nil
}
