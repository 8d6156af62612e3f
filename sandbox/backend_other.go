//go:build !linux && !windows

package sandbox

import (
	"io"
	"mtriage_go/common"
	"mtriage_go/customerrs"
)

func probeBackend() string {
	return common.SandboxBackendUnavailable
}

func launchSample(workDir string, samplePath string, stdout, stderr io.Writer) (*launchedProc, error) {
	return nil, customerrs.ErrUnsupportedPlatform
}

func snapshotRegistry() map[string]string {
	return nil
}
