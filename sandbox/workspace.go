package sandbox

import (
	"io"
	"io/fs"
	"mtriage_go/common"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// workspace is the isolated scratch directory one sandbox run owns
// exclusively. The sample is copied in, never moved or symlinked: the
// original file is never touched or executed directly.
type workspace struct {
	root       string
	samplePath string
	baseline   map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func prepareWorkspace(sampleSrc string) (*workspace, error) {
	root := filepath.Join(os.TempDir(), "mtriage-sbx-"+uuid.NewString())
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, err
	}
	dst := filepath.Join(root, "sample"+filepath.Ext(sampleSrc))
	if err := copyFile(sampleSrc, dst); err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	ws := &workspace{root: root, samplePath: dst}
	ws.baseline = ws.snapshot()
	return ws, nil
}

func copyFile(src, dst string) error {
	in, err := os.OpenFile(src, os.O_RDONLY, 0644)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0700)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// snapshot records every file under the workspace with size and mtime.
// Walk errors are ignored, a file the sample made unreadable still shows
// up in the listing keys.
func (w *workspace) snapshot() map[string]fileStamp {
	listing := make(map[string]fileStamp)
	_ = filepath.WalkDir(w.root, func(curPath string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, curPath)
		if rerr != nil {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			listing[rel] = fileStamp{}
			return nil
		}
		listing[rel] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return listing
}

// diff compares the current listing against the pre-execution baseline
// and derives created, modified and deleted paths.
func (w *workspace) diff() (created, modified, deleted []string) {
	current := w.snapshot()
	for rel, stamp := range current {
		base, existed := w.baseline[rel]
		if !existed {
			created = append(created, rel)
			continue
		}
		if base.size != stamp.size || !base.modTime.Equal(stamp.modTime) {
			modified = append(modified, rel)
		}
	}
	for rel := range w.baseline {
		if _, still := current[rel]; !still {
			deleted = append(deleted, rel)
		}
	}
	return created, modified, deleted
}

// scheduleCleanup removes the workspace after the retention window, which
// exists so a human can re-inspect dropped artifacts. A zero window
// deletes immediately. Runs regardless of how the run ended.
func (w *workspace) scheduleCleanup(retention time.Duration) {
	if retention <= 0 {
		if err := os.RemoveAll(w.root); err != nil {
			common.Logger.Warnln("workspace cleanup failed: ", err)
		}
		return
	}
	root := w.root
	time.AfterFunc(retention, func() {
		if err := os.RemoveAll(root); err != nil && common.Logger != nil {
			common.Logger.Warnln("deferred workspace cleanup failed: ", err)
		}
	})
}
