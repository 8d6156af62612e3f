package engine_test

import (
	"context"
	"errors"
	"io"
	"mtriage_go/common"
	"mtriage_go/config"
	"mtriage_go/customerrs"
	"mtriage_go/engine"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	common.Logger = logger
	os.Exit(m.Run())
}

// fallbackEngine builds an engine without any rule source configured, so
// signature matching runs on the built-in pattern table.
func fallbackEngine() *engine.Engine {
	cfg := config.Defaults()
	cfg.Triage.Rules.Dir = ""
	return engine.New(cfg)
}

func TestScanFile_ZeroByteFile(t *testing.T) {
	eng := fallbackEngine()

	p := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(p, nil, 0644); err != nil {
		t.Fatal(err)
	}

	res, err := eng.ScanFile(context.Background(), p, engine.FileScanOptions{})
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if res.Scoring.Score != 0 {
		t.Errorf("Score = %d, want 0", res.Scoring.Score)
	}
	if res.Scoring.Verdict != common.VerdictSafe {
		t.Errorf("Verdict = %q, want %q", res.Scoring.Verdict, common.VerdictSafe)
	}
	if res.Structural.IsRecognizedFormat {
		t.Error("IsRecognizedFormat = true for empty file")
	}
	if res.IOCs.Total() != 0 {
		t.Errorf("IOCs.Total() = %d, want 0", res.IOCs.Total())
	}
	if res.Size != 0 {
		t.Errorf("Size = %d, want 0", res.Size)
	}
	if res.SHA256 != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("SHA256 = %q", res.SHA256)
	}
	if res.ScanID == "" {
		t.Error("ScanID is empty")
	}
	if res.Sandbox != nil {
		t.Error("Sandbox populated without being requested")
	}
}

func TestScanFile_FallbackSignatures(t *testing.T) {
	eng := fallbackEngine()
	if eng.Capabilities().SignatureEngine != common.SigEngineFallback {
		t.Fatalf("SignatureEngine = %q, want fallback", eng.Capabilities().SignatureEngine)
	}

	p := filepath.Join(t.TempDir(), "dropper.bat")
	script := `powershell -enc SQBFAFgA
reg add HKCU\Software\Microsoft\Windows\CurrentVersion\Run /v svc /d C:\ProgramData\svc.exe
beacon http://c2.example.com/gate.php`
	if err := os.WriteFile(p, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := eng.ScanFile(context.Background(), p, engine.FileScanOptions{})
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if len(res.Matches) == 0 {
		t.Fatal("no signature matches over known-bad content")
	}
	if res.Scoring.Score == 0 {
		t.Error("Score = 0 over known-bad content")
	}
	if len(res.IOCs[common.IOCKindURL]) == 0 {
		t.Errorf("no URL indicators extracted: %v", res.IOCs)
	}
	if len(res.IOCs[common.IOCKindRegistryKey]) == 0 {
		t.Errorf("no registry indicators extracted: %v", res.IOCs)
	}
	// every match is mirrored into findings
	if len(res.Findings) < len(res.Matches) {
		t.Errorf("len(Findings) = %d < len(Matches) = %d", len(res.Findings), len(res.Matches))
	}
}

func TestScanFile_InputErrors(t *testing.T) {
	eng := fallbackEngine()

	t.Run("missing file", func(t *testing.T) {
		_, err := eng.ScanFile(context.Background(), filepath.Join(t.TempDir(), "gone"), engine.FileScanOptions{})
		if !errors.Is(err, customerrs.ErrInputFileNotFound) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrInputFileNotFound)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := eng.ScanFile(context.Background(), t.TempDir(), engine.FileScanOptions{})
		if !errors.Is(err, customerrs.ErrInputNotRegular) {
			t.Errorf("err = %v, want %v", err, customerrs.ErrInputNotRegular)
		}
	})
}

func TestScanURL_BlockedBeforeFetch(t *testing.T) {
	eng := fallbackEngine()

	tests := []struct {
		rawURL  string
		wantErr error
	}{
		{"http://127.0.0.1/admin", customerrs.ErrURLTargetBlocked},
		{"http://192.168.0.10/", customerrs.ErrURLTargetBlocked},
		{"ftp://example.com/f", customerrs.ErrURLSchemeBlocked},
		{"http://", customerrs.ErrURLMalformed},
	}
	for _, tt := range tests {
		// fetch enabled on purpose: validation must reject first
		_, err := eng.ScanURL(context.Background(), tt.rawURL, engine.URLScanOptions{FetchContent: true})
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ScanURL(%q) err = %v, want %v", tt.rawURL, err, tt.wantErr)
		}
	}
}

func TestScanURL_ShapeOnly(t *testing.T) {
	eng := fallbackEngine()

	res, err := eng.ScanURL(context.Background(), "http://203.0.113.9/drop.exe", engine.URLScanOptions{})
	if err != nil {
		t.Fatalf("ScanURL: %v", err)
	}
	if res.Fetched {
		t.Error("Fetched = true without FetchContent")
	}
	if res.Scoring == nil {
		t.Fatal("Scoring is nil")
	}
	// the IP-literal heuristic alone puts the score above zero
	if res.Scoring.Score == 0 {
		t.Error("Score = 0, want shape heuristics counted")
	}
	found := false
	for _, f := range res.Findings {
		if f.Title == "IP-literal URL" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing IP-literal finding: %+v", res.Findings)
	}
}
