package scorer

import (
	"mtriage_go/common"
	"reflect"
	"strings"
	"testing"
)

func TestScore_NoEvidence(t *testing.T) {
	t.Parallel()

	res := Score(nil, nil, nil, nil, nil)
	if res.Score != 0 {
		t.Errorf("Score = %d, want 0", res.Score)
	}
	if res.Verdict != common.VerdictSafe {
		t.Errorf("Verdict = %q, want %q", res.Verdict, common.VerdictSafe)
	}
	if len(res.Breakdown) != 0 {
		t.Errorf("Breakdown = %v, want empty", res.Breakdown)
	}
	if !strings.Contains(res.Summary, "no threat evidence found") {
		t.Errorf("Summary = %q, want no-evidence wording", res.Summary)
	}
}

func TestScore_SignatureWeighting(t *testing.T) {
	t.Parallel()

	// one critical first match plus lower-severity additional matches,
	// input order must not matter
	matches := []common.SignatureMatch{
		{RuleName: "Rule_Low", Severity: common.SeverityLow},
		{RuleName: "Rule_Critical", Severity: common.SeverityCritical},
		{RuleName: "Rule_High", Severity: common.SeverityHigh},
	}
	res := Score(nil, matches, nil, nil, nil)

	want := 45 + 8 + 3
	if int(res.Score) != want {
		t.Errorf("Score = %d, want %d", res.Score, want)
	}
	if res.Verdict != common.VerdictLikelyMalicious {
		t.Errorf("Verdict = %q, want %q", res.Verdict, common.VerdictLikelyMalicious)
	}
	if res.Breakdown["signatures"] != want {
		t.Errorf("Breakdown[signatures] = %d, want %d", res.Breakdown["signatures"], want)
	}
}

func TestScore_SignatureCategoryCap(t *testing.T) {
	t.Parallel()

	// thousands of repetitive matches must not out-score the cap
	matches := make([]common.SignatureMatch, 0, 2000)
	for i := 0; i < 2000; i++ {
		matches = append(matches, common.SignatureMatch{
			RuleName: "Rule_Noise",
			Severity: common.SeverityLow,
		})
	}
	res := Score(nil, matches, nil, nil, nil)
	if res.Breakdown["signatures"] != sigCategoryCap {
		t.Errorf("Breakdown[signatures] = %d, want cap %d", res.Breakdown["signatures"], sigCategoryCap)
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	prof := &common.StructuralProfile{
		IsRecognizedFormat: true,
		RWXSections:        []string{".text"},
		HighEntropySections: []common.HighEntropySection{
			{Name: ".data", Entropy: 7.8, Size: 1024},
		},
		PackerHint: "UPX",
		Imports: []common.ImportRef{
			{Symbol: "CreateRemoteThread", DeclaringModule: "KERNEL32.dll"},
			{Symbol: "GetAsyncKeyState", DeclaringModule: "USER32.dll"},
		},
	}
	iocs := make(common.IOCSet)
	iocs.Add(common.IOCKindURL, "http://evil.example.com/a")
	iocs.Add(common.IOCKindIP, "203.0.113.7")
	exitCode := 1
	run := &common.SandboxRun{
		Success:         true,
		ExitCode:        &exitCode,
		FilesCreated:    []string{"dropped.exe"},
		NetworkAttempts: []string{"203.0.113.7:443 (SYN_SENT)"},
	}
	matches := []common.SignatureMatch{
		{RuleName: "Rule_A", Severity: common.SeverityHigh, Description: "a"},
	}
	extra := []common.Finding{
		{Title: "External antivirus detection", Severity: common.SeverityCritical},
	}

	first := Score(prof, matches, iocs, run, extra)
	second := Score(prof, matches, iocs, run, extra)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Score is not deterministic:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestScore_ClampedAt100(t *testing.T) {
	t.Parallel()

	prof := &common.StructuralProfile{
		IsRecognizedFormat:  true,
		RWXSections:         []string{".a", ".b", ".c"},
		HighEntropySections: []common.HighEntropySection{{Name: ".p", Entropy: 7.9}, {Name: ".q", Entropy: 7.9}, {Name: ".r", Entropy: 7.9}},
		PackerHint:          "Themida",
		Imports: []common.ImportRef{
			{Symbol: "CreateRemoteThread"}, {Symbol: "NtCreateThreadEx"},
			{Symbol: "LsaRetrievePrivateData"}, {Symbol: "SamIConnect"},
			{Symbol: "WriteProcessMemory"}, {Symbol: "QueueUserAPC"},
		},
	}
	var matches []common.SignatureMatch
	for i := 0; i < 20; i++ {
		matches = append(matches, common.SignatureMatch{RuleName: "Rule_Crit", Severity: common.SeverityCritical})
	}
	iocs := make(common.IOCSet)
	for _, v := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		iocs.Add(common.IOCKindURL, "http://"+v+".example.com/")
	}
	run := &common.SandboxRun{
		Success:               true,
		TimedOut:              true,
		FilesCreated:          []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		RegistryModifications: []string{"r1", "r2", "r3", "r4", "r5"},
		NetworkAttempts:       []string{"n1", "n2", "n3", "n4"},
		ChildProcesses:        []common.ChildProcess{{PID: 1}, {PID: 2}, {PID: 3}, {PID: 4}},
	}
	extra := []common.Finding{
		{Title: "av", Severity: common.SeverityCritical},
		{Title: "av2", Severity: common.SeverityCritical},
	}

	res := Score(prof, matches, iocs, run, extra)
	if res.Score != 100 {
		t.Errorf("Score = %d, want clamp at 100", res.Score)
	}
	if res.Verdict != common.VerdictMalicious {
		t.Errorf("Verdict = %q, want %q", res.Verdict, common.VerdictMalicious)
	}
}

func TestScore_SandboxCategories(t *testing.T) {
	t.Parallel()

	run := &common.SandboxRun{
		Success:      true,
		FilesCreated: []string{"payload.dll", "stage2.exe", "persist.scr"},
		ChildProcesses: []common.ChildProcess{
			{PID: 4242, Name: "cmd.exe", ParentPID: 4200},
			{PID: 4243, Name: "reg.exe", ParentPID: 4242},
		},
	}
	res := Score(nil, nil, nil, run, nil)

	if got := res.Breakdown["file_operations"]; got != 6 {
		t.Errorf("Breakdown[file_operations] = %d, want 6", got)
	}
	if got := res.Breakdown["process_spawning"]; got != 12 {
		t.Errorf("Breakdown[process_spawning] = %d, want 12", got)
	}
	found := false
	for _, line := range res.Explanation {
		if strings.Contains(line, "payload.dll") {
			found = true
		}
	}
	if !found {
		t.Errorf("Explanation does not name the created file: %v", res.Explanation)
	}
}

func TestScore_SandboxTotalCap(t *testing.T) {
	t.Parallel()

	many := func(prefix string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = prefix
		}
		return out
	}
	run := &common.SandboxRun{
		Success:               true,
		TimedOut:              true,
		FilesCreated:          many("f", 20),
		RegistryModifications: many("r", 20),
		NetworkAttempts:       many("n", 20),
		ChildProcesses:        make([]common.ChildProcess, 20),
	}
	res := Score(nil, nil, nil, run, nil)

	total := res.Breakdown["execution"] + res.Breakdown["file_operations"] +
		res.Breakdown["registry_activity"] + res.Breakdown["network_activity"] +
		res.Breakdown["process_spawning"]
	if total != sandboxTotalCap {
		t.Errorf("sandbox categories sum to %d, want overall cap %d", total, sandboxTotalCap)
	}
}

func TestScore_IOCCap(t *testing.T) {
	t.Parallel()

	iocs := make(common.IOCSet)
	for i := 0; i < common.MaxIOCPerKind; i++ {
		iocs.Add(common.IOCKindURL, "http://e.example.com/"+string(rune('a'+i)))
		iocs.Add(common.IOCKindRegistryKey, "HKCU\\Software\\"+string(rune('a'+i)))
	}
	res := Score(nil, nil, iocs, nil, nil)
	if res.Breakdown["iocs"] != iocCap {
		t.Errorf("Breakdown[iocs] = %d, want cap %d", res.Breakdown["iocs"], iocCap)
	}
}

func TestVerdictFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  string
	}{
		{0, common.VerdictSafe},
		{20, common.VerdictSafe},
		{21, common.VerdictSuspicious},
		{50, common.VerdictSuspicious},
		{51, common.VerdictLikelyMalicious},
		{80, common.VerdictLikelyMalicious},
		{81, common.VerdictMalicious},
		{100, common.VerdictMalicious},
	}
	for _, tt := range tests {
		if got := verdictFor(tt.score); got != tt.want {
			t.Errorf("verdictFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScore_UnrecognizedProfileIgnored(t *testing.T) {
	t.Parallel()

	// structural evidence only counts for recognized formats
	prof := &common.StructuralProfile{
		IsRecognizedFormat: false,
		RWXSections:        []string{".bogus"},
		Imports:            []common.ImportRef{{Symbol: "CreateRemoteThread"}},
	}
	res := Score(prof, nil, nil, nil, nil)
	if res.Score != 0 {
		t.Errorf("Score = %d, want 0 for unrecognized format", res.Score)
	}
}
