package scorer

import (
	"fmt"
	"mtriage_go/common"
	"mtriage_go/structural"
	"sort"
	"strings"
)

// Fixed weight table. Per-category caps exist so a file with thousands of
// trivial matches cannot mathematically out-score a file with one
// critical, high-confidence match. Caps may interact non-monotonically
// once several are saturated at the same time, see DESIGN.md.
const (
	sigCategoryCap = 60
	importsCap     = 25
	rwxWeight      = 10
	rwxCap         = 15
	entropyWeight  = 6
	entropyCap     = 12
	packerWeight   = 8
	structureCap   = 30
	iocCap         = 15

	abnormalExitWeight = 5
	timeoutWeight      = 10
	executionCap       = 15
	fileOpWeight       = 2
	fileOpsCap         = 12
	registryWeight     = 3
	registryCap        = 12
	networkWeight      = 5
	networkCap         = 15
	spawnWeight        = 6
	spawnCap           = 18
	sandboxTotalCap    = 40

	externalFindingCap = 35
)

// first signature match weighted highest, additional matches lower to
// avoid linear explosion from repetitive rules
var firstMatchWeight = map[string]int{
	common.SeverityCritical: 45,
	common.SeverityHigh:     35,
	common.SeverityMedium:   25,
	common.SeverityLow:      15,
}

var additionalMatchWeight = map[string]int{
	common.SeverityCritical: 10,
	common.SeverityHigh:     8,
	common.SeverityMedium:   5,
	common.SeverityLow:      3,
}

var importWeight = map[string]int{
	common.SeverityCritical: 8,
	common.SeverityHigh:     6,
	common.SeverityMedium:   4,
	common.SeverityLow:      2,
}

var extraFindingWeight = map[string]int{
	common.SeverityCritical: 35,
	common.SeverityHigh:     25,
	common.SeverityMedium:   15,
	common.SeverityLow:      5,
}

// fixed iteration order keeps the result byte-identical across runs
var iocKindOrder = []struct {
	kind   string
	weight int
}{
	{common.IOCKindURL, 2},
	{common.IOCKindIP, 2},
	{common.IOCKindDomain, 1},
	{common.IOCKindRegistryKey, 2},
	{common.IOCKindFilePath, 1},
	{common.IOCKindEmail, 1},
}

var severityRank = map[string]int{
	common.SeverityCritical: 4,
	common.SeverityHigh:     3,
	common.SeverityMedium:   2,
	common.SeverityLow:      1,
}

// Score fuses all available evidence into a clamped 0-100 score, a
// verdict label and an itemized explanation. It is a pure function:
// identical inputs always produce an identical result, there is no
// clock, randomness or I/O in here. Absent evidence arrives as nil.
func Score(prof *common.StructuralProfile, matches []common.SignatureMatch, iocs common.IOCSet, run *common.SandboxRun, extra []common.Finding) *common.ScoringResult {
	breakdown := make(map[string]int)
	var explanation []string

	if pts, lines := scoreSignatures(matches); pts > 0 {
		breakdown["signatures"] = pts
		explanation = append(explanation, lines...)
	}
	if prof != nil && prof.IsRecognizedFormat {
		if pts, lines := scoreImports(prof.Imports); pts > 0 {
			breakdown["sensitive_imports"] = pts
			explanation = append(explanation, lines...)
		}
		if pts, lines := scoreStructure(prof); pts > 0 {
			breakdown["structure"] = pts
			explanation = append(explanation, lines...)
		}
	}
	if pts, lines := scoreIOCs(iocs); pts > 0 {
		breakdown["iocs"] = pts
		explanation = append(explanation, lines...)
	}
	if run != nil {
		sandboxPts := 0
		addCat := func(cat string, pts int, lines []string) {
			if pts <= 0 {
				return
			}
			// sandbox categories share an overall ceiling
			if sandboxPts+pts > sandboxTotalCap {
				pts = sandboxTotalCap - sandboxPts
			}
			if pts <= 0 {
				return
			}
			sandboxPts += pts
			breakdown[cat] = pts
			explanation = append(explanation, lines...)
		}
		pts, lines := scoreExecution(run)
		addCat("execution", pts, lines)
		pts, lines = scoreFileOps(run)
		addCat("file_operations", pts, lines)
		pts, lines = scoreRegistry(run)
		addCat("registry_activity", pts, lines)
		pts, lines = scoreNetwork(run)
		addCat("network_activity", pts, lines)
		pts, lines = scoreSpawns(run)
		addCat("process_spawning", pts, lines)
	}
	if pts, lines := scoreExtraFindings(extra); pts > 0 {
		breakdown["external_evidence"] = pts
		explanation = append(explanation, lines...)
	}

	total := 0
	for _, pts := range breakdown {
		total += pts
	}
	if total > 100 {
		total = 100
	}

	verdict := verdictFor(total)
	return &common.ScoringResult{
		Score:       uint8(total),
		Verdict:     verdict,
		Summary:     buildSummary(verdict, total, breakdown),
		Breakdown:   breakdown,
		Explanation: explanation,
	}
}

func verdictFor(score int) string {
	switch {
	case score <= 20:
		return common.VerdictSafe
	case score <= 50:
		return common.VerdictSuspicious
	case score <= 80:
		return common.VerdictLikelyMalicious
	default:
		return common.VerdictMalicious
	}
}

func scoreSignatures(matches []common.SignatureMatch) (int, []string) {
	if len(matches) == 0 {
		return 0, nil
	}
	sorted := make([]common.SignatureMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := severityRank[sorted[i].Severity], severityRank[sorted[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return sorted[i].RuleName < sorted[j].RuleName
	})

	pts := 0
	var lines []string
	for i, m := range sorted {
		var w int
		if i == 0 {
			w = firstMatchWeight[m.Severity]
		} else {
			w = additionalMatchWeight[m.Severity]
		}
		if w == 0 {
			w = additionalMatchWeight[common.SeverityLow]
		}
		pts += w
		lines = append(lines, fmt.Sprintf("signature rule %q matched (%s severity): %s", m.RuleName, m.Severity, m.Description))
	}
	if pts > sigCategoryCap {
		pts = sigCategoryCap
	}
	return pts, lines
}

func scoreImports(imports []common.ImportRef) (int, []string) {
	pts := 0
	var lines []string
	for _, imp := range imports {
		info, ok := structural.LookupSensitiveAPI(imp.Symbol)
		if !ok {
			continue
		}
		pts += importWeight[info.Severity]
		lines = append(lines, fmt.Sprintf("sensitive import %s from %s (%s)", imp.Symbol, strings.ToLower(imp.DeclaringModule), info.Category))
	}
	if pts > importsCap {
		pts = importsCap
	}
	return pts, lines
}

func scoreStructure(prof *common.StructuralProfile) (int, []string) {
	pts := 0
	var lines []string

	rwxPts := len(prof.RWXSections) * rwxWeight
	if rwxPts > rwxCap {
		rwxPts = rwxCap
	}
	for _, name := range prof.RWXSections {
		lines = append(lines, fmt.Sprintf("section %q is readable, writable and executable", name))
	}
	pts += rwxPts

	entPts := len(prof.HighEntropySections) * entropyWeight
	if entPts > entropyCap {
		entPts = entropyCap
	}
	for _, hes := range prof.HighEntropySections {
		lines = append(lines, fmt.Sprintf("section %q has entropy %.2f, likely packed or encrypted", hes.Name, hes.Entropy))
	}
	pts += entPts

	if prof.PackerHint != "" {
		pts += packerWeight
		lines = append(lines, fmt.Sprintf("known packer signature detected: %s", prof.PackerHint))
	}

	if pts > structureCap {
		pts = structureCap
	}
	return pts, lines
}

func scoreIOCs(iocs common.IOCSet) (int, []string) {
	if iocs == nil {
		return 0, nil
	}
	pts := 0
	var lines []string
	for _, kw := range iocKindOrder {
		n := len(iocs[kw.kind])
		if n == 0 {
			continue
		}
		pts += n * kw.weight
		lines = append(lines, fmt.Sprintf("%d %s indicator(s) extracted, e.g. %s", n, kw.kind, iocs[kw.kind][0]))
	}
	if pts > iocCap {
		pts = iocCap
	}
	return pts, lines
}

func scoreExecution(run *common.SandboxRun) (int, []string) {
	pts := 0
	var lines []string
	if run.TimedOut {
		// long occupation of the sandbox is itself a signal, sleep-based
		// analysis evasion looks exactly like this
		pts += timeoutWeight
		lines = append(lines, "sandboxed process exceeded its time budget and was terminated")
	} else if run.ExitCode != nil && *run.ExitCode != 0 {
		pts += abnormalExitWeight
		lines = append(lines, fmt.Sprintf("sandboxed process exited abnormally with code %d", *run.ExitCode))
	}
	if pts > executionCap {
		pts = executionCap
	}
	return pts, lines
}

func scoreFileOps(run *common.SandboxRun) (int, []string) {
	total := len(run.FilesCreated) + len(run.FilesModified) + len(run.FilesDeleted)
	if total == 0 {
		return 0, nil
	}
	pts := total * fileOpWeight
	if pts > fileOpsCap {
		pts = fileOpsCap
	}
	var lines []string
	for _, f := range run.FilesCreated {
		lines = append(lines, fmt.Sprintf("sandbox: file created: %s", f))
	}
	for _, f := range run.FilesModified {
		lines = append(lines, fmt.Sprintf("sandbox: file modified: %s", f))
	}
	for _, f := range run.FilesDeleted {
		lines = append(lines, fmt.Sprintf("sandbox: file deleted: %s", f))
	}
	return pts, lines
}

func scoreRegistry(run *common.SandboxRun) (int, []string) {
	if len(run.RegistryModifications) == 0 {
		return 0, nil
	}
	pts := len(run.RegistryModifications) * registryWeight
	if pts > registryCap {
		pts = registryCap
	}
	var lines []string
	for _, r := range run.RegistryModifications {
		lines = append(lines, fmt.Sprintf("sandbox: registry modified: %s", r))
	}
	return pts, lines
}

func scoreNetwork(run *common.SandboxRun) (int, []string) {
	if len(run.NetworkAttempts) == 0 {
		return 0, nil
	}
	pts := len(run.NetworkAttempts) * networkWeight
	if pts > networkCap {
		pts = networkCap
	}
	var lines []string
	for _, n := range run.NetworkAttempts {
		lines = append(lines, fmt.Sprintf("sandbox: network attempt while isolated: %s", n))
	}
	return pts, lines
}

func scoreSpawns(run *common.SandboxRun) (int, []string) {
	if len(run.ChildProcesses) == 0 {
		return 0, nil
	}
	pts := len(run.ChildProcesses) * spawnWeight
	if pts > spawnCap {
		pts = spawnCap
	}
	var lines []string
	for _, cp := range run.ChildProcesses {
		lines = append(lines, fmt.Sprintf("sandbox: child process spawned: %s (pid %d)", cp.Name, cp.PID))
	}
	return pts, lines
}

// scoreExtraFindings covers evidence produced outside the four primary
// stages, e.g. the optional external antivirus hook or URL redirect
// heuristics. A detection contributes one high-weight entry and is never
// the sole arbiter of the verdict.
func scoreExtraFindings(extra []common.Finding) (int, []string) {
	if len(extra) == 0 {
		return 0, nil
	}
	sorted := make([]common.Finding, len(extra))
	copy(sorted, extra)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := severityRank[sorted[i].Severity], severityRank[sorted[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return sorted[i].Title < sorted[j].Title
	})
	pts := 0
	var lines []string
	for _, f := range sorted {
		pts += extraFindingWeight[f.Severity]
		lines = append(lines, fmt.Sprintf("%s: %s", f.Title, f.Detail))
	}
	if pts > externalFindingCap {
		pts = externalFindingCap
	}
	return pts, lines
}

func buildSummary(verdict string, score int, breakdown map[string]int) string {
	cats := make([]string, 0, len(breakdown))
	for cat := range breakdown {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	if len(cats) == 0 {
		return fmt.Sprintf("%s (score %d): no threat evidence found", verdict, score)
	}
	return fmt.Sprintf("%s (score %d): evidence from %s", verdict, score, strings.Join(cats, ", "))
}
