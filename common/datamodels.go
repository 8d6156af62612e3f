package common

import (
	"time"
)

// severity levels shared by findings, signature matches and the sensitive API table
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// verdict bands, fixed thresholds over the clamped 0-100 score
const (
	VerdictSafe            = "safe"
	VerdictSuspicious      = "suspicious"
	VerdictLikelyMalicious = "likely_malicious"
	VerdictMalicious       = "malicious"
)

// Finding is a single piece of evidence produced by any analysis stage.
// Never mutated after creation.
type Finding struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

// IOC kinds
const (
	IOCKindURL         = "url"
	IOCKindIP          = "ip"
	IOCKindDomain      = "domain"
	IOCKindFilePath    = "file_path"
	IOCKindRegistryKey = "registry_key"
	IOCKindEmail       = "email"
)

// IOCSet maps indicator kind to a bounded, de-duplicated ordered list.
type IOCSet map[string][]string

// Add appends value under kind, dropping duplicates and anything past the
// per-kind cap. Returns true if the value was stored.
func (s IOCSet) Add(kind string, value string) bool {
	lst := s[kind]
	if len(lst) >= MaxIOCPerKind {
		return false
	}
	for _, v := range lst {
		if v == value {
			return false
		}
	}
	s[kind] = append(lst, value)
	return true
}

// Full reports whether kind already holds the per-kind cap. Extraction
// loops stop on Full, never on a duplicate: a repeated indicator must
// not hide distinct ones appearing after it.
func (s IOCSet) Full(kind string) bool {
	return len(s[kind]) >= MaxIOCPerKind
}

// Total returns the number of indicators across all kinds.
func (s IOCSet) Total() int {
	n := 0
	for _, lst := range s {
		n += len(lst)
	}
	return n
}

// ImportRef is one imported symbol and the module declaring it.
type ImportRef struct {
	Symbol          string `json:"symbol"`
	DeclaringModule string `json:"declaring_module"`
}

// HighEntropySection flags a section whose Shannon entropy exceeds 7.0,
// a packing/encryption indicator.
type HighEntropySection struct {
	Name    string  `json:"name"`
	Entropy float64 `json:"entropy"`
	Size    int64   `json:"size"`
}

// StructuralProfile is the read-only result of static header inspection.
// A parse failure yields IsRecognizedFormat=false and an otherwise empty
// profile, never an error and never a panic.
type StructuralProfile struct {
	IsRecognizedFormat  bool                 `json:"is_recognized_format"`
	Is64Bit             bool                 `json:"is_64bit"`
	EntryPoint          uint64               `json:"entry_point"`
	ImageBase           uint64               `json:"image_base"`
	SectionCount        int                  `json:"section_count"`
	Imports             []ImportRef          `json:"imports"`
	ExportsCount        int                  `json:"exports_count"`
	HighEntropySections []HighEntropySection `json:"high_entropy_sections"`
	RWXSections         []string             `json:"rwx_sections"`
	PackerHint          string               `json:"packer_hint,omitempty"`
	CompileTime         *time.Time           `json:"compile_time,omitempty"`
}

// SignatureMatch is one detection rule that fired over the scanned content.
type SignatureMatch struct {
	RuleName         string   `json:"rule_name"`
	Description      string   `json:"description"`
	Severity         string   `json:"severity"`
	Category         string   `json:"category"`
	MatchedFragments []string `json:"matched_fragments"`
	Tags             []string `json:"tags,omitempty"`
}

// ChildProcess is one spawned process observed during a sandbox run.
// Records are flat and append-only, hierarchy is reconstructed for
// reporting only, never for control flow.
type ChildProcess struct {
	PID       int32  `json:"pid"`
	Name      string `json:"name"`
	ParentPID int32  `json:"parent_pid"`
}

// SandboxRun is produced exactly once per sandbox invocation and never
// mutated after the sandboxed process terminates or is killed.
type SandboxRun struct {
	Success               bool           `json:"success"`
	ExitCode              *int           `json:"exit_code,omitempty"`
	TimedOut              bool           `json:"timed_out"`
	DurationMs            int64          `json:"duration_ms"`
	NetworkWasBlocked     bool           `json:"network_was_blocked"`
	FilesCreated          []string       `json:"files_created"`
	FilesModified         []string       `json:"files_modified"`
	FilesDeleted          []string       `json:"files_deleted"`
	RegistryModifications []string       `json:"registry_modifications"`
	NetworkAttempts       []string       `json:"network_attempts"`
	ChildProcesses        []ChildProcess `json:"child_processes"`
	StdoutTail            string         `json:"stdout_tail"`
	StderrTail            string         `json:"stderr_tail"`
}

// ScoringResult is pure derived data, fully reconstructible from its
// inputs and recomputable at any time.
type ScoringResult struct {
	Score       uint8          `json:"score"`
	Verdict     string         `json:"verdict"`
	Summary     string         `json:"summary"`
	Breakdown   map[string]int `json:"breakdown"`
	Explanation []string       `json:"explanation"`
}

// capability tags surfaced to the caller so degraded modes are never silent
const (
	SigEngineYara     = "yara"
	SigEngineFallback = "fallback"

	SandboxBackendWindowsJob     = "windows_job"
	SandboxBackendLinuxNamespace = "linux_namespace"
	SandboxBackendUnavailable    = "unavailable"
)

type Capabilities struct {
	SignatureEngine string `json:"signature_engine"`
	Sandbox         string `json:"sandbox"`
}

// ScanResult is the immutable top-level result of a file scan.
type ScanResult struct {
	ScanID       string             `json:"scan_id"`
	Path         string             `json:"path"`
	SHA256       string             `json:"sha256"`
	MD5          string             `json:"md5"`
	Size         int64              `json:"size"`
	DeclaredType string             `json:"declared_type"`
	StartedAt    time.Time          `json:"started_at"`
	DurationMs   int64              `json:"duration_ms"`
	Capabilities Capabilities       `json:"capabilities"`
	Structural   *StructuralProfile `json:"structural_profile"`
	Findings     []Finding          `json:"findings"`
	Matches      []SignatureMatch   `json:"signature_matches"`
	IOCs         IOCSet             `json:"iocs"`
	Sandbox      *SandboxRun        `json:"sandbox_run,omitempty"`
	Scoring      *ScoringResult     `json:"scoring_result"`
}

// RedirectHop is one step in a followed redirect chain. Each hop is a
// potential evasion step and is recorded as first-class evidence.
type RedirectHop struct {
	Index      int    `json:"index"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// URLScanResult is the immutable top-level result of a URL scan.
type URLScanResult struct {
	ScanID        string           `json:"scan_id"`
	URL           string           `json:"url"`
	FinalURL      string           `json:"final_url"`
	Fetched       bool             `json:"fetched"`
	ContentSize   int64            `json:"content_size"`
	ContentSHA256 string           `json:"content_sha256,omitempty"`
	RedirectChain []RedirectHop    `json:"redirect_chain"`
	StartedAt     time.Time        `json:"started_at"`
	DurationMs    int64            `json:"duration_ms"`
	Capabilities  Capabilities     `json:"capabilities"`
	Findings      []Finding        `json:"findings"`
	Matches       []SignatureMatch `json:"signature_matches"`
	IOCs          IOCSet           `json:"iocs"`
	Sandbox       *SandboxRun      `json:"sandbox_run,omitempty"`
	Scoring       *ScoringResult   `json:"scoring_result"`
}
