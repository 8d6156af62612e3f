package engine

import (
	"context"
	"io"
	"mtriage_go/common"
	"mtriage_go/config"
	"mtriage_go/customerrs"
	"mtriage_go/hasher"
	"mtriage_go/iocextract"
	"mtriage_go/sandbox"
	"mtriage_go/scorer"
	"mtriage_go/signature"
	"mtriage_go/structural"
	"mtriage_go/urlanalyzer"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// Engine is the top-level triage pipeline. The compiled ruleset inside
// is the only process-wide state and is read-only for the process
// lifetime, so one Engine is safely shared across concurrent scans.
type Engine struct {
	cfg  *config.Config
	sig  *signature.Engine
	caps common.Capabilities
}

// FileScanOptions controls the expensive optional stage of a file scan.
type FileScanOptions struct {
	RunSandbox     bool
	SandboxTimeout time.Duration
}

// URLScanOptions controls content retrieval during a URL scan. The
// sandbox stage requires fetched content and executes the retrieved
// payload, not the URL.
type URLScanOptions struct {
	FetchContent   bool
	RunSandbox     bool
	SandboxTimeout time.Duration
}

// New builds the engine: compiles or loads signature rules once and
// probes the sandbox backend once. Degradations are logged here, a
// single time, and surfaced afterwards only through the capability
// flags on every result.
func New(cfg *config.Config) *Engine {
	var sig *signature.Engine
	var err error
	rules := cfg.Triage.Rules
	switch {
	case rules.SealedBundle != "":
		sig, err = signature.NewEngineFromSealedBundle(rules.SealedBundle, rules.BundleKeyHex)
	case rules.Dir != "":
		sig, err = signature.NewEngineFromRuleDir(rules.Dir)
	default:
		sig, err = signature.NewFallbackEngine(), customerrs.ErrSignatureEngineUnavailable
	}
	if err != nil {
		common.Logger.Warnln(customerrs.ErrSignatureEngineUnavailable, err)
	}

	sbx := sandbox.Probe()
	if sbx == common.SandboxBackendUnavailable {
		common.Logger.Warnln(customerrs.ErrSandboxUnavailable)
	}

	return &Engine{
		cfg:  cfg,
		sig:  sig,
		caps: common.Capabilities{SignatureEngine: sig.Mode(), Sandbox: sbx},
	}
}

// Capabilities reports the degraded-mode flags chosen at startup.
func (e *Engine) Capabilities() common.Capabilities {
	return e.caps
}

// ScanFile runs the full triage pipeline over one file. Static stages
// always run; the sandbox stage runs only when requested and available.
// Failures in optional stages degrade evidence, they never abort the
// scan: the caller always receives a complete, well-typed result.
func (e *Engine) ScanFile(ctx context.Context, fpath string, opts FileScanOptions) (*common.ScanResult, error) {
	started := time.Now()

	meta, err := hasher.HashFile(fpath)
	if err != nil {
		// input errors abort before any stage runs
		return nil, err
	}

	data, err := readCapped(fpath)
	if err != nil {
		return nil, err
	}

	prof := structural.AnalyzeBytes(data)
	matches := e.sig.Match(data)
	iocs := iocextract.Extract(string(data))

	findings := structural.Findings(prof)
	findings = append(findings, matchFindings(matches)...)

	var run *common.SandboxRun
	if opts.RunSandbox {
		run = e.runSandboxStage(ctx, fpath, opts.SandboxTimeout)
		if run == nil {
			findings = append(findings, common.Finding{
				Title:    "Sandbox stage skipped",
				Detail:   "behavioral execution unavailable or failed to launch, verdict is static-only",
				Severity: common.SeverityLow,
				Category: "capability",
			})
		}
	}

	extra := e.externalAVFindings(ctx, fpath)
	findings = append(findings, extra...)

	scoring := scorer.Score(prof, matches, iocs, run, extra)

	return &common.ScanResult{
		ScanID:       uuid.NewString(),
		Path:         fpath,
		SHA256:       meta.SHA256,
		MD5:          meta.MD5,
		Size:         meta.Size,
		DeclaredType: meta.DeclaredType,
		StartedAt:    started.UTC(),
		DurationMs:   time.Since(started).Milliseconds(),
		Capabilities: e.caps,
		Structural:   prof,
		Findings:     findings,
		Matches:      matches,
		IOCs:         iocs,
		Sandbox:      run,
		Scoring:      scoring,
	}, nil
}

// ScanURL runs the structurally parallel pipeline for URLs. Validation
// rejects blocked targets before any network fetch occurs.
func (e *Engine) ScanURL(ctx context.Context, rawURL string, opts URLScanOptions) (*common.URLScanResult, error) {
	started := time.Now()

	u, err := urlanalyzer.Validate(rawURL)
	if err != nil {
		return nil, err
	}

	res := &common.URLScanResult{
		ScanID:        uuid.NewString(),
		URL:           rawURL,
		FinalURL:      u.String(),
		RedirectChain: []common.RedirectHop{},
		StartedAt:     started.UTC(),
		Capabilities:  e.caps,
		IOCs:          make(common.IOCSet),
	}

	var fetched *urlanalyzer.FetchResult
	if opts.FetchContent {
		fetched, err = urlanalyzer.Fetch(ctx, u)
		if err != nil {
			common.Logger.Warnln("url fetch degraded to shape-only analysis: ", err)
			res.Findings = append(res.Findings, common.Finding{
				Title:    "Content fetch failed",
				Detail:   "target content could not be retrieved: " + err.Error(),
				Severity: common.SeverityLow,
				Category: "url",
			})
		}
	}

	var matches []common.SignatureMatch
	if fetched != nil {
		res.Fetched = true
		res.ContentSize = int64(len(fetched.Body))
		res.ContentSHA256 = hasher.HashBytes(fetched.Body)
		res.FinalURL = fetched.FinalURL
		res.RedirectChain = fetched.RedirectChain
		matches = e.sig.Match(fetched.Body)
		res.IOCs = iocextract.Extract(string(fetched.Body))
	}

	if opts.RunSandbox && fetched != nil {
		res.Sandbox = e.runSandboxOverBody(ctx, fetched.Body, opts.SandboxTimeout)
		if res.Sandbox == nil {
			res.Findings = append(res.Findings, common.Finding{
				Title:    "Sandbox stage skipped",
				Detail:   "behavioral execution unavailable or failed to launch, verdict is static-only",
				Severity: common.SeverityLow,
				Category: "capability",
			})
		}
	}

	urlFindings := urlanalyzer.Findings(u, fetched)
	res.Findings = append(res.Findings, urlFindings...)
	res.Findings = append(res.Findings, matchFindings(matches)...)
	res.Matches = matches
	res.DurationMs = time.Since(started).Milliseconds()
	res.Scoring = scorer.Score(nil, matches, res.IOCs, res.Sandbox, urlFindings)
	return res, nil
}

// runSandboxOverBody stages fetched content in a temp file and runs the
// regular sandbox stage against it.
func (e *Engine) runSandboxOverBody(ctx context.Context, body []byte, timeout time.Duration) *common.SandboxRun {
	tmp, err := os.CreateTemp("", "mtriage-url-*.bin")
	if err != nil {
		common.Logger.Errorln("staging fetched content failed: ", err)
		return nil
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(body); err != nil {
		tmp.Close()
		common.Logger.Errorln("staging fetched content failed: ", err)
		return nil
	}
	if err = tmp.Close(); err != nil {
		common.Logger.Errorln("staging fetched content failed: ", err)
		return nil
	}
	return e.runSandboxStage(ctx, tmp.Name(), timeout)
}

// runSandboxStage executes the behavioral stage and degrades on any
// failure instead of propagating it: an unavailable or broken sandbox
// downgrades this scan's evidence, never kills it.
func (e *Engine) runSandboxStage(ctx context.Context, fpath string, timeout time.Duration) *common.SandboxRun {
	if e.caps.Sandbox == common.SandboxBackendUnavailable {
		return nil
	}
	if timeout <= 0 {
		timeout = e.cfg.Triage.Sandbox.DefaultTimeout()
	}
	if timeout > e.cfg.Triage.Sandbox.MaxTimeout() {
		timeout = e.cfg.Triage.Sandbox.MaxTimeout()
	}
	ex := sandbox.NewExecutor(fpath, timeout)
	ex.SetRetention(e.cfg.Triage.Sandbox.Retention())
	run, err := ex.Run(ctx)
	if err != nil {
		common.Logger.Errorln("sandbox stage degraded: ", err)
		return nil
	}
	return run
}

// externalAVFindings invokes the optional external engine, one more
// evidence source, never the sole arbiter of the verdict.
func (e *Engine) externalAVFindings(ctx context.Context, fpath string) []common.Finding {
	av := e.cfg.Triage.ExternalAV
	if av.Command == "" {
		return nil
	}
	args := append(append([]string{}, av.Args...), fpath)
	cmd := exec.CommandContext(ctx, av.Command, args...)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if _, isExit := err.(*exec.ExitError); !isExit {
		common.Logger.Warnln(customerrs.ErrExternalAVUnavailable, err)
		return nil
	}
	return []common.Finding{{
		Title:    "External antivirus detection",
		Detail:   av.Command + " flagged the sample",
		Severity: common.SeverityCritical,
		Category: "external_av",
	}}
}

func matchFindings(matches []common.SignatureMatch) []common.Finding {
	out := make([]common.Finding, 0, len(matches))
	for _, m := range matches {
		out = append(out, common.Finding{
			Title:    "Signature match: " + m.RuleName,
			Detail:   m.Description,
			Severity: m.Severity,
			Category: m.Category,
		})
	}
	return out
}

func readCapped(fpath string) ([]byte, error) {
	fd, err := os.OpenFile(fpath, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return io.ReadAll(io.LimitReader(fd, structural.MaxStaticReadBytes))
}
