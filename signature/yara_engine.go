package signature

import (
	"mtriage_go/common"
	"time"

	"github.com/hillu/go-yara/v4"
)

// matching runs under an internal timeout so a pathological rule/input
// combination degrades to zero matches instead of hanging the scan
const matchTimeout = 30 * time.Second

// Engine wraps a compiled YARA ruleset. The ruleset is compiled once at
// startup and shared read-only across concurrent scans; each Match call
// gets its own yara.Scanner. When rules are nil the engine runs the
// fallback pattern table instead, with strictly lower recall.
type Engine struct {
	rules *yara.Rules
	mode  string
}

// RecycleYaraResources releases libyara global state, call once on exit.
func RecycleYaraResources() {
	_ = yara.Finalize()
}

// NewFallbackEngine returns a degraded engine backed by the fixed
// pattern table only. Never silently presented as full rule matching:
// Mode() reports it and the caller surfaces it as a capability flag.
func NewFallbackEngine() *Engine {
	return &Engine{mode: common.SigEngineFallback}
}

func newYaraEngine(rules *yara.Rules) *Engine {
	return &Engine{rules: rules, mode: common.SigEngineYara}
}

// Mode reports which matcher backs this engine, yara or fallback.
func (e *Engine) Mode() string {
	return e.mode
}

// Match runs the ruleset over the buffer. Failures and timeouts yield
// zero matches, never an error that aborts the scan.
func (e *Engine) Match(data []byte) []common.SignatureMatch {
	if len(data) == 0 {
		return nil
	}
	if e.rules == nil {
		return matchFallbackPatterns(data)
	}
	scanner, err := yara.NewScanner(e.rules)
	if err != nil {
		common.Logger.Errorln("yara scanner creation failed: ", err)
		return nil
	}
	scanner.SetTimeout(matchTimeout)
	var mr yara.MatchRules
	err = scanner.SetCallback(&mr).ScanMem(data)
	if err != nil {
		common.Logger.Warnln("yara scan degraded to zero matches: ", err)
		return nil
	}
	out := make([]common.SignatureMatch, 0, len(mr))
	for _, m := range mr {
		out = append(out, convertMatch(m))
	}
	return out
}

func convertMatch(m yara.MatchRule) common.SignatureMatch {
	sm := common.SignatureMatch{
		RuleName: m.Rule,
		Severity: common.SeverityMedium,
		Category: "signature",
		Tags:     m.Tags,
	}
	for _, meta := range m.Metas {
		sval, ok := meta.Value.(string)
		if !ok {
			continue
		}
		switch meta.Identifier {
		case "description":
			sm.Description = sval
		case "severity":
			sm.Severity = normalizeSeverity(sval)
		case "category":
			sm.Category = sval
		}
	}
	for _, ms := range m.Strings {
		if len(sm.MatchedFragments) >= common.MaxMatchedFragments {
			break
		}
		sm.MatchedFragments = append(sm.MatchedFragments, printableFragment(ms.Data))
	}
	return sm
}

func normalizeSeverity(s string) string {
	switch s {
	case common.SeverityLow, common.SeverityMedium, common.SeverityHigh, common.SeverityCritical:
		return s
	default:
		return common.SeverityMedium
	}
}

// printableFragment renders matched bytes safely for reports, non-printable
// bytes become dots, long fragments are truncated.
func printableFragment(data []byte) string {
	const maxLen = 48
	if len(data) > maxLen {
		data = data[:maxLen]
	}
	buf := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b < 0x7f {
			buf[i] = b
		} else {
			buf[i] = '.'
		}
	}
	return string(buf)
}
