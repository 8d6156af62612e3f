package signature

import (
	"mtriage_go/common"
	"strings"
	"testing"
)

func TestFallbackEngine_Match(t *testing.T) {
	t.Parallel()

	eng := NewFallbackEngine()
	if eng.Mode() != common.SigEngineFallback {
		t.Fatalf("Mode() = %q, want %q", eng.Mode(), common.SigEngineFallback)
	}

	tests := []struct {
		name     string
		data     string
		wantRule string
	}{
		{
			name:     "encoded powershell",
			data:     `cmd /c PowerShell -Enc SQBFAFgA`,
			wantRule: "Fallback_EncodedPowershell",
		},
		{
			name:     "mimikatz module",
			data:     "privilege::debug sekurlsa::logonpasswords",
			wantRule: "Fallback_Sekurlsa",
		},
		{
			name:     "shadow copy deletion",
			data:     "VSSADMIN Delete Shadows /all /quiet",
			wantRule: "Fallback_ShadowCopyDelete",
		},
		{
			name:     "run key persistence",
			data:     `reg add HKCU\Software\Microsoft\Windows\CurrentVersion\Run /v updater`,
			wantRule: "Fallback_RunKeyPersistence",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			matches := eng.Match([]byte(tt.data))
			var hit *common.SignatureMatch
			for i := range matches {
				if matches[i].RuleName == tt.wantRule {
					hit = &matches[i]
				}
			}
			if hit == nil {
				t.Fatalf("Match() missing rule %q, got %+v", tt.wantRule, matches)
			}
			if len(hit.Tags) != 1 || hit.Tags[0] != "fallback" {
				t.Errorf("Tags = %v, want [fallback]", hit.Tags)
			}
			if len(hit.MatchedFragments) == 0 || len(hit.MatchedFragments) > common.MaxMatchedFragments {
				t.Errorf("MatchedFragments = %v, want 1..%d entries", hit.MatchedFragments, common.MaxMatchedFragments)
			}
		})
	}
}

func TestFallbackEngine_CleanContent(t *testing.T) {
	t.Parallel()

	eng := NewFallbackEngine()
	if got := eng.Match([]byte("hello world, a perfectly boring document")); len(got) != 0 {
		t.Errorf("Match(clean) = %+v, want none", got)
	}
	if got := eng.Match(nil); got != nil {
		t.Errorf("Match(nil) = %+v, want nil", got)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"low", common.SeverityLow},
		{"critical", common.SeverityCritical},
		{"", common.SeverityMedium},
		{"severe", common.SeverityMedium},
		{"HIGH", common.SeverityMedium},
	}
	for _, tt := range tests {
		if got := normalizeSeverity(tt.in); got != tt.want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintableFragment(t *testing.T) {
	t.Parallel()

	t.Run("non-printable bytes replaced", func(t *testing.T) {
		t.Parallel()
		got := printableFragment([]byte{'M', 'Z', 0x00, 0x90, 'P', 'E'})
		if got != "MZ..PE" {
			t.Errorf("printableFragment = %q, want %q", got, "MZ..PE")
		}
	})

	t.Run("long fragments truncated", func(t *testing.T) {
		t.Parallel()
		got := printableFragment([]byte(strings.Repeat("A", 200)))
		if len(got) != 48 {
			t.Errorf("len = %d, want 48", len(got))
		}
	})
}
