package signature

import (
	"bytes"
	"mtriage_go/common"
)

// fallbackPattern is one fixed literal with an assigned severity, used
// when the YARA engine is unavailable. Matching is plain case-insensitive
// substring search, strictly lower recall than rule matching.
type fallbackPattern struct {
	name        string
	pattern     string
	severity    string
	category    string
	description string
}

var fallbackPatterns = []fallbackPattern{
	// encoded command execution
	{"Fallback_EncodedPowershell", "powershell -enc", common.SeverityHigh, "execution", "base64-encoded PowerShell invocation"},
	{"Fallback_EncodedCommand", "-encodedcommand", common.SeverityHigh, "execution", "encoded command-line execution"},
	{"Fallback_HiddenWindowShell", "-windowstyle hidden", common.SeverityMedium, "execution", "hidden-window shell execution"},
	{"Fallback_DownloadString", "downloadstring(", common.SeverityHigh, "execution", "in-memory script download cradle"},

	// process injection APIs referenced as strings
	{"Fallback_CreateRemoteThread", "createremotethread", common.SeverityHigh, "process_injection", "remote thread creation API reference"},
	{"Fallback_WriteProcessMemory", "writeprocessmemory", common.SeverityHigh, "process_injection", "cross-process memory write API reference"},
	{"Fallback_VirtualAllocEx", "virtualallocex", common.SeverityMedium, "process_injection", "remote memory allocation API reference"},

	// registry persistence
	{"Fallback_RunKeyPersistence", "currentversion\\run", common.SeverityMedium, "persistence", "run-key registry persistence path"},
	{"Fallback_ScheduledTask", "schtasks /create", common.SeverityMedium, "persistence", "scheduled task creation command"},

	// credential dumping tooling
	{"Fallback_Mimikatz", "mimikatz", common.SeverityCritical, "credential_access", "credential dumping tool name"},
	{"Fallback_Sekurlsa", "sekurlsa::", common.SeverityCritical, "credential_access", "mimikatz credential module invocation"},
	{"Fallback_LaZagne", "lazagne", common.SeverityHigh, "credential_access", "credential recovery tool name"},

	// ransomware
	{"Fallback_RansomNote", "your files have been encrypted", common.SeverityCritical, "ransomware", "ransom note phrasing"},
	{"Fallback_ShadowCopyDelete", "vssadmin delete shadows", common.SeverityCritical, "ransomware", "shadow copy deletion, recovery sabotage"},
	{"Fallback_BootRecoveryOff", "bcdedit /set {default} recoveryenabled no", common.SeverityHigh, "ransomware", "boot recovery disabled"},

	// disabling security products
	{"Fallback_FirewallOff", "netsh advfirewall set allprofiles state off", common.SeverityHigh, "defense_evasion", "firewall disabling command"},
	{"Fallback_DefenderOff", "set-mppreference -disablerealtimemonitoring", common.SeverityHigh, "defense_evasion", "real-time AV monitoring disabled"},
	{"Fallback_EventLogWipe", "wevtutil cl", common.SeverityHigh, "defense_evasion", "event log clearing command"},
}

// matchFallbackPatterns performs substring matching of the fixed table
// over the buffer. One match entry per pattern at most.
func matchFallbackPatterns(data []byte) []common.SignatureMatch {
	lowered := bytes.ToLower(data)
	var out []common.SignatureMatch
	for _, p := range fallbackPatterns {
		if !bytes.Contains(lowered, []byte(p.pattern)) {
			continue
		}
		out = append(out, common.SignatureMatch{
			RuleName:         p.name,
			Description:      p.description,
			Severity:         p.severity,
			Category:         p.category,
			MatchedFragments: []string{p.pattern},
			Tags:             []string{"fallback"},
		})
	}
	return out
}
