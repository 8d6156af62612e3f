package structural

import (
	"mtriage_go/common"
	"strings"
)

// SensitiveAPI describes one imported symbol worth flagging.
type SensitiveAPI struct {
	Severity    string
	Description string
	Category    string
}

// sensitiveAPITable cross-references imported symbol names against known
// abuse-prone Windows APIs. Keys are canonical names, the trailing A/W
// variant suffix is stripped before lookup.
var sensitiveAPITable = map[string]SensitiveAPI{
	// process injection
	"VirtualAllocEx":       {common.SeverityHigh, "allocates memory in a remote process, classic injection staging", "process_injection"},
	"WriteProcessMemory":   {common.SeverityHigh, "writes into another process address space", "process_injection"},
	"ReadProcessMemory":    {common.SeverityMedium, "reads another process address space", "process_injection"},
	"CreateRemoteThread":   {common.SeverityCritical, "starts a thread inside a remote process, code injection", "process_injection"},
	"NtCreateThreadEx":     {common.SeverityCritical, "low-level remote thread creation, bypasses some monitoring", "process_injection"},
	"QueueUserAPC":         {common.SeverityHigh, "queues an APC, used for early-bird style injection", "process_injection"},
	"SetThreadContext":     {common.SeverityHigh, "rewrites thread context, process hollowing step", "process_injection"},
	"NtUnmapViewOfSection": {common.SeverityHigh, "unmaps image sections, process hollowing step", "process_injection"},
	"NtMapViewOfSection":   {common.SeverityHigh, "maps sections across processes", "process_injection"},
	"VirtualProtect":       {common.SeverityMedium, "changes memory page protection, shellcode staging", "process_injection"},
	"SetWindowsHookEx":     {common.SeverityHigh, "installs a global hook, injection and keylogging vector", "keylogging"},

	// persistence
	"RegSetValueEx":       {common.SeverityMedium, "writes a registry value, persistence vector", "persistence"},
	"RegCreateKeyEx":      {common.SeverityMedium, "creates a registry key, persistence vector", "persistence"},
	"CreateService":       {common.SeverityHigh, "installs a Windows service", "persistence"},
	"ChangeServiceConfig": {common.SeverityMedium, "reconfigures an existing service", "persistence"},

	// anti-debugging / evasion
	"IsDebuggerPresent":          {common.SeverityMedium, "checks for an attached debugger", "anti_debug"},
	"CheckRemoteDebuggerPresent": {common.SeverityMedium, "checks for a remote debugger", "anti_debug"},
	"NtQueryInformationProcess":  {common.SeverityMedium, "queries process info, common anti-debug trick", "anti_debug"},
	"OutputDebugString":          {common.SeverityLow, "debugger detection side channel", "anti_debug"},

	// credential access
	"LsaRetrievePrivateData": {common.SeverityCritical, "reads LSA secrets", "credential_access"},
	"CredEnumerate":          {common.SeverityHigh, "enumerates stored credentials", "credential_access"},
	"CryptUnprotectData":     {common.SeverityHigh, "decrypts DPAPI blobs, browser credential theft", "credential_access"},
	"SamIConnect":            {common.SeverityCritical, "direct SAM database access", "credential_access"},

	// network
	"URLDownloadToFile": {common.SeverityHigh, "downloads a file from a URL, dropper behavior", "network"},
	"InternetOpenUrl":   {common.SeverityMedium, "opens a URL via WinINet", "network"},
	"HttpSendRequest":   {common.SeverityMedium, "sends an HTTP request via WinINet", "network"},
	"WSAStartup":        {common.SeverityLow, "initializes Winsock", "network"},
	"connect":           {common.SeverityLow, "raw socket connect", "network"},

	// keylogging / surveillance
	"GetAsyncKeyState":    {common.SeverityHigh, "polls key state, keylogger primitive", "keylogging"},
	"GetKeyboardState":    {common.SeverityHigh, "reads keyboard state, keylogger primitive", "keylogging"},
	"GetForegroundWindow": {common.SeverityLow, "tracks the active window", "keylogging"},

	// privilege manipulation
	"AdjustTokenPrivileges": {common.SeverityMedium, "adjusts token privileges, often paired with SeDebugPrivilege", "process_injection"},
	"OpenProcessToken":      {common.SeverityLow, "opens a process token", "process_injection"},
}

// LookupSensitiveAPI resolves an imported symbol against the table.
// The trailing A/W charset suffix is stripped first.
func LookupSensitiveAPI(symbol string) (SensitiveAPI, bool) {
	if info, ok := sensitiveAPITable[symbol]; ok {
		return info, true
	}
	if len(symbol) > 1 {
		last := symbol[len(symbol)-1]
		if last == 'A' || last == 'W' {
			if info, ok := sensitiveAPITable[symbol[:len(symbol)-1]]; ok {
				return info, true
			}
		}
	}
	return SensitiveAPI{}, false
}

// SensitiveImportFindings converts flagged imports into findings, naming
// the actual symbol and its declaring module.
func SensitiveImportFindings(imports []common.ImportRef) []common.Finding {
	var out []common.Finding
	for _, imp := range imports {
		info, ok := LookupSensitiveAPI(imp.Symbol)
		if !ok {
			continue
		}
		out = append(out, common.Finding{
			Title:    "Sensitive import: " + imp.Symbol,
			Detail:   info.Description + " (declared by " + strings.ToLower(imp.DeclaringModule) + ")",
			Severity: info.Severity,
			Category: info.Category,
		})
	}
	return out
}
