package iocextract

import (
	"mtriage_go/common"
	"net"
	"regexp"
	"strings"
)

// compiled once, shared read-only across scans
var (
	urlPattern      = regexp.MustCompile(`https?://[a-zA-Z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)
	ipv4Pattern     = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	domainPattern   = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9\-]{0,62}(?:\.[a-zA-Z0-9][a-zA-Z0-9\-]{0,62})+\.?[a-zA-Z]{2,}\b`)
	regPattern      = regexp.MustCompile(`(?i)HK(?:EY_[A-Z_]+|LM|CU|CR|U|CC)\\[\\a-zA-Z0-9 _.\-]+`)
	winPathPattern  = regexp.MustCompile(`[A-Za-z]:\\(?:[^\\/:*?"<>|\r\n]+\\)*[^\\/:*?"<>|\r\n]+`)
	unixPathPattern = regexp.MustCompile(`(?:/(?:etc|tmp|var|usr|home|opt|bin|dev|proc)/[A-Za-z0-9._\-/]+)`)
	emailPattern    = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)
)

// file extensions that regularly produce domain-like false positives in
// binary content (symbol names, resource names)
var binaryExtFalsePositives = []string{
	".dll", ".exe", ".sys", ".ocx", ".drv", ".cpl",
	".pdb", ".obj", ".lib", ".tmp", ".dat", ".bin",
	".png", ".jpg", ".gif", ".bmp", ".ico",
}

// Extract performs pure regex extraction over decoded content. Every
// category stops at the per-kind cap, so output stays bounded no matter
// how large or adversarial the input is. Duplicates are skipped, never
// treated as a stop condition.
func Extract(text string) common.IOCSet {
	iocs := make(common.IOCSet)

	for _, m := range urlPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindURL) {
			break
		}
		iocs.Add(common.IOCKindURL, strings.TrimRight(m, ".,;)'\""))
	}

	for _, m := range ipv4Pattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindIP) {
			break
		}
		if !validPublicIPv4(m) {
			continue
		}
		iocs.Add(common.IOCKindIP, m)
	}

	for _, m := range domainPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindDomain) {
			break
		}
		if isBinaryExtFalsePositive(m) || ipv4Pattern.MatchString(m) {
			continue
		}
		iocs.Add(common.IOCKindDomain, strings.ToLower(m))
	}

	for _, m := range regPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindRegistryKey) {
			break
		}
		iocs.Add(common.IOCKindRegistryKey, m)
	}

	for _, m := range winPathPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindFilePath) {
			break
		}
		iocs.Add(common.IOCKindFilePath, m)
	}
	for _, m := range unixPathPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindFilePath) {
			break
		}
		iocs.Add(common.IOCKindFilePath, m)
	}

	for _, m := range emailPattern.FindAllString(text, -1) {
		if iocs.Full(common.IOCKindEmail) {
			break
		}
		iocs.Add(common.IOCKindEmail, strings.ToLower(m))
	}

	return iocs
}

// validPublicIPv4 rejects unparsable, loopback and broadcast addresses.
func validPublicIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	if v4.IsLoopback() || v4.IsUnspecified() {
		return false
	}
	if v4.Equal(net.IPv4bcast) {
		return false
	}
	return true
}

func isBinaryExtFalsePositive(domain string) bool {
	lower := strings.ToLower(domain)
	for _, ext := range binaryExtFalsePositives {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
