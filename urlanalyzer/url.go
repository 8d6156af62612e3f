package urlanalyzer

import (
	"context"
	"fmt"
	"io"
	"mtriage_go/common"
	"mtriage_go/customerrs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// strict fetch limits, the target is untrusted by definition
	maxBodyBytes = 5 * 1024 * 1024
	fetchTimeout = 15 * time.Second
	maxRedirects = 10

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) mtriage/1.0"
)

// Validate parses and normalizes a URL and rejects loopback, private and
// link-local targets. This is a safety requirement enforced before any
// network I/O happens, not a heuristic.
func Validate(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, customerrs.ErrURLMalformed
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, customerrs.ErrURLSchemeBlocked
	}
	host := u.Hostname()
	if host == "" {
		return nil, customerrs.ErrURLMalformed
	}
	if strings.EqualFold(host, "localhost") {
		return nil, customerrs.ErrURLTargetBlocked
	}
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return nil, customerrs.ErrURLTargetBlocked
	}
	return u, nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// FetchResult is the raw outcome of a bounded content fetch.
type FetchResult struct {
	Body          []byte
	FinalURL      string
	StatusCode    int
	RedirectChain []common.RedirectHop
}

// Fetch retrieves the target under strict size, time and redirect-count
// limits. Every redirect hop is re-validated against the blocked-target
// rules and recorded as evidence. The dialer re-checks resolved
// addresses so a hostname cannot rebind into a blocked range.
func Fetch(ctx context.Context, u *url.URL) (*FetchResult, error) {
	var chain []common.RedirectHop

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if isBlockedIP(ip) {
					return nil, customerrs.ErrURLTargetBlocked
				}
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		},
	}

	client := &http.Client{
		Timeout:   fetchTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("redirect limit of %d exceeded", maxRedirects)
			}
			if _, err := Validate(req.URL.String()); err != nil {
				return err
			}
			status := 0
			if req.Response != nil {
				status = req.Response.StatusCode
			}
			chain = append(chain, common.RedirectHop{
				Index:      len(via),
				URL:        req.URL.String(),
				StatusCode: status,
			})
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		Body:          body,
		FinalURL:      resp.Request.URL.String(),
		StatusCode:    resp.StatusCode,
		RedirectChain: chain,
	}, nil
}

// Findings derives content-independent heuristics from the URL shape and
// its redirect chain.
func Findings(u *url.URL, res *FetchResult) []common.Finding {
	var out []common.Finding

	if net.ParseIP(u.Hostname()) != nil {
		out = append(out, common.Finding{
			Title:    "IP-literal URL",
			Detail:   "target addresses a raw IP instead of a hostname: " + u.Hostname(),
			Severity: common.SeverityMedium,
			Category: "url",
		})
	}
	if strings.Contains(u.Host, "@") || strings.Contains(u.User.String(), ":") {
		out = append(out, common.Finding{
			Title:    "Credentials embedded in URL",
			Detail:   "userinfo component present, a common obfuscation trick",
			Severity: common.SeverityHigh,
			Category: "url",
		})
	}
	if res == nil {
		return out
	}
	if n := len(res.RedirectChain); n >= 3 {
		hops := make([]string, 0, n)
		for _, h := range res.RedirectChain {
			hops = append(hops, h.URL)
		}
		out = append(out, common.Finding{
			Title:    fmt.Sprintf("Long redirect chain (%d hops)", n),
			Detail:   "chained redirects: " + strings.Join(hops, " -> "),
			Severity: common.SeverityMedium,
			Category: "url",
		})
	}
	if u.Scheme == "https" {
		for _, hop := range res.RedirectChain {
			if strings.HasPrefix(hop.URL, "http://") {
				out = append(out, common.Finding{
					Title:    "HTTPS to HTTP downgrade",
					Detail:   "redirect chain drops TLS at " + hop.URL,
					Severity: common.SeverityHigh,
					Category: "url",
				})
				break
			}
		}
	}
	return out
}
