// Package webx provides the live web augmentation layer: a domain-gated
// fetcher with on-disk caching, lightweight HTML metadata extraction, a
// search provider for discovering candidate product pages, and the augmenter
// that turns fetched pages into catalog-shaped cards. All failures here are
// soft: a page that cannot be fetched or parsed contributes nothing and the
// rest of the pipeline proceeds with what it has.
package webx

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// defaultAllowedDomains is the built-in fetch allowlist used when no
// override is configured.
var defaultAllowedDomains = []string{"amazon.com", "walmart.com", "bestbuy.com"}

// DomainGate decides whether an outbound fetch to a URL is permitted.
// A gate either allows every domain or allows only hosts that match its
// allowlist by exact name or subdomain suffix.
type DomainGate struct {
	allowAll bool
	domains  map[string]struct{}
}

// NewDomainGate builds a gate from an explicit domain list. An empty list
// with allowAll false falls back to the built-in allowlist.
func NewDomainGate(domains []string, allowAll bool) *DomainGate {
	if len(domains) == 0 {
		domains = defaultAllowedDomains
	}
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		set[d] = struct{}{}
	}
	return &DomainGate{allowAll: allowAll, domains: set}
}

// NewDomainGateFromEnv builds a gate from WEB_FETCH_ALLOWLIST (comma
// separated domains) and WEB_FETCH_ALLOW_ALL.
func NewDomainGateFromEnv() *DomainGate {
	var domains []string
	if raw := os.Getenv("WEB_FETCH_ALLOWLIST"); raw != "" {
		domains = strings.Split(raw, ",")
	}
	allowAll := false
	switch strings.ToLower(os.Getenv("WEB_FETCH_ALLOW_ALL")) {
	case "1", "true", "yes":
		allowAll = true
	}
	return NewDomainGate(domains, allowAll)
}

// Allowed reports whether rawURL may be fetched. Only http and https URLs
// with a resolvable host can pass, even when the gate allows all domains.
func (g *DomainGate) Allowed(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("webx: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webx: unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("webx: url %q has no host", rawURL)
	}
	if g.allowAll {
		return nil
	}
	for d := range g.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("webx: domain %q is not allowlisted", host)
}
