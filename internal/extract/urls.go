package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// fullURLPattern matches fully-qualified http(s) URLs.
var fullURLPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'` + "`" + `]+`)

// bareDomainPattern matches domain-looking tokens without a scheme
// ("github.com", "dev.to"). The final label is validated separately
// against plausibleTLDs so stray dotted tokens ("v1.2", "file.txt")
// don't pass.
var bareDomainPattern = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(\.[a-z0-9][a-z0-9-]*)+(/[^\s<>"']*)?`)

// plausibleTLDs keeps bare-domain promotion from swallowing arbitrary
// dotted tokens. Fully-qualified URLs are not checked against this list.
var plausibleTLDs = map[string]struct{}{
	"com": {}, "org": {}, "net": {}, "io": {}, "dev": {}, "app": {},
	"ai": {}, "tv": {}, "gg": {}, "co": {}, "me": {}, "to": {},
	"edu": {}, "gov": {}, "info": {}, "biz": {}, "us": {}, "uk": {},
	"de": {}, "fr": {}, "jp": {}, "ca": {}, "au": {}, "in": {},
}

// ExtractURLs scans text for fully-qualified URLs and bare domain tokens,
// promotes bare domains with an https:// prefix, normalizes everything,
// and returns the deduplicated set sorted lexically. Pure and
// deterministic; malformed candidates are dropped, never reported.
func ExtractURLs(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(raw string) {
		u, ok := NormalizeURL(raw)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	// Fully-qualified first, then blank them out so the bare-domain pass
	// doesn't re-match their host portions.
	matched := fullURLPattern.FindAllString(text, -1)
	remainder := fullURLPattern.ReplaceAllString(text, " ")
	for _, m := range matched {
		add(strings.TrimRight(m, ".,;:!?)"))
	}

	for _, m := range bareDomainPattern.FindAllString(remainder, -1) {
		m = strings.TrimRight(m, ".,;:!?)")
		if !hasPlausibleTLD(m) {
			continue
		}
		add("https://" + m)
	}

	sort.Strings(out)
	return out
}

// NormalizeURL canonicalizes a URL candidate: lowercase scheme and host,
// default port stripped, trailing slash stripped, fragment dropped.
// Returns ok=false when the candidate fails strict validation (http/https
// scheme and a dotted host).
func NormalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	if port := u.Port(); port != "" {
		if (scheme == "http" && port != "80") || (scheme == "https" && port != "443") {
			host = host + ":" + port
		}
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String(), true
}

func hasPlausibleTLD(domain string) bool {
	if i := strings.IndexAny(domain, "/?"); i >= 0 {
		domain = domain[:i]
	}
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return false
	}
	tld := strings.ToLower(parts[len(parts)-1])
	_, ok := plausibleTLDs[tld]
	return ok
}
