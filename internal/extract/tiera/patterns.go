package tiera

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	ipRe     = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)
	cidrRe   = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})/(\d{1,3})\b`)
	portRe   = regexp.MustCompile(`:(\d{1,5})\b`)
	fqdnRe   = regexp.MustCompile(`\b([a-zA-Z0-9][a-zA-Z0-9-]{0,62}\.)+[a-zA-Z]{2,}\b`)
	urlRe    = regexp.MustCompile(`\bhttps?://[^\s"']+`)
)

// validIPv4 reports whether every octet of a dotted-quad string is 0-255.
func validIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// validCIDRMask reports whether mask is in range for an IPv4 (0-32) prefix.
// IPv6 prefixes never reach this check: the lexical matcher only recognizes
// dotted-quad addresses.
func validCIDRMask(mask string) bool {
	n, err := strconv.Atoi(mask)
	return err == nil && n >= 0 && n <= 32
}

// validPort reports whether port is in the valid TCP/UDP port range.
func validPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1 && n <= 65535
}

// extractIPs returns every syntactically valid IPv4 literal in text.
func extractIPs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range ipRe.FindAllString(text, -1) {
		if validIPv4(m) && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// cidrMatch is one validated CIDR literal.
type cidrMatch struct {
	Address string
	Mask    string
}

func extractCIDRs(text string) []cidrMatch {
	var out []cidrMatch
	for _, m := range cidrRe.FindAllStringSubmatch(text, -1) {
		addr, mask := m[1], m[2]
		if validIPv4(addr) && validCIDRMask(mask) {
			out = append(out, cidrMatch{Address: addr, Mask: mask})
		}
	}
	return out
}

// extractFQDNs returns syntactically valid fully-qualified hostnames,
// excluding bare dotted-quad IPv4 addresses already captured by extractIPs.
func extractFQDNs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range fqdnRe.FindAllString(text, -1) {
		if validIPv4(m) {
			continue
		}
		lm := strings.ToLower(m)
		if !seen[lm] {
			seen[lm] = true
			out = append(out, lm)
		}
	}
	return out
}

func extractURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

// portNear returns a validated port literal immediately following a colon
// adjacent to anchor within text (used to associate a `host:port` pair).
func portNear(text, anchor string) (string, bool) {
	idx := strings.Index(text, anchor)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(anchor):]
	m := portRe.FindStringSubmatch(rest)
	if m == nil || !validPort(m[1]) {
		return "", false
	}
	// only accept if the colon is the very next character
	trimmed := strings.TrimLeft(rest, "")
	if !strings.HasPrefix(trimmed, ":"+m[1]) {
		return "", false
	}
	return m[1], true
}
