// Package domains canonicalizes, validates and walks the domain lists carried
// by filters (`a.com,~b.com##sel` and `$domain=a.com|~b.com`).
package domains

import (
	"iter"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Separators used by the two filter families
const (
	ContentSeparator = "," // element hiding: a.com,~b.com##sel
	URLSeparator     = "|" // request filters: $domain=a.com|~b.com
)

// WildcardSuffix marks a domain that matches any public suffix
const WildcardSuffix = ".*"

// Canonicalize lowercases a domain and drops surrounding spaces and trailing dots
func Canonicalize(d string) string {
	d = strings.TrimSpace(d)
	d = strings.TrimRight(d, ".")
	return strings.ToLower(d)
}

// Split splits a domain list into included and excluded domains, skipping
// blank entries. Excluded entries are returned without their `~` prefix.
func Split(list, sep string) (include, exclude []string) {
	for _, d := range strings.Split(list, sep) {
		d = Canonicalize(d)
		if d == "" || d == "~" {
			continue
		}
		if strings.HasPrefix(d, "~") {
			exclude = append(exclude, d[1:])
		} else {
			include = append(include, d)
		}
	}
	return include, exclude
}

// HasBlankEntry reports whether a list has an empty entry, e.g. `a,,b` or `~`
func HasBlankEntry(list, sep string) bool {
	for _, d := range strings.Split(list, sep) {
		d = strings.TrimSpace(d)
		if d == "" || d == "~" {
			return true
		}
	}
	return false
}

// IsWildcard reports whether d ends with the `.*` wildcard suffix
func IsWildcard(d string) bool {
	return strings.HasSuffix(d, WildcardSuffix)
}

// ValidWildcard reports whether any `*` in d is a single trailing `.*` after
// at least one label. Domains without `*` are always valid.
func ValidWildcard(d string) bool {
	d = strings.TrimPrefix(d, "~")
	if !strings.Contains(d, "*") {
		return true
	}
	if !IsWildcard(d) {
		return false
	}
	prefix := strings.TrimSuffix(d, WildcardSuffix)
	if prefix == "" || strings.Contains(prefix, "*") {
		return false
	}
	for _, label := range strings.Split(prefix, ".") {
		if label == "" {
			return false
		}
	}
	return true
}

// ValidHostname checks label syntax for an ASCII hostname. Underscores are
// tolerated since filter lists target them in the wild.
func ValidHostname(d string) bool {
	if d == "" || len(d) > 253 {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// IsASCII reports whether s only contains 7-bit characters
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Suffixes yields domain and each of its parent domains, most specific first:
// www.example.com, example.com, com. When includeBlank is set the generic key
// "" is yielded last.
func Suffixes(domain string, includeBlank bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		d := domain
		for d != "" {
			if !yield(d) {
				return
			}
			i := strings.IndexByte(d, '.')
			if i < 0 {
				break
			}
			d = d[i+1:]
		}
		if includeBlank {
			yield("")
		}
	}
}

// WildcardKey returns the `label.*` key a wildcard entry would need to match
// domain, found by stripping the public suffix. It returns "" when nothing is
// left once the suffix is stripped (a bare TLD, an IP address or localhost).
func WildcardKey(domain string) string {
	if domain == "" || net.ParseIP(domain) != nil {
		return ""
	}
	ps, _ := publicsuffix.PublicSuffix(domain)
	if ps == domain || len(ps) >= len(domain) {
		return ""
	}
	rest := strings.TrimSuffix(domain, "."+ps)
	if rest == domain || rest == "" {
		return ""
	}
	return rest + WildcardSuffix
}

// WildcardKeys returns every wildcard key matching domain, most specific
// first: images.example.co.uk yields images.example.* then example.*
func WildcardKeys(domain string) []string {
	key := WildcardKey(domain)
	if key == "" {
		return nil
	}
	var keys []string
	rest := strings.TrimSuffix(key, WildcardSuffix)
	for rest != "" {
		keys = append(keys, rest+WildcardSuffix)
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
	}
	return keys
}

// MatchesWildcard reports whether a `label.*` pattern applies to domain or one
// of its subdomains.
func MatchesWildcard(pattern, domain string) bool {
	for _, key := range WildcardKeys(domain) {
		if key == pattern {
			return true
		}
	}
	return false
}
