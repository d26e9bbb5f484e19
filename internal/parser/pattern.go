package parser

import (
	"regexp"
	"strings"
	"sync"

	"github.com/bnema/dnr-filters/internal/models"
)

const (
	// Separator matches any character outside [%.0-9a-z_-] or the end of the URL
	restrSeparator = `(?:[^%.0-9a-zA-Z_-]|$)`
	// Hostname anchor for patterns starting with ||
	restrHostnameAnchor1 = `^[a-z-]+://(?:[^/?#]+\.)?`
	// Hostname anchor for patterns starting with ||.
	restrHostnameAnchor2 = `^[a-z-]+://(?:[^/?#]+)?`
)

var (
	// Characters to escape in regex (except * and ^)
	rePlainChars = regexp.MustCompile(`[.+?${}()|[\]\\]`)
	// Dangling asterisks at start/end
	reDanglingAsterisks = regexp.MustCompile(`^\*+|\*+$`)
	reAsterisks         = regexp.MustCompile(`\*+`)
	reSeparators        = regexp.MustCompile(`\^`)
)

// PatternToRegex converts an ABP URL pattern to regex source
func PatternToRegex(pattern string) string {
	if pattern == "" || pattern == "*" {
		return ""
	}

	s := pattern
	anchor := 0 // 0b100 = hostname (||), 0b010 = left (|), 0b001 = right (|)

	if strings.HasPrefix(s, "||") {
		anchor = 0b100
		s = s[2:]
	} else if strings.HasPrefix(s, "|") {
		anchor = 0b010
		s = s[1:]
	}

	if strings.HasSuffix(s, "|") {
		anchor |= 0b001
		s = s[:len(s)-1]
	}

	reStr := rePlainChars.ReplaceAllString(s, `\$0`)
	reStr = reSeparators.ReplaceAllLiteralString(reStr, restrSeparator)
	reStr = reDanglingAsterisks.ReplaceAllString(reStr, "")
	reStr = reAsterisks.ReplaceAllLiteralString(reStr, `.*`)

	if anchor&0b100 != 0 {
		if strings.HasPrefix(reStr, `\.`) {
			reStr = restrHostnameAnchor2 + reStr
		} else {
			reStr = restrHostnameAnchor1 + reStr
		}
	} else if anchor&0b010 != 0 {
		reStr = "^" + reStr
	}

	if anchor&0b001 != 0 {
		reStr = reStr + "$"
	}

	return reStr
}

var compiled sync.Map // filter text -> *regexp.Regexp, nil value for unusable patterns

// FilterRegexp returns the compiled URL matcher of a request filter. ok is
// false for filters without a usable pattern.
func FilterRegexp(f *models.Filter) (re *regexp.Regexp, ok bool) {
	if v, found := compiled.Load(f.Text); found {
		re, _ = v.(*regexp.Regexp)
		return re, re != nil
	}

	source := f.Regexp
	if source == "" {
		source = PatternToRegex(f.Pattern)
	}
	if !f.MatchCase {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		re = nil
	}
	compiled.Store(f.Text, re)
	return re, re != nil
}

// MatchURL reports whether a request filter's pattern matches url. Domain,
// type and party restrictions are left to the caller.
func MatchURL(f *models.Filter, url string) bool {
	if !f.IsRequestFilter() {
		return false
	}
	re, ok := FilterRegexp(f)
	if !ok {
		return false
	}
	return re.MatchString(url)
}
