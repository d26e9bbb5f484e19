package converter

// Host regex constraints
//
// regexFilter conditions are evaluated by RE2 in Chromium. The host checks
// each one with isRegexSupported() before a ruleset is accepted, so regexes
// it would refuse are rejected here instead.
//
// UNSUPPORTED FEATURES:
// - (?=...) (?!...)   - Lookahead
// - (?<=...) (?<!...) - Lookbehind
// - \1 .. \9          - Backreferences
// - *+ ++ ?+          - Possessive quantifiers
// - (?>...)           - Atomic groups
// - Non-ASCII chars   - Rules must be ASCII
//
// MEMORY:
// - Compiled programs are capped at 2KB, approximated by an instruction count
// - Case insensitive matching grows the program, match-case rules fit more

import (
	"fmt"
	"regexp/syntax"
	"strings"

	"github.com/bnema/dnr-filters/internal/domains"
)

// maxRegexInstructions approximates the host's compiled regex memory limit
const maxRegexInstructions = 1000

// RegexSupport tells whether the host engine accepts a regexFilter
type RegexSupport func(source string, matchCase bool) bool

// RegexIssue describes a problem found in a regex filter
type RegexIssue struct {
	Pattern string
	Issue   string
}

var unsupportedConstructs = []struct {
	pattern string
	name    string
}{
	{`(?<!`, "negative lookbehind"},
	{`(?<=`, "positive lookbehind"},
	{`(?=`, "positive lookahead"},
	{`(?!`, "negative lookahead"},
	{`(?>`, "atomic group"},
}

// CheckRegexSupport analyzes a regex source for host compatibility issues
func CheckRegexSupport(source string, matchCase bool) []RegexIssue {
	var issues []RegexIssue
	add := func(issue string) {
		issues = append(issues, RegexIssue{Pattern: source, Issue: issue})
	}

	if !domains.IsASCII(source) {
		add("non-ASCII characters")
	}
	for _, uc := range unsupportedConstructs {
		if strings.Contains(source, uc.pattern) {
			add(uc.name)
		}
	}
	if hasBackreference(source) {
		add("backreference")
	}
	if len(issues) > 0 {
		return issues
	}

	flags := syntax.Perl
	if !matchCase {
		flags |= syntax.FoldCase
	}
	re, err := syntax.Parse(source, flags)
	if err != nil {
		add("syntax error: " + err.Error())
		return issues
	}
	prog, err := syntax.Compile(re.Simplify())
	if err != nil {
		add("syntax error: " + err.Error())
		return issues
	}
	if n := len(prog.Inst); n > maxRegexInstructions {
		add(fmt.Sprintf("memory limit exceeded: %d instructions", n))
	}
	return issues
}

// hasBackreference reports an escaped digit outside a character class
func hasBackreference(source string) bool {
	inCharClass := false
	escaped := false

	for _, ch := range source {
		if escaped {
			escaped = false
			if !inCharClass && ch >= '1' && ch <= '9' {
				return true
			}
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '[' && !inCharClass:
			inCharClass = true
		case ch == ']' && inCharClass:
			inCharClass = false
		}
	}
	return false
}

// DescribeIssues returns a human-readable description of all issues
func DescribeIssues(issues []RegexIssue) string {
	if len(issues) == 0 {
		return ""
	}
	var parts []string
	for _, issue := range issues {
		parts = append(parts, issue.Issue)
	}
	return strings.Join(parts, ", ")
}

// ChromeRegexSupport mirrors the host's isRegexSupported check
func ChromeRegexSupport(source string, matchCase bool) bool {
	return len(CheckRegexSupport(source, matchCase)) == 0
}

// AllRegexSupported accepts every regex, for hosts validating on their own
func AllRegexSupported(string, bool) bool { return true }

// NoRegexSupported rejects every regex filter
func NoRegexSupported(string, bool) bool { return false }

// RegexSupportByName resolves the compiler.regex_support setting
func RegexSupportByName(name string) (RegexSupport, error) {
	switch strings.ToLower(name) {
	case "", "chrome":
		return ChromeRegexSupport, nil
	case "all":
		return AllRegexSupported, nil
	case "none":
		return NoRegexSupported, nil
	}
	return nil, fmt.Errorf("unknown regex support mode %q (want chrome, all or none)", name)
}
