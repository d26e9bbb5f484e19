package parser

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// domains, separator type (@ ? $ or none) and body of a content filter
	reContent = regexp.MustCompile(`^([^/|@"!]*?)#([@?$])?#(.+)$`)
	// trailing $options block of a request filter
	reOptions = regexp.MustCompile(`\$(~?[\w-]+(?:=[^,]*)?(?:,~?[\w-]+(?:=[^,]*)?)*)$`)
	reCSP     = regexp.MustCompile(`(?i)\bcsp=`)
	reCSPName = regexp.MustCompile(`(?i)^ *c *s *p *=`)
	reSpaces  = regexp.MustCompile(` +`)
)

// Normalize strips the whitespace a filter line may not carry.
//
// Comments keep inner spaces. Content filters lose the spaces of their domain
// part and keep the ones of their body. Request filters lose every space
// except inside a $csp value, where runs collapse to one. Spacing around a
// separator that breaks the `#?#` family falls back to the domain/body split
// the content pattern finds: `domain# ?##sel` becomes `domain#?##sel`.
func Normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		if r != ' ' && unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	if strings.HasPrefix(strings.TrimLeft(text, " "), "!") {
		return strings.TrimSpace(text)
	}

	if m := reContent.FindStringSubmatch(text); m != nil {
		return strings.ReplaceAll(m[1], " ", "") + "#" + m[2] + "#" + strings.TrimSpace(m[3])
	}

	stripped := strings.ReplaceAll(text, " ", "")
	if !strings.Contains(stripped, "$") || !reCSP.MatchString(stripped) {
		return stripped
	}
	loc := reOptions.FindStringIndex(stripped)
	if loc == nil {
		return stripped
	}

	// Find the $ in the original text matching the options $ of the
	// stripped text, the pattern itself may contain dollars.
	beforeOptions := stripped[:loc[0]]
	dollarIndex := -1
	for i := 0; i <= strings.Count(beforeOptions, "$"); i++ {
		next := strings.IndexByte(text[dollarIndex+1:], '$')
		if next < 0 {
			return stripped
		}
		dollarIndex += next + 1
	}

	options := strings.Split(text[dollarIndex+1:], ",")
	for i, option := range options {
		if m := reCSPName.FindString(option); m != "" {
			value := strings.TrimSpace(option[len(m):])
			options[i] = strings.ReplaceAll(m, " ", "") + reSpaces.ReplaceAllString(value, " ")
		} else {
			options[i] = strings.ReplaceAll(option, " ", "")
		}
	}
	return beforeOptions + "$" + strings.Join(options, ",")
}
