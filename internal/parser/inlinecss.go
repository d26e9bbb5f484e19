package parser

import (
	"regexp"
	"strings"

	"github.com/bnema/dnr-filters/internal/models"
)

var (
	reCSSProperty = regexp.MustCompile(`^[a-z][a-z-]*$`)
	reCSSValue    = regexp.MustCompile(`^[a-zA-Z0-9 #%,.()!+/-]+$`)
	// functions that load content or evaluate expressions
	reCSSForbidden = regexp.MustCompile(`(?i)\b(?:url|image|image-set|expression|element|cross-fade|attr|var)\s*\(`)
)

// splitInlineCSS separates `selector {prop: value; ...}` into the selector
// and its block body. ok is false when the body has no trailing block.
func splitInlineCSS(body string) (selector, block string, ok bool) {
	if !strings.HasSuffix(body, "}") {
		return body, "", false
	}
	open := strings.LastIndex(body, "{")
	if open <= 0 {
		return body, "", false
	}
	selector = strings.TrimSpace(body[:open])
	block = body[open+1 : len(body)-1]
	return selector, block, selector != ""
}

// parseInlineCSS parses the declarations of an inline block against the
// property allowlist: plain lowercase properties, no custom properties, no
// quoted strings and no resource loading functions. `remove: true` is kept
// apart from the declarations.
func parseInlineCSS(block string) (decls []models.Declaration, remove bool, ok bool) {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil, false, false
	}
	for _, raw := range strings.Split(block, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		property, value, found := strings.Cut(raw, ":")
		if !found {
			return nil, false, false
		}
		property = strings.ToLower(strings.TrimSpace(property))
		value = strings.TrimSpace(value)

		if !reCSSProperty.MatchString(property) || value == "" {
			return nil, false, false
		}
		if !reCSSValue.MatchString(value) || reCSSForbidden.MatchString(value) {
			return nil, false, false
		}
		if property == "remove" {
			if value != "true" {
				return nil, false, false
			}
			remove = true
			continue
		}
		decls = append(decls, models.Declaration{Property: property, Value: value})
	}
	if len(decls) == 0 && !remove {
		return nil, false, false
	}
	return decls, remove, true
}
