package parser

import (
	"regexp"
	"strings"

	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/models"
)

// optionKind is the closed set of $options a request filter understands
type optionKind int

const (
	optionUnknown optionKind = iota
	optionContentType
	optionMatchCase
	optionDomain
	optionThirdParty
	optionFirstParty
	optionSitekey
	optionRewrite
	optionCSP
	optionHeader
)

var optionKinds = map[string]optionKind{
	"match-case":  optionMatchCase,
	"domain":      optionDomain,
	"third-party": optionThirdParty,
	"3p":          optionThirdParty,
	"first-party": optionFirstParty,
	"1p":          optionFirstParty,
	"sitekey":     optionSitekey,
	"rewrite":     optionRewrite,
	"csp":         optionCSP,
	"header":      optionHeader,
}

// RewritePrefix introduces a resource key in rewrite=
const RewritePrefix = "abp-resource:"

var (
	// CSP directives a blocking filter must not inject
	reUnsafeCSP = regexp.MustCompile(`(?i)(?:;|^) ?(?:base-uri|referrer|report-to|report-uri|upgrade-insecure-requests)\b`)
	// RFC 7230 token
	reHeaderName = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+.^_`|~-]+$")
)

// option is one parsed entry of an $options block
type option struct {
	name     string
	kind     optionKind
	inverse  bool
	value    string
	hasValue bool
	ctype    models.ContentType
}

func lookupOption(raw string) option {
	o := option{name: raw}
	if name, value, ok := strings.Cut(raw, "="); ok {
		o.name, o.value, o.hasValue = name, value, true
	}
	if strings.HasPrefix(o.name, "~") {
		o.inverse = true
		o.name = o.name[1:]
	}
	o.name = strings.ReplaceAll(strings.ToLower(o.name), "_", "-")

	if kind, ok := optionKinds[o.name]; ok {
		o.kind = kind
		return o
	}
	if ct, ok := models.LookupContentType(o.name); ok {
		o.kind = optionContentType
		o.ctype = ct
	}
	return o
}

// requestOptions collects the validated options of a request filter
type requestOptions struct {
	contentType    models.ContentType
	hasContentType bool
	matchCase      bool
	thirdParty     *bool
	domains        string
	sitekeys       []string
	csp            string
	header         *models.Header
	rewrite        string
	hasRewrite     bool
}

// apply validates o and folds it into r. It returns the invalid reason on failure.
func (r *requestOptions) apply(o option, blocking bool, allowSitekeys bool) models.Reason {
	switch o.kind {
	case optionContentType:
		if o.hasValue {
			return models.ReasonUnknownOption
		}
		if o.inverse {
			if !r.hasContentType {
				r.contentType = models.ContentResourceTypes
				r.hasContentType = true
			}
			r.contentType &^= o.ctype
		} else {
			r.contentType |= o.ctype
			r.hasContentType = true
		}
	case optionMatchCase:
		r.matchCase = !o.inverse
	case optionThirdParty, optionFirstParty:
		thirdParty := (o.kind == optionThirdParty) != o.inverse
		r.thirdParty = &thirdParty
	case optionDomain:
		if o.value == "" || o.inverse {
			return models.ReasonUnknownOption
		}
		for _, d := range strings.Split(o.value, domains.URLSeparator) {
			if !domains.ValidWildcard(domains.Canonicalize(d)) {
				return models.ReasonInvalidWildcard
			}
		}
		r.domains = o.value
	case optionSitekey:
		if !allowSitekeys || o.value == "" || o.inverse {
			return models.ReasonUnknownOption
		}
		r.sitekeys = strings.Split(strings.ToUpper(o.value), domains.URLSeparator)
	case optionRewrite:
		if !o.hasValue || o.inverse {
			return models.ReasonUnknownOption
		}
		if !blocking || !strings.HasPrefix(o.value, RewritePrefix) || len(o.value) == len(RewritePrefix) {
			return models.ReasonInvalidRewrite
		}
		r.rewrite = strings.TrimPrefix(o.value, RewritePrefix)
		r.hasRewrite = true
	case optionCSP:
		if o.inverse {
			return models.ReasonUnknownOption
		}
		if blocking && (o.value == "" || reUnsafeCSP.MatchString(o.value)) {
			return models.ReasonInvalidCSP
		}
		r.contentType |= models.ContentCSP
		r.hasContentType = true
		r.csp = o.value
	case optionHeader:
		if o.inverse {
			return models.ReasonUnknownOption
		}
		header, ok := parseHeader(o.value, blocking)
		if !ok {
			return models.ReasonInvalidHeader
		}
		r.contentType |= models.ContentHeader
		r.hasContentType = true
		r.header = header
	default:
		return models.ReasonUnknownOption
	}
	return ""
}

// parseHeader validates `name` or `name=value`. Commas inside the value are
// written as \x2c since a comma ends the option.
func parseHeader(spec string, blocking bool) (*models.Header, bool) {
	if spec == "" {
		return nil, !blocking
	}
	name, value, hasValue := strings.Cut(spec, "=")
	if !reHeaderName.MatchString(name) {
		return nil, false
	}
	if hasValue {
		value = strings.ReplaceAll(value, `\x2c`, ",")
		if value == "" {
			return nil, false
		}
		for i := 0; i < len(value); i++ {
			if value[i] < 0x20 || value[i] == 0x7f {
				return nil, false
			}
		}
	}
	return &models.Header{Name: strings.ToLower(name), Value: value}, true
}
