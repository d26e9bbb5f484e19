package models

import (
	"time"

	"github.com/bnema/dnr-filters/internal/domains"
)

// Kind represents the type of filter parsed
type Kind int

const (
	KindComment Kind = iota
	KindInvalid
	KindBlocking
	KindAllowing
	KindElemHide
	KindElemHideException
	KindElemHideEmulation
	KindSnippet
)

var kindNames = [...]string{
	KindComment:           "comment",
	KindInvalid:           "invalid",
	KindBlocking:          "blocking",
	KindAllowing:          "allowing",
	KindElemHide:          "elemhide",
	KindElemHideException: "elemhideexception",
	KindElemHideEmulation: "elemhideemulation",
	KindSnippet:           "snippet",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Reason explains why a filter was classified as invalid
type Reason string

const (
	ReasonEmpty                     Reason = "filter_empty"
	ReasonInvalidRegexp             Reason = "filter_invalid_regexp"
	ReasonUnknownOption             Reason = "filter_unknown_option"
	ReasonInvalidRewrite            Reason = "filter_invalid_rewrite"
	ReasonInvalidCSP                Reason = "filter_invalid_csp"
	ReasonInvalidHeader             Reason = "filter_invalid_header"
	ReasonInvalidWildcard           Reason = "filter_invalid_wildcard"
	ReasonInvalidDomain             Reason = "filter_invalid_domain"
	ReasonElemHideEmulationNoDomain Reason = "filter_elemhideemulation_nodomain"
	ReasonSnippetNoDomain           Reason = "filter_snippet_nodomain"
	ReasonElemHideInvalidSelector   Reason = "filter_elemhide_invalid_selector"
	ReasonElemHideInvalidInlineCSS  Reason = "filter_elemhide_invalid_inline_css"
	ReasonURLNotSpecificEnough      Reason = "filter_url_not_specific_enough"
	ReasonElemHideNotSpecificEnough Reason = "filter_elemhide_not_specific_enough"
	// ReasonInvalidEncoding is only produced by the rule compiler
	ReasonInvalidEncoding Reason = "filter_invalid_encoding"
)

// Header is the `$header=name=value` restriction of a request filter
type Header struct {
	Name  string
	Value string // empty matches any value
}

// Declaration is one `property: value` of an inline CSS block
type Declaration struct {
	Property string
	Value    string
}

// Filter is the parsed form of one filter line. Filters are built once by
// the parser; only the activity fields change afterwards and they belong to
// the subscription layer owning the filter.
type Filter struct {
	Text   string // normalized source line, identity key
	Kind   Kind
	Reason Reason // invalid filters only
	Option string // option that made the filter invalid, if any

	Disabled               bool
	DisabledBySubscription map[string]struct{}
	HitCount               int
	LastHit                time.Time

	Domains *domains.Map // shared, nil when unrestricted

	// Request filters
	Pattern     string // literal pattern, empty for regex filters
	Regexp      string // regex source of a /.../ pattern
	ContentType ContentType
	MatchCase   bool
	ThirdParty  *bool
	Sitekeys    []string
	Header      *Header
	CSP         string
	Rewrite     string // resource key of rewrite=abp-resource:<key>

	// Content filters
	Selector  string
	Remove    bool
	InlineCSS []Declaration
	Script    string
}

// IsComment reports whether the filter is a comment line
func (f *Filter) IsComment() bool { return f.Kind == KindComment }

// IsInvalid reports whether the filter failed validation
func (f *Filter) IsInvalid() bool { return f.Kind == KindInvalid }

// IsRequestFilter reports whether the filter matches URLs
func (f *Filter) IsRequestFilter() bool {
	return f.Kind == KindBlocking || f.Kind == KindAllowing
}

// IsContentFilter reports whether the filter targets page content
func (f *Filter) IsContentFilter() bool {
	switch f.Kind {
	case KindElemHide, KindElemHideException, KindElemHideEmulation, KindSnippet:
		return true
	}
	return false
}

// IsGeneric reports whether the filter applies everywhere it is not excluded
func (f *Filter) IsGeneric() bool {
	return f.Domains.Generic()
}

// IsActiveOn reports whether the filter's domain list applies to domain
func (f *Filter) IsActiveOn(domain string) bool {
	return f.Domains.IsActiveOn(domain)
}

// HasCSP reports whether the filter carries the $csp option
func (f *Filter) HasCSP() bool {
	return f.ContentType&ContentCSP != 0
}

// Enabled reports whether neither the user nor any subscription disabled the filter
func (f *Filter) Enabled() bool {
	return !f.Disabled && len(f.DisabledBySubscription) == 0
}

// DisableFor marks the filter disabled within a subscription
func (f *Filter) DisableFor(subscription string) {
	if f.DisabledBySubscription == nil {
		f.DisabledBySubscription = make(map[string]struct{})
	}
	f.DisabledBySubscription[subscription] = struct{}{}
}

// EnableFor clears a subscription disable
func (f *Filter) EnableFor(subscription string) {
	delete(f.DisabledBySubscription, subscription)
	if len(f.DisabledBySubscription) == 0 {
		f.DisabledBySubscription = nil
	}
}

// RecordHit increments the hit counter
func (f *Filter) RecordHit(at time.Time) {
	f.HitCount++
	f.LastHit = at
}
