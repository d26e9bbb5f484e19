package converter

import (
	"fmt"
	"strings"

	"github.com/bnema/dnr-filters/internal/domains"
	"github.com/bnema/dnr-filters/internal/models"
)

// Rule priorities. Allow-all rules sit right above the tier they override,
// so a $genericblock exception beats every generic block while specific
// filters still win over both.
const (
	GenericPriority          = 1000
	GenericAllowAllPriority  = 1001
	SpecificPriority         = 2000
	SpecificAllowAllPriority = 2001
)

// CompileError is returned for filters that must not be silently dropped
type CompileError struct {
	Reason models.Reason
	Text   string
	Detail string
}

func (e *CompileError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Text, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Text)
}

// Capabilities describes what the host rule engine accepts
type Capabilities struct {
	IsRegexSupported RegexSupport
	Resources        Resources
}

// DefaultCapabilities targets Chromium with the built-in resource table
func DefaultCapabilities() Capabilities {
	return Capabilities{
		IsRegexSupported: ChromeRegexSupport,
		Resources:        DefaultResources(),
	}
}

// requestTypes maps content type bits to host resource types. Document is
// handled apart since the host never matches main_frame by default.
var requestTypes = []struct {
	mask  models.ContentType
	types []string
}{
	{models.ContentOther, []string{models.ResourceOther, models.ResourceCSPReport}},
	{models.ContentScript, []string{models.ResourceScript}},
	{models.ContentImage, []string{models.ResourceImage}},
	{models.ContentStylesheet, []string{models.ResourceStylesheet}},
	{models.ContentObject, []string{models.ResourceObject}},
	{models.ContentSubdocument, []string{models.ResourceSubFrame}},
	{models.ContentWebsocket, []string{models.ResourceWebsocket}},
	{models.ContentPing, []string{models.ResourcePing}},
	{models.ContentXMLHTTPRequest, []string{models.ResourceXMLHTTPRequest}},
	{models.ContentMedia, []string{models.ResourceMedia}},
	{models.ContentFont, []string{models.ResourceFont}},
}

// supportedTypes is every bit of requestTypes
var supportedTypes = func() models.ContentType {
	var mask models.ContentType
	for _, rt := range requestTypes {
		mask |= rt.mask
	}
	return mask
}()

// typeScope is the set of resource types a rule applies to
type typeScope struct {
	document bool
	others   []string // nil with all set
	all      bool     // every supported non-document type
}

func (s typeScope) empty() bool {
	return !s.document && !s.all && len(s.others) == 0
}

func (s typeScope) hasOthers() bool {
	return s.all || len(s.others) > 0
}

// scopeFor resolves the request types of a content type mask
func scopeFor(ct models.ContentType) typeScope {
	s := typeScope{document: ct&models.ContentDocument != 0}
	if ct&supportedTypes == supportedTypes {
		s.all = true
		return s
	}
	for _, rt := range requestTypes {
		if ct&rt.mask != 0 {
			s.others = append(s.others, rt.types...)
		}
	}
	return s
}

// frameScope covers documents and their subframes
var frameScope = typeScope{document: true, others: []string{models.ResourceSubFrame}}

// allOthers lists every supported non-document resource type
func allOthers() []string {
	var out []string
	for _, rt := range requestTypes {
		out = append(out, rt.types...)
	}
	return out
}

// Compile turns a request filter into declarative rules. Content filters,
// comments and invalid filters compile to no rules and no error, as do
// filters the host cannot express. Only a non-ASCII filter or a regex the
// host refuses yield a *CompileError.
func Compile(f *models.Filter, caps Capabilities) ([]models.Rule, error) {
	return CompileURL(f, caps, "")
}

// CompileURL is Compile with urlFilter overriding the filter's own pattern
func CompileURL(f *models.Filter, caps Capabilities, urlFilter string) ([]models.Rule, error) {
	if f == nil || !f.IsRequestFilter() {
		return nil, nil
	}
	if err := checkEncoding(f, urlFilter); err != nil {
		return nil, err
	}

	// Neither wildcard domains, sitekeys nor header matching exist in
	// the host engine.
	if f.Domains.HasWildcard() || len(f.Sitekeys) > 0 || f.Header != nil ||
		f.ContentType&models.ContentHeader != 0 {
		return nil, nil
	}

	base, err := baseCondition(f, caps, urlFilter)
	if err != nil {
		return nil, err
	}

	c := compiler{filter: f, base: base}
	if f.Kind == models.KindBlocking {
		return c.blocking(caps), nil
	}
	return c.allowing(), nil
}

func checkEncoding(f *models.Filter, urlFilter string) error {
	bad := !domains.IsASCII(f.Pattern) || !domains.IsASCII(f.Regexp) || !domains.IsASCII(urlFilter)
	if !bad && f.Domains != nil {
		for _, e := range f.Domains.Entries() {
			if !domains.IsASCII(e.Domain) {
				bad = true
				break
			}
		}
	}
	if bad {
		return &CompileError{Reason: models.ReasonInvalidEncoding, Text: f.Text}
	}
	return nil
}

func baseCondition(f *models.Filter, caps Capabilities, urlFilter string) (models.Condition, error) {
	caseSensitive := f.MatchCase
	cond := models.Condition{IsURLFilterCaseSensitive: &caseSensitive}

	switch {
	case urlFilter != "":
		cond.URLFilter = urlFilter
	case f.Regexp != "":
		supported := caps.IsRegexSupported
		if supported == nil {
			supported = ChromeRegexSupport
		}
		if !supported(f.Regexp, f.MatchCase) {
			detail := DescribeIssues(CheckRegexSupport(f.Regexp, f.MatchCase))
			return cond, &CompileError{Reason: models.ReasonInvalidRegexp, Text: f.Text, Detail: detail}
		}
		cond.RegexFilter = f.Regexp
	default:
		cond.URLFilter = hostURLFilter(f.Pattern)
	}

	if f.ThirdParty != nil {
		cond.DomainType = models.DomainFirstParty
		if *f.ThirdParty {
			cond.DomainType = models.DomainThirdParty
		}
	}
	return cond, nil
}

// hostURLFilter adapts a filter pattern to urlFilter syntax. `||*` is not
// accepted by the host and matches like the bare remainder.
func hostURLFilter(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "||*")
	if pattern == "*" {
		return ""
	}
	return pattern
}

type compiler struct {
	filter *models.Filter
	base   models.Condition
}

func (c compiler) priority() int {
	if c.filter.IsGeneric() {
		return GenericPriority
	}
	return SpecificPriority
}

func (c compiler) blocking(caps Capabilities) []models.Rule {
	f := c.filter

	if f.HasCSP() {
		return c.rules(frameScope, c.priority(), models.Action{
			Type: models.ActionModifyHeaders,
			ResponseHeaders: []models.HeaderInfo{{
				Header:    "Content-Security-Policy",
				Operation: models.HeaderAppend,
				Value:     f.CSP,
			}},
		})
	}

	scope := scopeFor(f.ContentType)
	if scope.empty() {
		return nil
	}

	if f.Rewrite != "" {
		redirect, ok := caps.Resources.Redirect(f.Rewrite)
		if !ok {
			return nil
		}
		return c.rules(scope, c.priority(), models.Action{Type: models.ActionRedirect, Redirect: redirect})
	}

	return c.rules(scope, c.priority(), models.Action{Type: models.ActionBlock})
}

func (c compiler) allowing() []models.Rule {
	var rules []models.Rule
	ct := c.filter.ContentType

	// Allowing every frame lets frame blocking filters through as well.
	// Filter lists rely on this, keep it.
	if ct&models.ContentCSP != 0 {
		rules = append(rules, c.rules(frameScope, c.priority(), models.Action{Type: models.ActionAllow})...)
		ct &^= models.ContentCSP
	}

	if ct&(models.ContentDocument|models.ContentGenericBlock) != 0 {
		priority := SpecificAllowAllPriority
		if ct&models.ContentGenericBlock != 0 {
			priority = GenericAllowAllPriority
		}
		rules = append(rules, c.rules(frameScope, priority, models.Action{Type: models.ActionAllowAllRequests})...)
		ct &^= models.ContentDocument | models.ContentGenericBlock
	}

	if scope := scopeFor(ct); !scope.empty() {
		rules = append(rules, c.rules(scope, c.priority(), models.Action{Type: models.ActionAllow})...)
	}
	return rules
}

func (c compiler) rules(scope typeScope, priority int, action models.Action) []models.Rule {
	conds := c.conditions(scope)
	rules := make([]models.Rule, 0, len(conds))
	for _, cond := range conds {
		rules = append(rules, models.Rule{Priority: priority, Condition: cond, Action: action})
	}
	return rules
}

// conditions builds the conditions covering scope. A domain restricted rule
// spanning documents and other types is split in two: the host compares a
// navigation's own domain through requestDomains and every other request's
// page through initiatorDomains.
func (c compiler) conditions(scope typeScope) []models.Condition {
	included := c.filter.Domains.Included()
	excluded := c.filter.Domains.Excluded()

	if len(included) == 0 && len(excluded) == 0 {
		cond := c.base
		switch {
		case scope.document && scope.all:
			cond.ResourceTypes = append([]string{models.ResourceMainFrame}, allOthers()...)
		case scope.document:
			cond.ResourceTypes = append([]string{models.ResourceMainFrame}, scope.others...)
		case !scope.all:
			cond.ResourceTypes = scope.others
		}
		return []models.Condition{cond}
	}

	var conds []models.Condition
	if scope.document {
		cond := c.base
		cond.ResourceTypes = []string{models.ResourceMainFrame}
		cond.RequestDomains = included
		cond.ExcludedRequestDomains = excluded
		conds = append(conds, cond)
	}
	if scope.hasOthers() {
		cond := c.base
		if !scope.all {
			cond.ResourceTypes = scope.others
		}
		cond.InitiatorDomains = included
		cond.ExcludedInitiatorDomains = excluded
		conds = append(conds, cond)
	}
	return conds
}
