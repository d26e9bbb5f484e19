package models

// Rule is one declarativeNetRequest rule
type Rule struct {
	ID        int       `json:"id,omitempty" yaml:"id,omitempty"`
	Priority  int       `json:"priority" yaml:"priority"`
	Condition Condition `json:"condition" yaml:"condition"`
	Action    Action    `json:"action" yaml:"action"`
}

// Condition defines which requests a rule matches
type Condition struct {
	URLFilter                string   `json:"urlFilter,omitempty" yaml:"urlFilter,omitempty"`
	RegexFilter              string   `json:"regexFilter,omitempty" yaml:"regexFilter,omitempty"`
	IsURLFilterCaseSensitive *bool    `json:"isUrlFilterCaseSensitive,omitempty" yaml:"isUrlFilterCaseSensitive,omitempty"`
	DomainType               string   `json:"domainType,omitempty" yaml:"domainType,omitempty"`
	ResourceTypes            []string `json:"resourceTypes,omitempty" yaml:"resourceTypes,omitempty"`
	RequestDomains           []string `json:"requestDomains,omitempty" yaml:"requestDomains,omitempty"`
	ExcludedRequestDomains   []string `json:"excludedRequestDomains,omitempty" yaml:"excludedRequestDomains,omitempty"`
	InitiatorDomains         []string `json:"initiatorDomains,omitempty" yaml:"initiatorDomains,omitempty"`
	ExcludedInitiatorDomains []string `json:"excludedInitiatorDomains,omitempty" yaml:"excludedInitiatorDomains,omitempty"`
}

// Action defines what to do when a rule matches
type Action struct {
	Type            string       `json:"type" yaml:"type"` // block, allow, allowAllRequests, redirect, modifyHeaders
	Redirect        *Redirect    `json:"redirect,omitempty" yaml:"redirect,omitempty"`
	ResponseHeaders []HeaderInfo `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
}

// Redirect is the payload of a redirect action
type Redirect struct {
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	ExtensionPath string `json:"extensionPath,omitempty" yaml:"extensionPath,omitempty"`
}

// HeaderInfo is one header modification of a modifyHeaders action
type HeaderInfo struct {
	Header    string `json:"header" yaml:"header"`
	Operation string `json:"operation" yaml:"operation"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Action type constants
const (
	ActionBlock            = "block"
	ActionAllow            = "allow"
	ActionAllowAllRequests = "allowAllRequests"
	ActionRedirect         = "redirect"
	ActionModifyHeaders    = "modifyHeaders"
)

// Resource type constants (declarativeNetRequest names)
const (
	ResourceMainFrame      = "main_frame"
	ResourceSubFrame       = "sub_frame"
	ResourceStylesheet     = "stylesheet"
	ResourceScript         = "script"
	ResourceImage          = "image"
	ResourceFont           = "font"
	ResourceObject         = "object"
	ResourceXMLHTTPRequest = "xmlhttprequest"
	ResourcePing           = "ping"
	ResourceCSPReport      = "csp_report"
	ResourceMedia          = "media"
	ResourceWebsocket      = "websocket"
	ResourceOther          = "other"
)

// Domain type constants
const (
	DomainFirstParty = "firstParty"
	DomainThirdParty = "thirdParty"
)

// Header operation constants
const (
	HeaderAppend = "append"
	HeaderSet    = "set"
	HeaderRemove = "remove"
)
