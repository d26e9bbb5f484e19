package models

import "strings"

// ContentType is the bitset of request and special types a filter applies to
type ContentType uint32

const (
	ContentOther          ContentType = 1
	ContentScript         ContentType = 1 << 1
	ContentImage          ContentType = 1 << 2
	ContentStylesheet     ContentType = 1 << 3
	ContentObject         ContentType = 1 << 4
	ContentSubdocument    ContentType = 1 << 5
	ContentWebsocket      ContentType = 1 << 7
	ContentWebRTC         ContentType = 1 << 8
	ContentPing           ContentType = 1 << 10
	ContentXMLHTTPRequest ContentType = 1 << 11
	ContentMedia          ContentType = 1 << 14
	ContentFont           ContentType = 1 << 15

	ContentPopup        ContentType = 1 << 24
	ContentCSP          ContentType = 1 << 25
	ContentHeader       ContentType = 1 << 26
	ContentDocument     ContentType = 1 << 27
	ContentGenericBlock ContentType = 1 << 28
	ContentElemHide     ContentType = 1 << 29
	ContentGenericHide  ContentType = 1 << 30
)

// ContentResourceTypes is the default of a request filter without type options
const ContentResourceTypes ContentType = 1<<24 - 1

var contentTypesByName = map[string]ContentType{
	"other":          ContentOther,
	"script":         ContentScript,
	"image":          ContentImage,
	"stylesheet":     ContentStylesheet,
	"object":         ContentObject,
	"subdocument":    ContentSubdocument,
	"websocket":      ContentWebsocket,
	"webrtc":         ContentWebRTC,
	"ping":           ContentPing,
	"xmlhttprequest": ContentXMLHTTPRequest,
	"media":          ContentMedia,
	"font":           ContentFont,
	"popup":          ContentPopup,
	"document":       ContentDocument,
	"genericblock":   ContentGenericBlock,
	"elemhide":       ContentElemHide,
	"generichide":    ContentGenericHide,

	// aliases
	"background": ContentImage,
	"xbl":        ContentOther,
	"dtd":        ContentOther,
	"xhr":        ContentXMLHTTPRequest,
	"frame":      ContentSubdocument,
	"css":        ContentStylesheet,
	"beacon":     ContentPing,
}

// LookupContentType resolves a type option name (case-insensitive, `_` or `-`)
func LookupContentType(name string) (ContentType, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	ct, ok := contentTypesByName[name]
	return ct, ok
}
