package server

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ScriptPath is where the reload client is served.
const ScriptPath = "/__devsite/livereload.js"

// scriptTag is the markup injected into every HTML response.
const scriptTag = `<script src="` + ScriptPath + `"></script>`

// InjectScript inserts tag before the last closing body tag of doc. When
// the document has no body end tag the script is appended.
func InjectScript(doc []byte, tag string) []byte {
	at := lastBodyEnd(doc)
	if at < 0 {
		out := make([]byte, 0, len(doc)+len(tag))
		out = append(out, doc...)
		return append(out, tag...)
	}

	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

// lastBodyEnd returns the byte offset of the last </body> token, or -1.
// Tags inside comments, scripts and attribute values are not matched.
func lastBodyEnd(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if strings.EqualFold(string(name), "body") {
				found = offset
			}
		}
		offset += raw
	}
}
