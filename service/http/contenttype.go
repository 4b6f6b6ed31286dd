package http

import (
	"path"
	"strings"
)

var extensionContentTypes = map[string]string{
	".css":  "text/css",
	".js":   "application/javascript",
	".html": "text/html",
	".json": "application/json",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".svg":  "image/svg+xml",
}

// contentTypeFor implements spec §4.6 step 7's content-type selection:
// file extension on the request path, then the OpenAPI-declared type for
// the matched operation, then sniffing the response body, then a JSON
// fallback.
func contentTypeFor(requestPath, declared string, body []byte) string {
	if ext := path.Ext(requestPath); ext != "" {
		if ct, ok := extensionContentTypes[strings.ToLower(ext)]; ok {
			return ct
		}
	}
	if declared != "" {
		return declared
	}
	if ct, ok := sniffContentType(body); ok {
		return ct
	}
	return "application/json"
}

func sniffContentType(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html"):
		return "text/html", true
	case strings.Contains(lower, "function ") || strings.Contains(lower, "const ") || strings.Contains(lower, "=>"):
		return "application/javascript", true
	case strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, "#"):
		return "text/css", true
	}
	return "", false
}
