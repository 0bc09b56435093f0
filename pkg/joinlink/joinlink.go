// Package joinlink resolves shared document links to document identifiers.
//
// A link may carry the identifier as a query parameter (?doc=ID), as a path
// segment (/documents/ID), or the whole input may already be a raw identifier.
package joinlink

import (
	"net/url"
	"strings"
)

// Resolve extracts a document identifier from a shared link. Inputs that do
// not parse as URLs, or that carry no recognizable document reference, are
// returned as-is after trimming: the caller validates the result.
func Resolve(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	if doc := u.Query().Get("doc"); doc != "" {
		return doc
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "documents" && segments[i+1] != "" {
			return segments[i+1]
		}
	}

	return link
}
