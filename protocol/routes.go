package protocol

import (
	"net/url"
	"strings"
)

// API routes relative to a database prefix.
const (
	PathCursor     = "/_api/cursor"
	PathExport     = "/_api/export"
	PathCollection = "/_api/collection"
	PathVersion    = "/_api/version"
)

// CursorPath returns the id-scoped route below a cursor family base path.
func CursorPath(base string, id CursorID) string {
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(string(id))
}

// CollectionPath returns the route describing a single collection.
func CollectionPath(name string) string {
	return PathCollection + "/" + url.PathEscape(name)
}

// DatabasePrefix returns the path prefix selecting a database. The empty
// name selects the server default.
func DatabasePrefix(database string) string {
	if database == "" {
		return ""
	}
	return "/_db/" + url.PathEscape(database)
}
