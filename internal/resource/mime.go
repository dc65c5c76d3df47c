package resource

import (
	"path/filepath"
	"strings"
)

// DefaultContentType is used for extensions missing from the table.
const DefaultContentType = "application/octet-stream"

// contentTypes maps lowercase file extensions (without the dot) to the
// content type sent with the file.
var contentTypes = map[string]string{
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
}

// ContentType returns the content type for a file name based on its
// extension. Unknown extensions map to DefaultContentType.
func ContentType(name string) string {
	if ct, ok := lookupContentType(name); ok {
		return ct
	}
	return DefaultContentType
}

func lookupContentType(name string) (string, bool) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	ct, ok := contentTypes[strings.ToLower(ext)]
	return ct, ok
}
