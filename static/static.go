// Package static holds the pages served by the API server.
package static

import "embed"

//go:embed *.html *.js
var Content embed.FS
