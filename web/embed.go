// Package web holds the viewer page, its fragments and static assets.
package web

import "embed"

// FS is the embedded web directory.
//
//go:embed templates static
var FS embed.FS
