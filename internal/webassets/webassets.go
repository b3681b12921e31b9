// Package webassets embeds the static payload served at the session
// server's and dashboard server's "/" routes. The browser terminal UI and
// the dashboard front-end are both out of scope for this system (spec §1);
// this package supplies just enough of a real static root so the asset
// route is something other than a stub, and so gzip caching has real bytes
// to compress.
package webassets

import (
	"embed"
	"io/fs"
)

//go:embed dist
var fsys embed.FS

// Session returns the static root served by a session server.
func Session() fs.FS {
	sub, err := fs.Sub(fsys, "dist/session")
	if err != nil {
		panic(err)
	}
	return sub
}

// Dashboard returns the static root served by the hub's dashboard server.
func Dashboard() fs.FS {
	sub, err := fs.Sub(fsys, "dist/dashboard")
	if err != nil {
		panic(err)
	}
	return sub
}
