// Package dashboard embeds the monitor's single-page web UI.
//
// The page talks to the server package's JSON API and follows live state
// over /api/sse. The {{.Title}} placeholder is substituted at request time.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - router picker, name list, live table, CSV export and backend log
//
//go:embed assets/*
var Assets embed.FS
