// Package export writes the current display rows as CSV.
package export

import (
	"errors"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/pppmon/pppmon/internal/reconcile"
)

// ErrNoRows is returned when the projection selects no rows. Nothing is
// written in that case.
var ErrNoRows = errors.New("no rows to export")

// Options narrows the exported projection.
type Options struct {
	// CheckedOnly keeps only rows the user has checked.
	CheckedOnly bool

	// IncludeOffline adds offline rows and a Connected column. By default
	// only online rows are exported.
	IncludeOffline bool
}

type onlineRecord struct {
	Name    string `csv:"Name"`
	IP      string `csv:"IP"`
	MAC     string `csv:"MAC"`
	Vendor  string `csv:"Vendor"`
	Uptime  string `csv:"Uptime"`
	Checked bool   `csv:"Checked"`
}

type fullRecord struct {
	Name      string `csv:"Name"`
	IP        string `csv:"IP"`
	MAC       string `csv:"MAC"`
	Vendor    string `csv:"Vendor"`
	Uptime    string `csv:"Uptime"`
	Connected bool   `csv:"Connected"`
	Checked   bool   `csv:"Checked"`
}

// Filter returns the rows selected by opts, in display order.
func Filter(rows []reconcile.Row, opts Options) []reconcile.Row {
	var out []reconcile.Row
	for _, r := range rows {
		if !r.Online && !opts.IncludeOffline {
			continue
		}
		if opts.CheckedOnly && !r.Checked {
			continue
		}
		out = append(out, r)
	}
	return out
}

// WriteCSV writes the rows selected by opts to w, header first.
func WriteCSV(w io.Writer, rows []reconcile.Row, opts Options) error {
	selected := Filter(rows, opts)
	if len(selected) == 0 {
		return ErrNoRows
	}

	if opts.IncludeOffline {
		records := make([]*fullRecord, 0, len(selected))
		for _, r := range selected {
			records = append(records, &fullRecord{
				Name:      r.Name,
				IP:        r.IP,
				MAC:       r.MAC,
				Vendor:    r.Vendor,
				Uptime:    r.Uptime,
				Connected: r.Online,
				Checked:   r.Checked,
			})
		}
		return gocsv.Marshal(records, w)
	}

	records := make([]*onlineRecord, 0, len(selected))
	for _, r := range selected {
		records = append(records, &onlineRecord{
			Name:    r.Name,
			IP:      r.IP,
			MAC:     r.MAC,
			Vendor:  r.Vendor,
			Uptime:  r.Uptime,
			Checked: r.Checked,
		})
	}
	return gocsv.Marshal(records, w)
}
