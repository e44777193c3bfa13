// Package reconcile merges an expected-name list with a live device snapshot.
//
// The expected list is authoritative for display order: live records whose
// name is not expected are never shown, and expected names without a live
// record become offline rows. Two free-text filters narrow the result:
//
//   - Vendor: case-insensitive substring of the live record's vendor. While
//     set, offline rows are suppressed entirely because their vendor is
//     unknown.
//   - Search: case-insensitive substring of the expected name, applied to
//     both online and offline rows.
//
// [Reconcile] is a pure function; calling it twice with the same inputs
// yields the same [Result].
package reconcile

import (
	"strings"

	"github.com/pppmon/pppmon/internal/models"
)

// Filters are the two user-entered narrowing conditions.
type Filters struct {
	Vendor string `json:"vendor"`
	Search string `json:"search"`
}

// Active reports whether any filter is set.
func (f Filters) Active() bool {
	return f.Vendor != "" || f.Search != ""
}

// Selection answers whether a device name has been checked by the user.
type Selection interface {
	Checked(name string) bool
}

// Row is one display row. Online rows carry the live record's fields.
type Row struct {
	Name    string `json:"name"`
	Online  bool   `json:"online"`
	IP      string `json:"ip,omitempty"`
	MAC     string `json:"mac,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	Checked bool   `json:"checked"`
}

// Result is the output of a reconciliation pass.
type Result struct {
	Rows []Row `json:"rows"`

	// ShownOnline counts online rows that survived filtering.
	ShownOnline int `json:"shown_online"`

	// TotalOnline is the number of live records the backend reported,
	// independent of filters and of the expected list.
	TotalOnline int `json:"total_online"`
}

// Reconcile builds the display rows for expected against live.
//
// Duplicate names in live resolve last-write-wins. Duplicate names in
// expected produce duplicate rows. A nil selection treats every name as
// unchecked.
func Reconcile(expected []string, live []models.DeviceRecord, filters Filters, sel Selection) Result {
	byName := make(map[string]models.DeviceRecord, len(live))
	for _, rec := range live {
		byName[rec.Name] = rec
	}

	vendorFilter := strings.ToLower(filters.Vendor)
	searchFilter := strings.ToLower(filters.Search)

	res := Result{
		Rows:        make([]Row, 0, len(expected)),
		TotalOnline: len(live),
	}

	for _, name := range expected {
		if searchFilter != "" && !strings.Contains(strings.ToLower(name), searchFilter) {
			continue
		}

		rec, online := byName[name]
		if !online {
			if vendorFilter != "" {
				continue
			}
			res.Rows = append(res.Rows, Row{Name: name, Checked: checked(sel, name)})
			continue
		}

		if vendorFilter != "" && !strings.Contains(strings.ToLower(rec.Vendor), vendorFilter) {
			continue
		}

		res.Rows = append(res.Rows, Row{
			Name:    name,
			Online:  true,
			IP:      rec.IP,
			MAC:     rec.MAC,
			Vendor:  rec.Vendor,
			Uptime:  rec.Uptime,
			Checked: checked(sel, name),
		})
		res.ShownOnline++
	}

	return res
}

func checked(sel Selection, name string) bool {
	if sel == nil {
		return false
	}
	return sel.Checked(name)
}

// ParseNames splits free-form input into expected names: one per line,
// surrounding whitespace trimmed, blank lines dropped. Order and duplicates
// are preserved.
func ParseNames(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// CleanNames applies the same trimming rules as [ParseNames] to an already
// split list.
func CleanNames(in []string) []string {
	names := make([]string, 0, len(in))
	for _, n := range in {
		if name := strings.TrimSpace(n); name != "" {
			names = append(names, name)
		}
	}
	return names
}
