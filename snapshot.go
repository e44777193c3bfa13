package pppmon

import (
	"time"

	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/session"
	"github.com/pppmon/pppmon/internal/store"
)

// toStoreSnapshot converts a session view to the store representation
// served to the dashboard.
func toStoreSnapshot(v session.View, routers []models.Router, now time.Time) store.Snapshot {
	rows := make([]store.Row, len(v.Result.Rows))
	for i, r := range v.Result.Rows {
		rows[i] = store.Row{
			Name:    r.Name,
			Online:  r.Online,
			IP:      r.IP,
			MAC:     r.MAC,
			Vendor:  r.Vendor,
			Uptime:  r.Uptime,
			Checked: r.Checked,
		}
	}

	return store.Snapshot{
		RouterID:        v.RouterID,
		SessionID:       v.SessionID,
		Status:          string(v.State),
		StatusKnown:     v.Known,
		RouterIP:        v.RouterIP,
		LastError:       optionalString(v.LastError),
		LastConfirmedAt: optionalTime(v.LastConfirmedAt),
		WebTick:         v.WebTick,
		DBTick:          v.DBTick,
		Processed:       v.Processed,
		Vendor:          v.Filters.Vendor,
		Search:          v.Filters.Search,
		Expected:        len(v.Expected),
		Rows:            rows,
		ShownOnline:     v.Result.ShownOnline,
		TotalOnline:     v.Result.TotalOnline,
		Checked:         len(v.Checked),
		VendorCount:     v.VendorCount,
		LastDataAt:      optionalTime(v.LastDataAt),
		DataError:       optionalString(v.DataError),
		Routers:         routers,
		UpdatedAt:       now,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
