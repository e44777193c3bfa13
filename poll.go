package pppmon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/session"
)

// PollOnce runs a single synchronous monitoring pass against routerID and
// returns the resulting view. It does not need [Monitor.Start] and does not
// touch the running monitor's state.
//
// When names is empty the router's PPP secrets are used as the expected
// list. The status and data requests run concurrently. A failed status
// request is reported in the view; a failed data request is returned as an
// error.
func (m *Monitor) PollOnce(ctx context.Context, routerID string, names []string, filters Filters) (View, error) {
	if routerID == "" {
		return View{}, ErrNoRouter
	}

	res, err := m.backend.Connect(ctx, routerID)
	if err != nil {
		return View{}, fmt.Errorf("connect %s: %w", routerID, err)
	}
	if !res.Success {
		return View{}, fmt.Errorf("%w: %s", ErrConnectRejected, res.Message)
	}

	sess := session.New(routerID, session.Config{
		WebRefresh:    m.cfg.webRefresh,
		DBRefresh:     m.cfg.dbRefresh,
		StatusTimeout: m.cfg.statusTimeout,
		SuggestLimit:  m.cfg.suggestLimit,
	}, m.clock.Now())

	if len(names) == 0 {
		secrets, err := m.backend.Secrets(ctx, routerID)
		if err != nil {
			return View{}, fmt.Errorf("load secrets: %w", err)
		}
		names = secrets
	}
	dataReq := sess.Process(names, filters)
	statusReq := sess.StatusRequest()

	var (
		report    models.StatusReport
		statusErr error
		records   []models.DeviceRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// status failures degrade the view instead of failing the pass
		report, statusErr = m.backend.Status(gctx, routerID)
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = m.backend.Data(gctx, routerID)
		if err != nil {
			return fmt.Errorf("fetch data: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	now := m.clock.Now()
	if statusErr != nil {
		_, _ = sess.FailStatus(statusReq, statusErr, now)
	} else {
		_, _ = sess.ApplyStatus(statusReq, report, now)
	}
	if err := sess.ApplyData(dataReq, records, now); err != nil {
		return View{}, err
	}
	return toView(sess.Snapshot(now)), nil
}
