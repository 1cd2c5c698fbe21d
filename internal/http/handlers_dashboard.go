package http

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"walletwise/internal/bills"
	"walletwise/internal/core"
	applog "walletwise/internal/log"
)

type dashboardView struct {
	UserName string
	Board    boardView
	Activity []activityView
}

// handleDashboard always re-fetches the bill list. The activity panel is
// read at the same time.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who := identity(r)
	p := ParseMonthParams(r.URL.Query(), s.now())

	var (
		list     []core.Bill
		stale    bool
		activity []core.Activity
		g        errgroup.Group
	)
	g.Go(func() error {
		list, stale = s.load(ctx, who)
		return nil
	})
	g.Go(func() error {
		var err error
		if activity, err = s.bills.RecentActivity(ctx, activityLimit); err != nil {
			s.logger.WarnContext(ctx, "Failed to read recent activity", applog.FieldError, err)
		}
		return nil
	})
	_ = g.Wait()

	board := newBoardView(list, p, core.DateOf(s.now()))
	board.Stale = stale
	s.render(w, r, http.StatusOK, "dashboard_page", dashboardView{
		UserName: who.Name,
		Board:    board,
		Activity: newActivityViews(activity),
	})
}

// handleBoard re-renders the board after a mutation. It uses the list the
// mutation installed and only fetches when nothing was loaded yet.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	p := ParseMonthParams(r.URL.Query(), s.now())
	list, stale := s.current(r.Context(), who)

	board := newBoardView(list, p, core.DateOf(s.now()))
	board.Stale = stale
	s.render(w, r, http.StatusOK, "board", board)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDayParam(r.URL.Query())
	if err != nil {
		actionError(err, "").Write(w)
		return
	}
	list, _ := s.current(r.Context(), identity(r))
	s.render(w, r, http.StatusOK, "day_modal", newDayModalView(list, day))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := s.bills.RecentActivity(r.Context(), activityLimit)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Failed to read recent activity", applog.FieldError, err)
	}
	s.render(w, r, http.StatusOK, "activity", newActivityViews(activity))
}

// load re-fetches the user's list. On failure the previous list is returned
// with stale set.
func (s *Server) load(ctx context.Context, who bills.Identity) ([]core.Bill, bool) {
	res, err := s.bills.Load(ctx, who)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load bills",
			applog.FieldUserID, who.UserID,
			applog.FieldError, err)
		list, _ := s.bills.Snapshot(who)
		return list, true
	}
	return res.Bills, false
}

func (s *Server) current(ctx context.Context, who bills.Identity) ([]core.Bill, bool) {
	if list, loaded := s.bills.Snapshot(who); loaded {
		return list, false
	}
	return s.load(ctx, who)
}
