package api

import (
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

const defaultNotificationLimit = 50

type notificationList struct {
	Items  []*model.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := defaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 || limit > 200 {
			s.fail(w, r, badRequest("limit must be between 1 and 200"))
			return
		}
	}
	items, err := s.deps.Notifications.ListNotifications(r.Context(), id.UserID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unread, err := s.deps.Notifications.CountUnread(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Notification{}
	}
	s.respondJSON(w, http.StatusOK, notificationList{Items: items, Unread: unread})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Notifications.MarkNotificationRead(r.Context(), r.PathValue("id"), id.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"isRead": true})
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.deps.Notifications.MarkAllNotificationsRead(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	org, err := organization(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	teams, err := s.deps.Teams.ListTeams(r.Context(), org.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if teams == nil {
		teams = []*model.Team{}
	}
	s.respondJSON(w, http.StatusOK, teams)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Directory.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := model.LeaderboardMonthly
	switch q.Get("period") {
	case "", string(model.LeaderboardMonthly):
	case string(model.LeaderboardTotal):
		period = model.LeaderboardTotal
	default:
		s.fail(w, r, badRequest("period must be monthly or total"))
		return
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			s.fail(w, r, badRequest("limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	board, err := s.deps.Directory.Leaderboard(r.Context(), period, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if board == nil {
		board = []*model.Profile{}
	}
	s.respondJSON(w, http.StatusOK, board)
}
