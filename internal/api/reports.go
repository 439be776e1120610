package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/export"
	"github.com/dharsanguruparan/straymandu/internal/model"
	"github.com/dharsanguruparan/straymandu/internal/proximity"
	"github.com/dharsanguruparan/straymandu/internal/workflow"
)

func identity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, errUnauthenticated
	}
	return id, nil
}

func organization(r *http.Request) (*auth.Identity, error) {
	id, err := identity(r)
	if err != nil {
		return nil, err
	}
	if !id.IsOrganization() {
		return nil, errOrganizationOnly
	}
	return id, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if id.Role != auth.RoleVolunteer {
		s.fail(w, r, errVolunteerOnly)
		return
	}
	if !s.limiter.Allow(id.UserID) {
		s.fail(w, r, errRateLimited)
		return
	}
	var sub workflow.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.deps.Workflow.Submit(r.Context(), id.UserID, sub)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rep)
}

// parseStatuses reads a comma separated status list.
func parseStatuses(raw string) ([]model.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []model.Status
	for _, part := range strings.Split(raw, ",") {
		st, err := model.ParseStatus(part)
		if err != nil {
			return nil, badRequest("status: %v", err)
		}
		out = append(out, st)
	}
	return out, nil
}

func parseViewer(q string) (*model.Location, error) {
	if q == "" {
		return nil, nil
	}
	loc, err := proximity.ParsePoint(q)
	if err != nil {
		return nil, badRequest("near: %v", err)
	}
	return &loc, nil
}

func (s *Server) listOptions(r *http.Request) (workflow.ListOptions, error) {
	q := r.URL.Query()
	var opts workflow.ListOptions

	statuses, err := parseStatuses(q.Get("status"))
	if err != nil {
		return opts, err
	}
	opts.Filter.Statuses = statuses
	opts.Filter.UnclaimedOnly = q.Get("unclaimed") == "1" || q.Get("unclaimed") == "true"

	if mine := q.Get("mine"); mine == "1" || mine == "true" {
		id, err := identity(r)
		if err != nil {
			return opts, err
		}
		if id.IsOrganization() {
			opts.Filter.RescuerID = id.UserID
		} else {
			opts.Filter.ReporterID = id.UserID
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, badRequest("limit must be a positive integer")
		}
		opts.Filter.Limit = n
	}

	if opts.Viewer, err = parseViewer(q.Get("near")); err != nil {
		return opts, err
	}
	sortKey := q.Get("sort")
	if sortKey == "" && opts.Viewer != nil {
		sortKey = string(proximity.SortDistance)
	}
	if opts.Sort, err = proximity.ParseSortKey(sortKey); err != nil {
		return opts, badRequest("sort: %v", err)
	}
	if opts.Sort == proximity.SortDistance && opts.Viewer == nil {
		return opts, badRequest("sort=distance needs near=lat,lon")
	}
	if v := q.Get("radiusKm"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || km <= 0 {
			return opts, badRequest("radiusKm must be a positive number")
		}
		if opts.Viewer == nil {
			return opts, badRequest("radiusKm needs near=lat,lon")
		}
		opts.RadiusKm = km
	}
	return opts, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reports, err := s.deps.Workflow.List(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []*model.Report{}
	}
	s.respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	viewer, err := parseViewer(r.URL.Query().Get("near"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.deps.Workflow.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if viewer != nil {
		proximity.Annotate(*viewer, []*model.Report{rep})
	}
	s.respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	org, err := organization(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.deps.Workflow.Claim(r.Context(), r.PathValue("id"), org.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	org, err := organization(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	next, err := model.ParseStatus(req.Status)
	if err != nil {
		s.fail(w, r, badRequest("status: %v", err))
		return
	}
	rep, err := s.deps.Workflow.SetStatus(r.Context(), r.PathValue("id"), next, org.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

type teamRequest struct {
	TeamID string `json:"teamId"`
}

func (s *Server) handleAssignTeam(w http.ResponseWriter, r *http.Request) {
	org, err := organization(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req teamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.TeamID) == "" {
		s.fail(w, r, badRequest("teamId is required"))
		return
	}
	team, err := s.deps.Teams.GetTeam(r.Context(), req.TeamID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.deps.Workflow.AssignTeam(r.Context(), r.PathValue("id"), *team, org.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	org, err := organization(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reports, err := s.deps.Workflow.List(r.Context(), workflow.ListOptions{
		Filter: model.ReportFilter{RescuerID: org.UserID, Limit: model.DefaultListLimit},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Cases(&buf, reports); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="straymandu-cases.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
