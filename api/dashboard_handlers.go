package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"oee-dashboard/analysis"
	"oee-dashboard/database"
)

// filterFromQuery reads dateFrom, dateTo, area, shift, machineStatus and machineIds
func filterFromQuery(q url.Values) (analysis.FilterSpec, error) {
	f := analysis.FilterSpec{
		Area:          q.Get("area"),
		Shift:         q.Get("shift"),
		MachineStatus: q.Get("machineStatus"),
	}

	var err error
	if v := q.Get("dateFrom"); v != "" {
		if f.DateFrom, err = parseTime(v); err != nil {
			return f, fmt.Errorf("%w: dateFrom %q", database.ErrInvalidRange, v)
		}
	}
	if v := q.Get("dateTo"); v != "" {
		if f.DateTo, err = parseTime(v); err != nil {
			return f, fmt.Errorf("%w: dateTo %q", database.ErrInvalidRange, v)
		}
	}
	if v := q.Get("machineIds"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.MachineIDs = append(f.MachineIDs, id)
			}
		}
	}
	return f, nil
}

// dashboardRequest is the body of an asynchronous dashboard request
type dashboardRequest struct {
	SessionID string `json:"session_id"`
	filterBody
}

// filterBody carries a filter with plain YYYY-MM-DD or RFC3339 dates
type filterBody struct {
	DateFrom      string   `json:"dateFrom"`
	DateTo        string   `json:"dateTo"`
	Area          string   `json:"area"`
	Shift         string   `json:"shift"`
	MachineStatus string   `json:"machineStatus"`
	MachineIDs    []string `json:"machineIds"`
}

func (b filterBody) toFilter() (analysis.FilterSpec, error) {
	q := url.Values{}
	q.Set("dateFrom", b.DateFrom)
	q.Set("dateTo", b.DateTo)
	q.Set("area", b.Area)
	q.Set("shift", b.Shift)
	q.Set("machineStatus", b.MachineStatus)
	q.Set("machineIds", strings.Join(b.MachineIDs, ","))
	return filterFromQuery(q)
}

// GetDashboard computes the dashboard synchronously
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	res, err := h.analyzer.GetDashboardData(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RequestDashboard starts an asynchronous dashboard computation for a session
func (h *Handler) RequestDashboard(w http.ResponseWriter, r *http.Request) {
	var req dashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		respondStoreError(w, err)
		return
	}

	ticket, err := h.analyzer.RequestDashboard(req.SessionID, filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	status := http.StatusAccepted
	if ticket.Status == database.JobCompleted {
		status = http.StatusOK
	}
	respondJSON(w, status, ticket)
}

// GetDashboardJob returns the status of an asynchronous request
func (h *Handler) GetDashboardJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.analyzer.GetJobStatus(mux.Vars(r)["jobId"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GetLatestDashboard returns the result currently applied to a session
func (h *Handler) GetLatestDashboard(w http.ResponseWriter, r *http.Request) {
	latest, err := h.analyzer.Latest(mux.Vars(r)["sessionId"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, latest)
}
