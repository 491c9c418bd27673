package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"oee-dashboard/database"
	"oee-dashboard/metrics"
)

func (h *Handler) recordMutation(entity string) {
	metrics.IncStoreMutation(entity, h.store.Revision())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func descending(r *http.Request) bool {
	return r.URL.Query().Get("order") == "desc"
}

// RecordDefectCorrection replaces the defect quantity of a production record
func (h *Handler) RecordDefectCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DefectQuantity *int   `json:"defectQuantity"`
		ActingUser     string `json:"actingUser"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DefectQuantity == nil {
		respondError(w, http.StatusBadRequest, "defectQuantity is required")
		return
	}

	entry, err := h.store.RecordDefectCorrection(mux.Vars(r)["id"], *req.DefectQuantity, req.ActingUser)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("defect_correction")
	respondJSON(w, http.StatusCreated, entry)
}

// GetDefectCorrections returns the adjustment log of a production record
func (h *Handler) GetDefectCorrections(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logs, err := h.store.AdjustmentLogs(id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	rec, err := h.store.GetProduction(id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"productionRecordId": id,
		"defectQuantity":     rec.DefectQuantity,
		"logs":               logs,
	})
}

// ListDefects returns the defect table filtered by machineId, status and severity
func (h *Handler) ListDefects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field, err := database.ParseDefectSortField(q.Get("sort"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	defects := h.store.ListDefects(database.DefectQuery{
		MachineID: q.Get("machineId"),
		Status:    database.DefectStatus(q.Get("status")),
		Severity:  database.Severity(q.Get("severity")),
		Sort:      field,
		Desc:      descending(r),
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  defects,
		"count": len(defects),
	})
}

// newDefectRequest accepts the defect date as YYYY-MM-DD or RFC3339
type newDefectRequest struct {
	database.NewDefectData
	Date string `json:"date"`
}

// CreateDefect stores an operator-entered defect record
func (h *Handler) CreateDefect(w http.ResponseWriter, r *http.Request) {
	var req newDefectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseTime(req.Date)
	if err != nil {
		respondStoreError(w, fmt.Errorf("%w: invalid defect date %q", database.ErrInvalidRecord, req.Date))
		return
	}
	data := req.NewDefectData
	data.Date = date

	rec, err := h.store.AppendDefectRecord(data)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("defect")
	respondJSON(w, http.StatusCreated, rec)
}

// UpdateDefect applies a status, severity or note change
func (h *Handler) UpdateDefect(w http.ResponseWriter, r *http.Request) {
	var patch database.DefectPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	rec, err := h.store.UpdateDefectRecord(mux.Vars(r)["id"], patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("defect")
	respondJSON(w, http.StatusOK, rec)
}

// ListMachines returns the machine table
func (h *Handler) ListMachines(w http.ResponseWriter, r *http.Request) {
	field, err := database.ParseMachineSortField(r.URL.Query().Get("sort"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	machines := h.store.ListMachines(field, descending(r))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  machines,
		"count": len(machines),
	})
}

// CreateMachine registers or replaces a machine
func (h *Handler) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var m database.MachineInfo
	if !decodeBody(w, r, &m) {
		return
	}
	saved, err := h.store.PutMachine(m)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("machine")
	respondJSON(w, http.StatusCreated, saved)
}

// UpdateMachine edits a machine
func (h *Handler) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	var patch database.MachinePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	m, err := h.store.UpdateMachine(mux.Vars(r)["id"], patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("machine")
	respondJSON(w, http.StatusOK, m)
}

// ToggleMachine flips a machine between active and inactive
func (h *Handler) ToggleMachine(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.ToggleMachineStatus(mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("machine")
	respondJSON(w, http.StatusOK, m)
}

// ListMaintenanceOrders returns orders, optionally for one machineId
func (h *Handler) ListMaintenanceOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.store.ListMaintenanceOrders(r.URL.Query().Get("machineId"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  orders,
		"count": len(orders),
	})
}

type newOrderRequest struct {
	database.NewMaintenanceOrder
	ScheduledDate string `json:"scheduledDate"`
}

// CreateMaintenanceOrder opens a pending maintenance order
func (h *Handler) CreateMaintenanceOrder(w http.ResponseWriter, r *http.Request) {
	var req newOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := req.NewMaintenanceOrder
	if req.ScheduledDate != "" {
		date, err := parseTime(req.ScheduledDate)
		if err != nil {
			respondStoreError(w, fmt.Errorf("%w: invalid scheduledDate %q", database.ErrInvalidRecord, req.ScheduledDate))
			return
		}
		in.ScheduledDate = date
	}

	o, err := h.store.AppendMaintenanceOrder(in)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("maintenance_order")
	respondJSON(w, http.StatusCreated, o)
}

// UpdateMaintenanceOrder applies a status or assignment change
func (h *Handler) UpdateMaintenanceOrder(w http.ResponseWriter, r *http.Request) {
	var patch database.MaintenanceOrderPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	o, err := h.store.UpdateMaintenanceOrder(mux.Vars(r)["id"], patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("maintenance_order")
	respondJSON(w, http.StatusOK, o)
}

// ListSpareParts returns the inventory; lowStock=true keeps only parts at or below minimum
func (h *Handler) ListSpareParts(w http.ResponseWriter, r *http.Request) {
	lowOnly, _ := strconv.ParseBool(r.URL.Query().Get("lowStock"))
	parts := h.store.ListSpareParts(lowOnly)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  parts,
		"count": len(parts),
	})
}

// CreateSparePart adds a part to the inventory
func (h *Handler) CreateSparePart(w http.ResponseWriter, r *http.Request) {
	var p database.SparePart
	if !decodeBody(w, r, &p) {
		return
	}
	saved, err := h.store.AppendSparePart(p)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("spare_part")
	respondJSON(w, http.StatusCreated, saved)
}

// UpdateSparePart edits stock or location of a part
func (h *Handler) UpdateSparePart(w http.ResponseWriter, r *http.Request) {
	var patch database.SparePartPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	p, err := h.store.UpdateSparePart(mux.Vars(r)["id"], patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.recordMutation("spare_part")
	respondJSON(w, http.StatusOK, p)
}
