package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"oee-dashboard/analysis"
)

// StreamResult represents a single line in the NDJSON stream
type StreamResult struct {
	Area   string                    `json:"area"`
	Result *analysis.DashboardResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
	Code   string                    `json:"code,omitempty"`
}

type streamRequest struct {
	filterBody
	Areas []string `json:"areas"`
}

const maxStreamWorkers = 4

// DashboardStream computes one dashboard per requested area and streams each as
// an NDJSON line as soon as it is ready. An empty areas list means every configured area.
func (h *Handler) DashboardStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	base, err := req.toFilter()
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if _, err := base.Normalize(); err != nil {
		respondStoreError(w, err)
		return
	}

	areas := req.Areas
	if len(areas) == 0 {
		if h.cfg.AreaManager != nil {
			areas = h.cfg.AreaManager.Names()
		}
		areas = append(areas, analysis.AllToken)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	numWorkers := maxStreamWorkers
	if len(areas) < numWorkers {
		numWorkers = len(areas)
	}

	ctx := r.Context()
	work := make(chan string, len(areas))
	results := make(chan StreamResult, len(areas))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for area := range work {
				f := base
				f.Area = area
				res, err := h.analyzer.GetDashboardData(ctx, f)
				if err != nil {
					_, code := classifyError(err)
					results <- StreamResult{Area: area, Error: err.Error(), Code: code}
					continue
				}
				results <- StreamResult{Area: area, Result: res}
			}
		}()
	}

	for _, a := range areas {
		work <- a
	}
	close(work)
	go func() {
		wg.Wait()
		close(results)
	}()

	encoder := json.NewEncoder(w)
	for res := range results {
		if err := encoder.Encode(res); err != nil {
			h.logger.Debug("stream encode failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}
