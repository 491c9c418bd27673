package api

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"oee-dashboard/analysis"
	"oee-dashboard/charting"
)

// dashboardForCharts computes the dashboard named by the request query
func (h *Handler) dashboardForCharts(w http.ResponseWriter, r *http.Request) (*analysis.DashboardResult, bool) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		respondStoreError(w, err)
		return nil, false
	}
	res, err := h.analyzer.GetDashboardData(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return nil, false
	}
	return res, true
}

func paretoFor(res *analysis.DashboardResult, kind string) ([]analysis.ParetoEntry, string, bool) {
	switch kind {
	case "defects":
		return res.Quality.DefectPareto, "Defects by type", true
	case "causes":
		return res.Quality.CausePareto, "Defects by cause", true
	case "downtime":
		return res.Downtime.Pareto, "Downtime by reason", true
	}
	return nil, "", false
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func respondChartError(w http.ResponseWriter, err error) {
	if errors.Is(err, charting.ErrNoData) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, fmt.Sprintf("chart rendering failed: %v", err))
}

// TrendChart renders the trailing OEE trend as PNG
func (h *Handler) TrendChart(w http.ResponseWriter, r *http.Request) {
	res, ok := h.dashboardForCharts(w, r)
	if !ok {
		return
	}
	img, err := charting.NewGenerator().TrendPNG(res.Performance.Trend)
	if err != nil {
		respondChartError(w, err)
		return
	}
	writeImage(w, "image/png", img)
}

// ParetoChart renders one of the defects, causes or downtime Pareto tables as PNG
func (h *Handler) ParetoChart(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	res, ok := h.dashboardForCharts(w, r)
	if !ok {
		return
	}
	entries, title, known := paretoFor(res, kind)
	if !known {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown pareto chart %q", kind))
		return
	}
	img, err := charting.NewGenerator().ParetoPNG(title, entries)
	if err != nil {
		respondChartError(w, err)
		return
	}
	writeImage(w, "image/png", img)
}

// HeatmapChart renders the line x shift OEE heatmap as SVG
func (h *Handler) HeatmapChart(w http.ResponseWriter, r *http.Request) {
	res, ok := h.dashboardForCharts(w, r)
	if !ok {
		return
	}
	img, err := charting.NewGenerator().HeatmapSVG(res.Performance.Heatmap)
	if err != nil {
		respondChartError(w, err)
		return
	}
	writeImage(w, "image/svg+xml", img)
}

// ExportCharts zips every chart that has data for the filter
func (h *Handler) ExportCharts(w http.ResponseWriter, r *http.Request) {
	res, ok := h.dashboardForCharts(w, r)
	if !ok {
		return
	}

	gen := charting.NewGenerator()
	zipBuf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(zipBuf)
	added := 0

	addFile := func(name string, data []byte, err error) {
		if err != nil {
			h.logger.Debug("chart skipped", zap.String("chart", name), zap.Error(err))
			return
		}
		f, err := zipWriter.Create(name)
		if err != nil {
			h.logger.Warn("zip create failed", zap.String("chart", name), zap.Error(err))
			return
		}
		f.Write(data)
		added++
	}

	img, err := gen.TrendPNG(res.Performance.Trend)
	addFile("oee_trend.png", img, err)
	img, err = gen.HeatmapSVG(res.Performance.Heatmap)
	addFile("oee_heatmap.svg", img, err)
	for _, kind := range []string{"defects", "causes", "downtime"} {
		entries, title, _ := paretoFor(res, kind)
		img, err = gen.ParetoPNG(title, entries)
		addFile("pareto_"+kind+".png", img, err)
	}

	if err := zipWriter.Close(); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build archive: %v", err))
		return
	}
	if added == 0 {
		respondError(w, http.StatusNotFound, "No data available for charting")
		return
	}

	filename := fmt.Sprintf("oee_charts_%s_%s.zip", res.Filter.Area, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(zipBuf.Len()))
	w.Write(zipBuf.Bytes())
}
