package charting

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"oee-dashboard/analysis"
)

// ErrNoData is returned when a chart has nothing to draw
var ErrNoData = errors.New("not enough data to render chart")

// Generator handles chart image creation
type Generator struct {
	Width  int
	Height int
}

func NewGenerator() *Generator {
	return &Generator{Width: 800, Height: 400}
}

var trendColors = map[string]drawing.Color{
	"OEE":          drawing.ColorFromHex("e74c3c"),
	"Availability": drawing.ColorFromHex("3498db"),
	"Performance":  drawing.ColorFromHex("2ecc71"),
	"Quality":      drawing.ColorFromHex("f39c12"),
}

// TrendPNG renders the daily OEE, availability, performance and quality lines.
// At least two points are needed to span the time axis.
func (g *Generator) TrendPNG(points []analysis.TrendPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: trend needs at least 2 days, got %d", ErrNoData, len(points))
	}

	names := []string{"OEE", "Availability", "Performance", "Quality"}
	pick := map[string]func(p analysis.TrendPoint) float64{
		"OEE":          func(p analysis.TrendPoint) float64 { return p.OEE },
		"Availability": func(p analysis.TrendPoint) float64 { return p.Availability },
		"Performance":  func(p analysis.TrendPoint) float64 { return p.Performance },
		"Quality":      func(p analysis.TrendPoint) float64 { return p.Quality },
	}

	maxVal := 1.0
	series := make([]chart.Series, 0, len(names))
	for _, name := range names {
		s := chart.TimeSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: trendColors[name],
				StrokeWidth: 2,
			},
		}
		for _, p := range points {
			v := pick[name](p)
			s.XValues = append(s.XValues, p.Date)
			s.YValues = append(s.YValues, v)
			if v > maxVal {
				maxVal = v
			}
		}
		series = append(series, s)
	}

	graph := chart.Chart{
		Width:  g.Width,
		Height: g.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:  "Ratio",
			Range: &chart.ContinuousRange{Min: 0, Max: maxVal},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render trend chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// ParetoPNG renders a Pareto table as bars in ranked order
func (g *Generator) ParetoPNG(title string, entries []analysis.ParetoEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty pareto table", ErrNoData)
	}

	const barWidth, barSpacing = 40, 20
	width := g.Width
	if need := len(entries)*(barWidth+barSpacing) + 120; need > width {
		width = need
	}

	maxVal := 1.0
	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		bars = append(bars, chart.Value{
			Label: e.Name,
			Value: e.Value,
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("3498db"),
				StrokeColor: drawing.ColorFromHex("2980b9"),
				StrokeWidth: 1,
			},
		})
		if e.Value > maxVal {
			maxVal = e.Value
		}
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     g.Height,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxVal},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render pareto chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// HeatmapSVG draws the line x shift OEE grid.
// go-chart has no heatmap, so the grid is written as plain SVG.
func (g *Generator) HeatmapSVG(cells []analysis.HeatmapCell) ([]byte, error) {
	lines, shifts := []string{}, []string{}
	seenLine, seenShift := map[string]int{}, map[string]int{}
	for _, c := range cells {
		if _, ok := seenLine[c.Line]; !ok {
			seenLine[c.Line] = len(lines)
			lines = append(lines, c.Line)
		}
		if _, ok := seenShift[c.Shift]; !ok {
			seenShift[c.Shift] = len(shifts)
			shifts = append(shifts, c.Shift)
		}
	}
	if len(lines) == 0 || len(shifts) == 0 {
		return nil, fmt.Errorf("%w: empty heatmap", ErrNoData)
	}

	const cellW, cellH, labelW, labelH = 90, 40, 80, 30
	width := labelW + len(shifts)*cellW + 10
	height := labelH + len(lines)*cellH + 10

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("<svg width=\"%d\" height=\"%d\" xmlns=\"http://www.w3.org/2000/svg\" font-family=\"sans-serif\" font-size=\"12\">", width, height))
	buf.WriteString("<rect width=\"100%\" height=\"100%\" fill=\"white\"/>")

	for i, sh := range shifts {
		x := labelW + i*cellW + cellW/2
		buf.WriteString(fmt.Sprintf("<text x=\"%d\" y=\"%d\" text-anchor=\"middle\">Shift %s</text>", x, labelH-10, html.EscapeString(sh)))
	}
	for i, l := range lines {
		y := labelH + i*cellH + cellH/2 + 4
		buf.WriteString(fmt.Sprintf("<text x=\"%d\" y=\"%d\" text-anchor=\"end\">%s</text>", labelW-8, y, html.EscapeString(l)))
	}

	for _, c := range cells {
		x := labelW + seenShift[c.Shift]*cellW
		y := labelH + seenLine[c.Line]*cellH
		buf.WriteString(fmt.Sprintf("<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"%s\" stroke=\"#eee\"/>", x, y, cellW, cellH, oeeColor(c)))
		buf.WriteString(fmt.Sprintf("<text x=\"%d\" y=\"%d\" text-anchor=\"middle\">%.1f%%</text>", x+cellW/2, y+cellH/2+4, c.Value*100))
	}

	buf.WriteString("</svg>")
	return buf.Bytes(), nil
}

// oeeColor shades red (0) through green (>= 1); empty cells are grey
func oeeColor(c analysis.HeatmapCell) string {
	if c.Count == 0 {
		return "rgb(236,240,241)"
	}
	v := c.Value
	if v > 1 {
		v = 1
	}
	r := int(231 * (1 - v))
	gr := int(76 + (204-76)*v)
	return fmt.Sprintf("rgb(%d,%d,60)", r, gr)
}

// SaveFile writes a rendered chart under outputDir and returns its path
func SaveFile(data []byte, filename, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dir: %w", err)
	}
	fullPath := filepath.Join(outputDir, filename)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", fullPath, err)
	}
	return fullPath, nil
}
