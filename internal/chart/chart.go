// Package chart draws the event-study figure: the coefficient path, its
// confidence band as two dashed lines, and reference lines at zero effect and
// at the last pre-treatment year. Axis ranges and ticks come from the Style and
// are never derived from the data.
package chart

import (
	"fmt"
	"image/color"
	"os"
	"strconv"

	"github.com/pkg/browser"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/models"
)

// Style fixes everything about the figure except the plotted values.
type Style struct {
	Title     string
	XLabel    string
	YLabel    string
	XMin      float64
	XMax      float64
	YMin      float64
	YMax      float64
	XTicks    []float64
	YTicks    []float64
	Width     vg.Length
	Height    vg.Length
	DPI       int
	FontSize  vg.Length
	TickSize  vg.Length
	RefEvent  float64 // vertical reference line, the omitted period
	CoefWidth vg.Length
	BandWidth vg.Length
}

var (
	gray  = color.Gray{Y: 128}
	black = color.Black
)

const titlePad = vg.Length(10) // points

// DefaultStyle matches the published figure.
func DefaultStyle() Style {
	return Style{
		Title:     "Measles rate by year (per 100,000)",
		XLabel:    "Years relative to measles vaccine availability",
		YLabel:    "Measles rate by year (per 100,000)",
		XMin:      -5,
		XMax:      10,
		YMin:      -1.5,
		YMax:      1,
		XTicks:    []float64{-5, 0, 5, 10},
		YTicks:    []float64{-1.5, -1, -0.5, 0, 0.5, 1},
		Width:     10 * vg.Inch,
		Height:    6 * vg.Inch,
		DPI:       300,
		FontSize:  vg.Points(10),
		TickSize:  vg.Points(9),
		RefEvent:  -1,
		CoefWidth: vg.Points(2.5),
		BandWidth: vg.Points(1.5),
	}
}

// Build assembles the plot without writing it anywhere. The title is not set
// on the plot; Render draws it left aligned above the plotting area.
func Build(effects []models.EventEffect, st Style) (*plot.Plot, error) {
	if len(effects) == 0 {
		return nil, fmt.Errorf("no effects to plot")
	}

	coef := make(plotter.XYs, len(effects))
	lower := make(plotter.XYs, len(effects))
	upper := make(plotter.XYs, len(effects))
	for i, e := range effects {
		x := float64(e.EventTime)
		coef[i] = plotter.XY{X: x, Y: e.Coef}
		lower[i] = plotter.XY{X: x, Y: e.CILower}
		upper[i] = plotter.XY{X: x, Y: e.CIUpper}
	}

	p := plot.New()
	p.BackgroundColor = color.White

	p.Title.TextStyle.Font.Size = st.FontSize
	p.X.Label.Text = st.XLabel
	p.X.Label.TextStyle.Font.Size = st.FontSize
	p.Y.Label.Text = st.YLabel
	p.Y.Label.TextStyle.Font.Size = st.FontSize
	p.X.Tick.Label.Font.Size = st.TickSize
	p.Y.Tick.Label.Font.Size = st.TickSize

	p.X.Min, p.X.Max = st.XMin, st.XMax
	p.Y.Min, p.Y.Max = st.YMin, st.YMax
	p.X.Tick.Marker = fixedTicks(st.XTicks)
	p.Y.Tick.Marker = fixedTicks(st.YTicks)

	zero, err := plotter.NewLine(plotter.XYs{{X: st.XMin, Y: 0}, {X: st.XMax, Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("zero line: %w", err)
	}
	zero.LineStyle.Color = black
	zero.LineStyle.Width = vg.Points(1)

	ref, err := plotter.NewLine(plotter.XYs{{X: st.RefEvent, Y: st.YMin}, {X: st.RefEvent, Y: st.YMax}})
	if err != nil {
		return nil, fmt.Errorf("reference line: %w", err)
	}
	ref.LineStyle.Color = black
	ref.LineStyle.Width = vg.Points(1)

	lo, err := plotter.NewLine(lower)
	if err != nil {
		return nil, fmt.Errorf("ci lower: %w", err)
	}
	hi, err := plotter.NewLine(upper)
	if err != nil {
		return nil, fmt.Errorf("ci upper: %w", err)
	}
	for _, l := range []*plotter.Line{lo, hi} {
		l.LineStyle.Color = gray
		l.LineStyle.Width = st.BandWidth
		l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	}

	path, err := plotter.NewLine(coef)
	if err != nil {
		return nil, fmt.Errorf("coefficient line: %w", err)
	}
	path.LineStyle.Color = gray
	path.LineStyle.Width = st.CoefWidth

	// Later additions draw on top.
	p.Add(zero, ref, lo, hi, path)

	return p, nil
}

// Render draws the figure and writes it as PNG to path, replacing any existing file.
func Render(effects []models.EventEffect, st Style, path string) error {
	p, err := Build(effects, st)
	if err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(st.Width, st.Height),
		vgimg.UseDPI(st.DPI),
		vgimg.UseBackgroundColor(color.White),
	)
	dc := draw.New(c)
	body := dc
	if st.Title != "" {
		sty := p.Title.TextStyle
		sty.XAlign = draw.XLeft
		sty.YAlign = draw.YTop
		dc.FillText(sty, vg.Point{X: dc.Min.X + titlePad, Y: dc.Max.Y - titlePad}, st.Title)
		body = draw.Crop(dc, 0, 0, 0, -(sty.Height(st.Title) + 2*titlePad))
	}
	p.Draw(body)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close chart file: %w", err)
	}

	logger.Debug("Chart written to %s (%d points)", path, len(effects))
	return nil
}

// Display opens the written chart in the system viewer.
func Display(path string) error {
	return browser.OpenFile(path)
}

type fixedTicks []float64

// Ticks implements plot.Ticker. The axis range is not consulted.
func (t fixedTicks) Ticks(_, _ float64) []plot.Tick {
	out := make([]plot.Tick, len(t))
	for i, v := range t {
		out[i] = plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return out
}
