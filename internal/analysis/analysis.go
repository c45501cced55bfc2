// Package analysis runs the measles event study end to end.
//
// A run loads the panel, builds the interaction regressors, selects the
// estimation sample, fits OLS with state-clustered errors, extracts the
// event-time path and renders the chart. The chart is the required artefact;
// the spreadsheet export, run history and Telegram notification that follow
// it are optional and only log a warning when they fail.
package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/plot/vg"

	"github.com/rewired-gh/eventstudy/internal/chart"
	"github.com/rewired-gh/eventstudy/internal/config"
	"github.com/rewired-gh/eventstudy/internal/eventstudy"
	"github.com/rewired-gh/eventstudy/internal/exporter"
	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/models"
	"github.com/rewired-gh/eventstudy/internal/ols"
	"github.com/rewired-gh/eventstudy/internal/panel"
)

// Loader reads the panel dataset at path.
type Loader func(path string) (*panel.Frame, error)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(run *models.Run, effects []models.EventEffect) error
}

// Notifier delivers a finished run to a chat.
type Notifier interface {
	SendSummary(run *models.Run, effects []models.EventEffect) error
	SendChart(path, caption string) error
}

// Analysis holds the configuration and the collaborators of a run.
type Analysis struct {
	cfg      *config.Config
	load     Loader
	display  func(path string) error
	store    RunStore
	notifier Notifier
	out      io.Writer
}

// Option customises an Analysis.
type Option func(*Analysis)

// WithLoader replaces the Stata loader, e.g. with an in-memory frame.
func WithLoader(l Loader) Option {
	return func(a *Analysis) { a.load = l }
}

// WithDisplay replaces the function that opens the written chart.
func WithDisplay(fn func(path string) error) Option {
	return func(a *Analysis) { a.display = fn }
}

// WithStore records every successful run.
func WithStore(s RunStore) Option {
	return func(a *Analysis) { a.store = s }
}

// WithNotifier sends every successful run to a chat.
func WithNotifier(n Notifier) Option {
	return func(a *Analysis) { a.notifier = n }
}

// WithOutput redirects the console lines (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(a *Analysis) { a.out = w }
}

// New creates an Analysis. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) *Analysis {
	a := &Analysis{
		cfg:     cfg,
		load:    panel.LoadStata,
		display: chart.Display,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of a run.
type Result struct {
	Run     *models.Run
	Fit     *ols.Result
	Effects []models.EventEffect // every interaction plus the reference, by event time
	Plotted []models.EventEffect // the subset drawn on the chart
}

// Layout returns the event-time layout the configuration describes.
func (a *Analysis) Layout() eventstudy.Layout {
	return eventstudy.Layout{
		Periods:           a.cfg.Study.Periods,
		Reference:         a.cfg.Study.ReferencePeriod,
		IndicatorPrefix:   a.cfg.Columns.IndicatorPrefix,
		InteractionPrefix: a.cfg.Columns.InteractionPrefix,
		Baseline:          a.cfg.Columns.Baseline,
	}
}

// Style returns the chart style the configuration describes.
func (a *Analysis) Style() chart.Style {
	p := a.cfg.Plot
	st := chart.DefaultStyle()
	st.Title = p.Title
	st.XLabel = p.XLabel
	st.YLabel = p.YLabel
	st.XMin, st.XMax = p.XMin, p.XMax
	st.YMin, st.YMax = p.YMin, p.YMax
	st.XTicks = p.XTicks
	st.YTicks = p.YTicks
	st.Width = vg.Length(p.WidthIn) * vg.Inch
	st.Height = vg.Length(p.HeightIn) * vg.Inch
	st.DPI = p.DPI
	st.RefEvent = float64(a.Layout().EventTime(a.cfg.Study.ReferencePeriod))
	return st
}

// Run executes the pipeline once. ctx is checked between stages.
func (a *Analysis) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	layout := a.Layout()
	dataPath := a.cfg.DataPath()

	logger.Info("Loading dataset %s", dataPath)
	frame, err := a.load(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	logger.Debug("Loaded %d rows, %d columns", frame.Rows(), len(frame.Names()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interactions, err := eventstudy.BuildInteractions(frame, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to build interactions: %w", err)
	}

	sel := eventstudy.Selection{
		Outcome:           a.cfg.Columns.Outcome,
		Cluster:           a.cfg.Columns.Cluster,
		Interactions:      interactions,
		StatePrefix:       a.cfg.Columns.StatePrefix,
		TimePrefix:        a.cfg.Columns.TimePrefix,
		Controls:          a.cfg.Columns.Controls,
		VarianceThreshold: a.cfg.Estimation.VarianceThreshold,
	}
	if a.cfg.Columns.IncludeBaseline {
		sel.Baseline = a.cfg.Columns.Baseline
	}
	design, dropped, err := eventstudy.SelectDesign(frame, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to select design: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fit, err := ols.Fit(design, ols.Options{
		ConfidenceLevel: a.cfg.Estimation.ConfidenceLevel,
		Inference:       ols.Inference(a.cfg.Estimation.Inference),
		DropCollinear:   a.cfg.Estimation.DropCollinear,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}
	logger.Info("Fitted %d regressors on %d rows in %d clusters", len(fit.Estimates), fit.N, fit.Clusters)
	if len(fit.Collinear) > 0 {
		logger.Warn("Dropped %d collinear regressors: %v", len(fit.Collinear), fit.Collinear)
		dropped = append(dropped, fit.Collinear...)
	}

	effects, err := eventstudy.ExtractEffects(fit, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to extract effects: %w", err)
	}
	plotted := eventstudy.PlotWindow(effects, a.cfg.Study.PlotMin, a.cfg.Study.PlotMax)

	fmt.Fprintf(a.out, "\nPlotting %d points\n", len(plotted))

	chartPath := a.cfg.ChartPath()
	if err := chart.Render(plotted, a.Style(), chartPath); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	fmt.Fprintf(a.out, "\nFigure saved as %s\n", chartPath)

	if a.cfg.Plot.Display && a.display != nil {
		if err := a.display(chartPath); err != nil {
			logger.Warn("Failed to open chart viewer: %v", err)
		}
	}

	run := &models.Run{
		ID:           uuid.New().String(),
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Dataset:      dataPath,
		ChartPath:    chartPath,
		N:            fit.N,
		Clusters:     fit.Clusters,
		Regressors:   len(fit.Estimates),
		Dropped:      dropped,
		PlottedCount: len(plotted),
	}

	a.publish(ctx, run, effects)

	return &Result{
		Run:     run,
		Fit:     fit,
		Effects: effects,
		Plotted: plotted,
	}, nil
}

// publish hands the run to the optional sinks. Failures are logged only.
func (a *Analysis) publish(ctx context.Context, run *models.Run, effects []models.EventEffect) {
	if path := a.cfg.Export.TablePath; path != "" {
		if err := exporter.WriteEffects(path, run, effects); err != nil {
			logger.Warn("Failed to export effects table: %v", err)
		} else {
			logger.Info("Effects table written to %s", path)
		}
	}

	if a.store != nil {
		if err := a.store.SaveRun(run, effects); err != nil {
			logger.Warn("Failed to save run %s: %v", run.ID, err)
		} else {
			logger.Debug("Run %s saved", run.ID)
		}
	}

	if a.notifier != nil && ctx.Err() == nil {
		if err := a.notifier.SendSummary(run, effects); err != nil {
			logger.Warn("Failed to send Telegram summary: %v", err)
			return
		}
		if err := a.notifier.SendChart(run.ChartPath, a.cfg.Plot.Title); err != nil {
			logger.Warn("Failed to send chart to Telegram: %v", err)
		}
	}
}
