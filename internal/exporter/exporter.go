// Package exporter writes event-study results to an Excel workbook.
package exporter

import (
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/eventstudy/internal/models"
)

// Sheet names in the exported workbook.
const (
	EffectsSheet = "effects"
	RunSheet     = "run"
)

// EffectsHeader is the first row of the effects sheet.
var EffectsHeader = []string{"var", "exp", "coef", "stderr", "pval", "ci_lower", "ci_upper", "N"}

// WriteEffects saves effects, one row per event time, and the run metadata to
// path. An undefined p-value is written as an empty cell.
func WriteEffects(path string, run *models.Run, effects []models.EventEffect) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), EffectsSheet); err != nil {
		return fmt.Errorf("failed to name effects sheet: %w", err)
	}

	if err := setRow(f, EffectsSheet, 1, toAny(EffectsHeader)); err != nil {
		return err
	}
	for i, e := range effects {
		var pval any = e.PValue
		if math.IsNaN(e.PValue) {
			pval = ""
		}
		row := []any{e.Var, e.EventTime, e.Coef, e.StdErr, pval, e.CILower, e.CIUpper, e.N}
		if err := setRow(f, EffectsSheet, i+2, row); err != nil {
			return err
		}
	}

	if run != nil {
		if _, err := f.NewSheet(RunSheet); err != nil {
			return fmt.Errorf("failed to create run sheet: %w", err)
		}
		meta := [][]any{
			{"id", run.ID},
			{"dataset", run.Dataset},
			{"started_at", run.StartedAt.UTC().Format(time.RFC3339)},
			{"finished_at", run.FinishedAt.UTC().Format(time.RFC3339)},
			{"n", run.N},
			{"clusters", run.Clusters},
			{"regressors", run.Regressors},
			{"plotted", run.PlottedCount},
			{"chart", run.ChartPath},
		}
		for i, row := range meta {
			if err := setRow(f, RunSheet, i+1, row); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
