package models

import (
	"errors"
	"time"
)

// Run records one execution of the analysis.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Dataset      string    `json:"dataset"`
	ChartPath    string    `json:"chart_path"`
	N            int       `json:"n"`
	Clusters     int       `json:"clusters"`
	Regressors   int       `json:"regressors"`
	Dropped      []string  `json:"dropped,omitempty"` // zero-variance and collinear columns
	PlottedCount int       `json:"plotted_count"`
}

// Validate checks that all run fields are valid
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.Dataset == "" {
		return errors.New("dataset must not be empty")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started at must be set")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return errors.New("finished at must be >= started at")
	}
	if r.N < 1 {
		return errors.New("N must be at least 1")
	}
	if r.Regressors < 1 {
		return errors.New("regressors must be at least 1")
	}
	if r.Clusters < 1 {
		return errors.New("clusters must be at least 1")
	}
	if r.PlottedCount < 0 {
		return errors.New("plotted count must not be negative")
	}
	return nil
}
