// Package models defines the result entities of an event-study run.
// Estimates come out of the regression, event effects are estimates aligned to
// event time, and a Run ties them to one execution of the analysis.
// All models include built-in validation so stores and exporters can reject
// malformed rows before writing them.
package models

import (
	"errors"
	"math"
)

// Estimate is one fitted regression coefficient with its inference.
// PValue is NaN when undefined, e.g. for the omitted reference period.
type Estimate struct {
	Var     string  `json:"var"`
	Coef    float64 `json:"coef"`
	StdErr  float64 `json:"stderr"`
	PValue  float64 `json:"pval"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
	N       int     `json:"n"`
}

// Validate checks that all estimate fields are valid
func (e *Estimate) Validate() error {
	if e.Var == "" {
		return errors.New("estimate var must not be empty")
	}
	if math.IsNaN(e.Coef) || math.IsInf(e.Coef, 0) {
		return errors.New("coefficient must be finite")
	}
	if e.StdErr < 0 {
		return errors.New("standard error must not be negative")
	}
	if !math.IsNaN(e.PValue) && (e.PValue < 0.0 || e.PValue > 1.0) {
		return errors.New("p-value must be between 0.0 and 1.0")
	}
	if e.CILower > e.CIUpper {
		return errors.New("ci lower must be <= ci upper")
	}
	if e.N < 0 {
		return errors.New("N must not be negative")
	}
	return nil
}

// IsReference reports whether e is a synthetic zero-effect row.
func (e *Estimate) IsReference() bool {
	return e.Coef == 0 && e.StdErr == 0 && e.CILower == 0 && e.CIUpper == 0 && math.IsNaN(e.PValue)
}

// ReferenceEstimate builds the fixed row for the omitted period: coefficient 0,
// stderr 0, undefined p-value and a zero-width interval.
func ReferenceEstimate(name string, n int) Estimate {
	return Estimate{
		Var:     name,
		Coef:    0,
		StdErr:  0,
		PValue:  math.NaN(),
		CILower: 0,
		CIUpper: 0,
		N:       n,
	}
}

// EventEffect is an interaction estimate placed at its event time
// (years relative to vaccine availability).
type EventEffect struct {
	Estimate
	EventTime int `json:"exp"`
}
