package panel

import (
	"fmt"
	"math"
	"os"

	"github.com/kshedden/datareader"

	"github.com/rewired-gh/eventstudy/internal/logger"
)

// LoadStata reads every row of a Stata dta file into a Frame.
// Non-numeric columns (strings, dates) are skipped; the study only uses numeric ones.
func LoadStata(path string) (*Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer fid.Close()

	rdr, err := datareader.NewStataReader(fid)
	if err != nil {
		return nil, fmt.Errorf("failed to read stata header: %w", err)
	}

	series, err := rdr.Read(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read stata data: %w", err)
	}

	frame, skipped, err := FromSeries(series)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		logger.Debug("Skipped %d non-numeric columns: %v", len(skipped), skipped)
	}
	logger.Info("Loaded %s: %d rows, %d numeric columns", path, frame.Rows(), len(frame.Names()))

	return frame, nil
}

// FromSeries converts datareader columns into a Frame. It returns the names of
// columns that were skipped because they are not numeric.
func FromSeries(series []*datareader.Series) (*Frame, []string, error) {
	frame := NewFrame()
	var skipped []string

	for _, s := range series {
		values, ok := toFloat64(s.Data())
		if !ok {
			skipped = append(skipped, s.Name)
			continue
		}
		if missing := s.Missing(); missing != nil {
			for i, m := range missing {
				if m && i < len(values) {
					values[i] = math.NaN()
				}
			}
		}
		if err := frame.AddColumn(s.Name, values); err != nil {
			return nil, nil, err
		}
	}

	return frame, skipped, nil
}

// toFloat64 copies any numeric slice type the Stata reader produces.
func toFloat64(data interface{}) ([]float64, bool) {
	switch x := data.(type) {
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out, true
	case []float32:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	case []int64:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	case []int32:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	case []int16:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	case []int8:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	case []uint8:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, true
	default:
		return nil, false
	}
}
