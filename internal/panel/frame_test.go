package panel

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/kshedden/datareader"
)

func TestFrameAddAndLookup(t *testing.T) {
	f := NewFrame()
	if err := f.AddColumn("Measles", []float64{1, 2, 3}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	if err := f.AddColumn("statefip", []float64{1, 1, 2}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}

	if f.Rows() != 3 {
		t.Errorf("Expected 3 rows, got %d", f.Rows())
	}
	col, err := f.Column("statefip")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if col[2] != 2 {
		t.Errorf("Expected 2, got %v", col[2])
	}

	_, err = f.Column("population")
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}

	err = f.AddColumn("short", []float64{1})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestFrameReplaceKeepsOrder(t *testing.T) {
	f := NewFrame()
	_ = f.AddColumn("a", []float64{1})
	_ = f.AddColumn("b", []float64{2})
	_ = f.AddColumn("a", []float64{3})

	names := f.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Unexpected names %v", names)
	}
	col, _ := f.Column("a")
	if col[0] != 3 {
		t.Errorf("Expected replaced value 3, got %v", col[0])
	}
}

func TestColumnsWithPrefix(t *testing.T) {
	f := NewFrame()
	for _, name := range []string{"_Istatefip_2", "_Texp_1", "_Istatefip_5", "_Texp_2", "population"} {
		_ = f.AddColumn(name, []float64{0})
	}

	got := f.ColumnsWithPrefix("_Istatefip_")
	if len(got) != 2 || got[0] != "_Istatefip_2" || got[1] != "_Istatefip_5" {
		t.Errorf("Unexpected state columns %v", got)
	}
	if got := f.ColumnsWithPrefix("_Z"); len(got) != 0 {
		t.Errorf("Expected no matches, got %v", got)
	}
}

func TestCompleteRows(t *testing.T) {
	nan := math.NaN()
	f := NewFrame()
	_ = f.AddColumn("y", []float64{1, nan, 3, 4})
	_ = f.AddColumn("x", []float64{1, 2, nan, 4})
	_ = f.AddColumn("z", []float64{nan, nan, nan, nan})

	rows, err := f.CompleteRows([]string{"y", "x"})
	if err != nil {
		t.Fatalf("CompleteRows failed: %v", err)
	}
	if len(rows) != 2 || rows[0] != 0 || rows[1] != 3 {
		t.Errorf("Expected rows [0 3], got %v", rows)
	}

	if _, err := f.CompleteRows([]string{"missing"}); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}
}

func TestFromSeries(t *testing.T) {
	measles, err := datareader.NewSeries("Measles", []float64{0.5, 1.5, 2.5}, []bool{false, true, false})
	if err != nil {
		t.Fatal(err)
	}
	state, err := datareader.NewSeries("statefip", []int16{1, 1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	name, err := datareader.NewSeries("statename", []string{"AL", "AL", "AK"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	frame, skipped, err := FromSeries([]*datareader.Series{measles, state, name})
	if err != nil {
		t.Fatalf("FromSeries failed: %v", err)
	}

	if len(skipped) != 1 || skipped[0] != "statename" {
		t.Errorf("Expected statename to be skipped, got %v", skipped)
	}
	y, _ := frame.Column("Measles")
	if !math.IsNaN(y[1]) {
		t.Errorf("Expected missing value to become NaN, got %v", y[1])
	}
	s, _ := frame.Column("statefip")
	if s[2] != 2 {
		t.Errorf("Expected int16 column converted, got %v", s)
	}
}

func TestLoadStataMissingFile(t *testing.T) {
	_, err := LoadStata(filepath.Join(t.TempDir(), "nope.dta"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}
