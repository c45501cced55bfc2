package chart

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/rewired-gh/eventstudy/internal/models"
)

func samplePath() []models.EventEffect {
	var out []models.EventEffect
	for et := -5; et <= 10; et++ {
		coef := 0.0
		if et >= 0 {
			coef = -0.4
		}
		e := models.EventEffect{
			Estimate: models.Estimate{
				Var:     fmt.Sprintf("exp_Mpre_%d", et+7),
				Coef:    coef,
				StdErr:  0.1,
				PValue:  0.5,
				CILower: coef - 0.2,
				CIUpper: coef + 0.2,
			},
			EventTime: et,
		}
		if et == -1 {
			e.Estimate = models.ReferenceEstimate("exp_Mpre_6", 10)
		}
		out = append(out, e)
	}
	return out
}

func TestBuildUsesFixedAxes(t *testing.T) {
	st := DefaultStyle()
	p, err := Build(samplePath(), st)
	require.NoError(t, err)

	assert.Equal(t, -5.0, p.X.Min)
	assert.Equal(t, 10.0, p.X.Max)
	assert.Equal(t, -1.5, p.Y.Min)
	assert.Equal(t, 1.0, p.Y.Max)

	ticks := p.Y.Tick.Marker.Ticks(p.Y.Min, p.Y.Max)
	require.Len(t, ticks, 6)
	assert.Equal(t, "-1.5", ticks[0].Label)
	assert.Equal(t, "0.5", ticks[4].Label)

	xt := p.X.Tick.Marker.Ticks(-100, 100)
	require.Len(t, xt, 4)
	assert.Equal(t, 10.0, xt[3].Value)
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(nil, DefaultStyle())
	assert.Error(t, err)
}

func TestRenderWritesPNG(t *testing.T) {
	st := DefaultStyle()
	st.Width = 2 * vg.Inch
	st.Height = 1 * vg.Inch
	st.DPI = 50

	path := filepath.Join(t.TempDir(), "Figure3.png")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, Render(samplePath(), st, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err, "existing file must be overwritten with a PNG")
	b := img.Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 50, b.Dy())
}

func TestRenderToMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "out.png")
	err := Render(samplePath(), DefaultStyle(), path)
	assert.Error(t, err)
}

func TestFixedTicksLabels(t *testing.T) {
	ticks := fixedTicks{-1.5, 0, 10}.Ticks(0, 1)
	assert.Equal(t, "-1.5", ticks[0].Label)
	assert.Equal(t, "0", ticks[1].Label)
	assert.Equal(t, "10", ticks[2].Label)
}
