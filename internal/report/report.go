// Package report renders diagnostic views of an occupancy map: a
// horizontal slice of occupancy probabilities as an ECharts scatter, and
// a log-odds histogram as a PNG. Views serve over HTTP and write to
// files.
package report

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occgrid/internal/occmap"
)

// viridis colour stops, dark-to-light.
var viridisColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// Reporter renders views of one map. The map must not be written while a
// render is in flight.
type Reporter struct {
	m *occmap.Map
}

// New returns a reporter bound to m.
func New(m *occmap.Map) *Reporter { return &Reporter{m: m} }

// slicePoints collects (x, y, probability) for every observed voxel whose
// centre lies within half a voxel of the slice height z.
func (r *Reporter) slicePoints(z float64) []opts.ScatterData {
	half := r.m.Resolution() / 2
	var data []opts.ScatterData
	r.m.ForEachChunk(func(c *occmap.Chunk) bool {
		r.forEachObservedInChunk(c, func(v occmap.Voxel) {
			centre := v.CentreGlobal()
			if centre.Z < z-half || centre.Z >= z+half {
				return
			}
			data = append(data, opts.ScatterData{
				Value: []interface{}{centre.X, centre.Y, v.Probability()},
			})
		})
		return true
	})
	return data
}

// forEachObservedInChunk visits observed voxels of one chunk.
func (r *Reporter) forEachObservedInChunk(c *occmap.Chunk, fn func(occmap.Voxel)) {
	layout := r.m.Layout()
	dims := layout.RegionVoxelDims()
	voxels := layout.RegionVoxelCount()
	for vi := 0; vi < voxels; vi++ {
		k := keyFromIndex(c.Region(), uint32(vi), dims)
		v, err := r.m.Voxel(k, false)
		if err != nil || !v.Valid() || v.IsUnobserved() {
			continue
		}
		fn(v)
	}
}

func keyFromIndex(region occmap.RegionKey, vi uint32, dims [3]int32) occmap.Key {
	plane := uint32(dims[0]) * uint32(dims[1])
	z := vi / plane
	rem := vi - z*plane
	y := rem / uint32(dims[0])
	x := rem - y*uint32(dims[0])
	return occmap.Key{Region: region, Local: [3]uint8{uint8(x), uint8(y), uint8(z)}}
}

// renderSliceChart builds the slice scatter chart for height z.
func (r *Reporter) renderSliceChart(z float64) (*charts.Scatter, int) {
	data := r.slicePoints(z)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Occupancy Slice", Theme: "dark", Width: "900px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Occupancy Slice",
			Subtitle: fmt.Sprintf("z=%.2fm points=%d resolution=%.3fm", z, len(data), r.m.Resolution()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("occupancy", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter, len(data)
}

// SliceChartHandler serves the slice chart as HTML. The slice height is
// taken from the "z" query parameter, defaulting to zero.
func (r *Reporter) SliceChartHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		z := 0.0
		if raw := req.URL.Query().Get("z"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				http.Error(w, fmt.Sprintf("bad z parameter: %v", err), http.StatusBadRequest)
				return
			}
			z = v
		}
		chart, _ := r.renderSliceChart(z)
		var buf bytes.Buffer
		if err := chart.Render(&buf); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

// WriteSliceChart writes the slice chart for height z to path as HTML and
// returns the number of points plotted.
func (r *Reporter) WriteSliceChart(path string, z float64) (int, error) {
	chart, n := r.renderSliceChart(z)
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create slice chart: %w", err)
	}
	defer f.Close()
	if err := chart.Render(f); err != nil {
		return 0, fmt.Errorf("render slice chart: %w", err)
	}
	return n, nil
}

// occupancyValues collects the log-odds value of every observed voxel.
func (r *Reporter) occupancyValues() plotter.Values {
	var vals plotter.Values
	r.m.ForEachChunk(func(c *occmap.Chunk) bool {
		r.forEachObservedInChunk(c, func(v occmap.Voxel) {
			vals = append(vals, float64(v.Value()))
		})
		return true
	})
	return vals
}

// renderHistogram builds the log-odds histogram plot.
func (r *Reporter) renderHistogram() (*plot.Plot, error) {
	vals := r.occupancyValues()
	if len(vals) == 0 {
		return nil, fmt.Errorf("report: map has no observed voxels")
	}
	p := plot.New()
	p.Title.Text = "Occupancy Log-Odds"
	p.X.Label.Text = "log-odds"
	p.Y.Label.Text = "voxels"
	h, err := plotter.NewHist(vals, 32)
	if err != nil {
		return nil, fmt.Errorf("build histogram: %w", err)
	}
	p.Add(h)
	return p, nil
}

// HistogramHandler serves the log-odds histogram as a PNG.
func (r *Reporter) HistogramHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p, err := r.renderHistogram()
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to render histogram: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if _, err := wt.WriteTo(w); err != nil && err != io.EOF {
			return
		}
	})
}

// WriteHistogram writes the log-odds histogram to path as a PNG.
func (r *Reporter) WriteHistogram(path string) error {
	p, err := r.renderHistogram()
	if err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}
