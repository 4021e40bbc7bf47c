package alfred

import (
	"archive/zip"
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/internal/domain/models"
	"FinDS/pkg/util"
)

func revisions() []models.Observation {
	return []models.Observation{
		{Date: "2020-01-01", RealtimeStart: "2020-02-01", RealtimeEnd: "2020-02-29", Value: "1.0"},
		{Date: "2020-01-01", RealtimeStart: "2020-03-01", RealtimeEnd: "2020-03-31", Value: "1.1"},
		{Date: "2020-01-01", RealtimeStart: "2020-04-01", RealtimeEnd: "9999-12-31", Value: "1.2"},
		{Date: "2020-02-01", RealtimeStart: "2020-03-01", RealtimeEnd: "2020-03-31", Value: "2.0"},
		{Date: "2020-02-01", RealtimeStart: "2020-04-01", RealtimeEnd: "2020-04-30", Value: "."},
		{Date: "2020-02-01", RealtimeStart: "2020-05-01", RealtimeEnd: "9999-12-31", Value: "2.2"},
	}
}

func TestConstructSeries(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		dates []int
		want  []float64
	}{
		{"latest release", Options{}, []int{20200101, 20200201}, []float64{1.2, 2.2}},
		{"first release", Options{Release: 1}, []int{20200101, 20200201}, []float64{1.0, 2.0}},
		{"second release skips missing", Options{Release: 2}, []int{20200101, 20200201}, []float64{1.1, 2.2}},
		{"third release", Options{Release: 3}, []int{20200101}, []float64{1.2}},
		{"vintage", Options{Vintage: 20200315}, []int{20200101, 20200201}, []float64{1.1, 2.0}},
		{"monthly alignment", Options{Freq: "M"}, []int{20200131, 20200229}, []float64{1.2, 2.2}},
		{"quarterly alignment", Options{Freq: "Q", Release: 1}, []int{20200331}, []float64{1.0}},
		{"release offset month", Options{ReleaseOffset: &Offset{Months: 1}}, []int{20200101, 20200201}, []float64{1.0, 2.0}},
		{"release offset days", Options{ReleaseOffset: &Offset{Days: 45}}, []int{20200101, 20200201}, []float64{1.0, 2.0}},
		{"start bound", Options{Start: 20200115}, []int{20200201}, []float64{2.2}},
		{"end bound", Options{End: 20200115}, []int{20200101}, []float64{1.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConstructSeries(revisions(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.dates, Dates(got))
			assert.InDeltaSlice(t, tt.want, Values(got), 1e-12)
		})
	}
}

func TestConstructSeriesRealtimeWindow(t *testing.T) {
	got, err := ConstructSeries(revisions(), Options{Release: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 20200201, got[0].RealtimeStart)
	assert.Equal(t, 20200229, got[0].RealtimeEnd)
}

func TestConstructSeriesVintageBeforeAnyRelease(t *testing.T) {
	got, err := ConstructSeries(revisions(), Options{Vintage: 19991231})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConstructSeriesErrors(t *testing.T) {
	_, err := ConstructSeries(revisions(), Options{Freq: "X"})
	assert.ErrorIs(t, err, ErrFrequency)
	_, err = ConstructSeries(revisions(), Options{Release: -1})
	assert.ErrorIs(t, err, ErrRelease)
}

func TestBackfillRealtime(t *testing.T) {
	obs := []models.Observation{
		{Date: "2001-01-01", RealtimeStart: "1776-07-04", RealtimeEnd: "9999-12-31", Value: "1"},
		{Date: "2001-02-01", RealtimeStart: "2001-03-01", RealtimeEnd: "9999-12-31", Value: "2"},
	}
	got := BackfillRealtime(obs, "1776-07-04", "9999-12-31")
	assert.Equal(t, "2001-01-01", got[0].RealtimeStart)
	assert.Equal(t, "2001-03-01", got[1].RealtimeStart)
	assert.Equal(t, "1776-07-04", obs[0].RealtimeStart, "input is not modified")
}

func TestOffsetClipsMonthEnd(t *testing.T) {
	got := Offset{Months: 1}.Add(util.IntToTime(20240131))
	assert.Equal(t, 20240229, util.TimeToInt(got))
	got = Offset{Months: 1, Days: 1}.Add(util.IntToTime(20240131))
	assert.Equal(t, 20240301, util.TimeToInt(got))
}

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "position %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-12, "position %d", i)
	}
}

func TestTransformCodes(t *testing.T) {
	x := []float64{100, 110, 121}
	nan := math.NaN()
	l := math.Log(1.1)
	tests := []struct {
		code string
		want []float64
	}{
		{"1", []float64{100, 110, 121}},
		{"lin", []float64{100, 110, 121}},
		{"2", []float64{nan, 10, 11}},
		{"3", []float64{nan, nan, 1}},
		{"4", []float64{math.Log(100), math.Log(110), math.Log(121)}},
		{"5", []float64{nan, l, l}},
		{"6", []float64{nan, nan, 0}},
		{"7", []float64{nan, nan, 0}},
		{"pch", []float64{nan, 0.1, 0.1}},
		{"cch", []float64{nan, l, l}},
		{"cca", []float64{nan, 12 * l, 12 * l}},
		{"pca", []float64{nan, 12 * l, 12 * l}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			spec, err := TransformCode(tt.code)
			require.NoError(t, err)
			assertSeries(t, tt.want, TransformValues(x, spec))
		})
	}

	_, err := TransformCode("zzz")
	assert.ErrorIs(t, err, ErrTransformCode)
}

func TestTransformYearAgoAndShift(t *testing.T) {
	x := make([]float64, 14)
	for i := range x {
		x[i] = 100 * math.Pow(1.01, float64(i))
	}
	spec, err := TransformCode("pc1")
	require.NoError(t, err)
	got := TransformValues(x, spec)
	assert.True(t, math.IsNaN(got[11]))
	assert.InDelta(t, math.Pow(1.01, 12)-1, got[12], 1e-12)

	shifted := TransformValues([]float64{1, 2, 3}, TransformSpec{Shift: 1})
	assertSeries(t, []float64{math.NaN(), 1, 2}, shifted)
	back := TransformValues([]float64{1, 2, 3}, TransformSpec{Shift: -1})
	assertSeries(t, []float64{2, 3, math.NaN()}, back)
}

func TestTransformSortsPoints(t *testing.T) {
	points := []models.Point{
		{Date: 20200301, Value: 121, RealtimeStart: 3},
		{Date: 20200101, Value: 100, RealtimeStart: 1},
		{Date: 20200201, Value: 110, RealtimeStart: 2},
	}
	got := Transform(points, TransformSpec{Diff: 1})
	assert.Equal(t, []int{20200101, 20200201, 20200301}, Dates(got))
	assert.Equal(t, 2, got[1].RealtimeStart)
	assertSeries(t, []float64{math.NaN(), 10, 11}, Values(got))
}

func TestTransformPanel(t *testing.T) {
	p := &models.Panel{
		Columns: []string{"A", "B"},
		Data:    []models.Values{{1, 100}, {3, 110}, {6, 121}},
	}
	require.NoError(t, TransformPanel(p, map[string]int{"A": 2}))
	assert.True(t, math.IsNaN(p.Data[0][0]))
	assert.Equal(t, 2.0, p.Data[1][0])
	assert.Equal(t, 3.0, p.Data[2][0])
	assert.Equal(t, 110.0, p.Data[1][1], "uncoded column unchanged")

	assert.ErrorIs(t, TransformPanel(p, map[string]int{"B": 9}), ErrTransformCode)
}

func TestDateSpans(t *testing.T) {
	values := []float64{0, 0, 1, 1, 0, 0, 1, 0}
	points := make([]models.Point, len(values))
	for i, v := range values {
		points[i] = models.Point{Date: i + 1, Value: v}
	}
	got := DateSpans(points, 0)
	assert.Equal(t, []models.Span{{First: 2, Last: 4}, {First: 6, Last: 7}}, got)
	assert.Empty(t, DateSpans(points, 1))
}

const mdCSV = `sasdate,RPI,W875RX1,CP3Mx
Transform:,5,5,1
1/1/1959,2437.296,2288.8,
2/1/1959,2446.902,2297.0,3.1
`

func TestParseMcCracken(t *testing.T) {
	panel, meta, err := ParseMcCracken(strings.NewReader(mdCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"RPI", "W875RX1", "CP3M"}, panel.Columns)
	assert.Equal(t, []int{19590131, 19590228}, panel.Index)
	assert.Equal(t, map[string]int{"RPI": 5, "W875RX1": 5, "CP3M": 1}, meta["transform"])
	assert.True(t, math.IsNaN(panel.Data[0][2]))
	assert.Equal(t, 3.1, panel.Data[1][2])

	_, _, err = ParseMcCracken(strings.NewReader("sasdate,A\nTransform:,1\n"))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestVintagePath(t *testing.T) {
	tests := []struct {
		kind    Kind
		vintage int
		want    Location
	}{
		{Monthly, 0, Location{File: "monthly/current.csv"}},
		{Monthly, 201312, Location{Archive: "Historical_FRED-MD.zip", File: "Historical FRED-MD Vintages Final/2013-12.csv"}},
		{Monthly, 202001, Location{File: "monthly/2020-01.csv"}},
		{Quarterly, 0, Location{File: "quarterly/current.csv"}},
		{Quarterly, 202003, Location{File: "quarterly/2020-03.csv"}},
	}
	for _, tt := range tests {
		got, err := VintagePath(tt.kind, tt.vintage)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := VintagePath("xx", 0)
	assert.ErrorIs(t, err, ErrKind)
}

func zipped(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoaderFallsBackToArchive(t *testing.T) {
	archive := zipped(t, "monthly/2020-01.csv", mdCSV)
	historical := zipped(t, "Historical FRED-MD Vintages Final/2013-12.csv", mdCSV)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/FRED_MD.zip":
			w.Write(archive)
		case "/Historical_FRED-MD.zip":
			w.Write(historical)
		case "/monthly/current.csv":
			w.Write([]byte(mdCSV))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewLoader(srv.URL, nil)
	ctx := context.Background()

	ds, err := loader.Load(ctx, Monthly, 202001)
	require.NoError(t, err)
	assert.Equal(t, "md:202001", ds.Name)
	assert.Equal(t, "FRED_MD.zip!monthly/2020-01.csv", ds.Path)
	assert.Equal(t, 5, ds.TransformCodes()["RPI"])

	ds, err = loader.Load(ctx, Monthly, 201312)
	require.NoError(t, err)
	assert.Len(t, ds.Panel.Data, 2)

	ds, err = loader.Load(ctx, Monthly, 0)
	require.NoError(t, err)
	assert.Equal(t, "md", ds.Name)

	_, err = loader.Load(ctx, Quarterly, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoaderLocalSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "quarterly"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quarterly", "current.csv"), []byte(mdCSV), 0o644))

	ds, err := NewLoader(dir, nil).Load(context.Background(), Quarterly, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"RPI", "W875RX1", "CP3M"}, ds.Panel.Columns)

	zipPath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(zipPath, zipped(t, "monthly/2021-06.csv", mdCSV), 0o644))
	ds, err = NewLoader(zipPath, nil).Load(context.Background(), Monthly, 202106)
	require.NoError(t, err)
	assert.Equal(t, []int{19590131, 19590228}, ds.Panel.Index)
}

const multplHTML = `<html><body>
<table id="datatable">
<tr><th>Date</th><th>Value</th></tr>
<tr><td>Feb 1, 2024</td><td>&#x2002;33.85</td></tr>
<tr><td>Jan 31, 2024</td><td>33.50%</td></tr>
<tr><td>Jan 1, 2024</td><td>32.9</td></tr>
<tr><td>Dec 1, 2023</td><td>n/a</td></tr>
</table></body></html>`

const popularHTML = `<html><body>
<a class="series-title" href="/series/GDP">Gross Domestic Product</a>
<a class="other" href="/series/NOPE">x</a>
<a class="series-title" href="/series/UNRATE">Unemployment Rate</a>
</body></html>`

func TestScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/shiller-pe/table/by-month":
			w.Write([]byte(multplHTML))
		case r.URL.Path == "/tags/series" && r.URL.Query().Get("pageID") == "2":
			w.Write([]byte(popularHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewScraper(5*time.Second, WithMultplURL(srv.URL), WithFREDURL(srv.URL))
	ctx := context.Background()

	points, err := s.Shiller(ctx, "shiller-pe")
	require.NoError(t, err)
	assert.Equal(t, []int{20240131, 20240229}, Dates(points))
	assert.Equal(t, []float64{33.5, 33.85}, Values(points))

	ids, err := s.Popular(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"GDP", "UNRATE"}, ids)

	_, err = s.Popular(ctx, 0)
	assert.Error(t, err)
	_, err = s.Shiller(ctx, "missing")
	assert.Error(t, err)
}
