package alfred

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"FinDS/internal/domain/models"
	xhttp "FinDS/pkg/http"
	"FinDS/pkg/util"
)

// DefaultBaseURL hosts the McCracken FRED-MD and FRED-QD files.
const DefaultBaseURL = "https://files.stlouisfed.org/files/htdocs/fred-md/"

var (
	ErrNotFound = errors.New("dataset file not found")
	ErrKind     = errors.New("dataset kind must be md or qd")
	ErrFormat   = errors.New("malformed dataset file")
)

// Kind selects the monthly (md) or quarterly (qd) database.
type Kind string

const (
	Monthly   Kind = "md"
	Quarterly Kind = "qd"
)

// Location names a csv file, optionally inside a zip archive, relative to a
// base URL or directory.
type Location struct {
	Archive string
	File    string
}

func (l Location) String() string {
	if l.Archive == "" {
		return l.File
	}
	return l.Archive + "!" + l.File
}

func vintageFile(vintage int) string {
	return fmt.Sprintf("%d-%02d.csv", vintage/100, vintage%100)
}

// VintagePath derives where a vintage (YYYYMM, 0 for current) is published.
// Monthly vintages before 2015 only exist inside the historical archive.
func VintagePath(kind Kind, vintage int) (Location, error) {
	switch kind {
	case Monthly:
		switch {
		case vintage <= 0:
			return Location{File: "monthly/current.csv"}, nil
		case vintage < 201500:
			return Location{
				Archive: "Historical_FRED-MD.zip",
				File:    "Historical FRED-MD Vintages Final/" + vintageFile(vintage),
			}, nil
		default:
			return Location{File: "monthly/" + vintageFile(vintage)}, nil
		}
	case Quarterly:
		if vintage <= 0 {
			return Location{File: "quarterly/current.csv"}, nil
		}
		return Location{File: "quarterly/" + vintageFile(vintage)}, nil
	}
	return Location{}, fmt.Errorf("%w: %q", ErrKind, kind)
}

// fallback is the archive that also carries loose post-2015 files.
func fallback(kind Kind, loc Location) (Location, bool) {
	if loc.Archive != "" || strings.HasSuffix(loc.File, "current.csv") {
		return Location{}, false
	}
	if kind == Monthly {
		return Location{Archive: "FRED_MD.zip", File: loc.File}, true
	}
	return Location{Archive: "FRED_QD.zip", File: loc.File}, true
}

// ParseMcCracken reads a FRED-MD/QD csv. The header row names the series
// (a trailing "x" marks adjusted series and is removed). Leading rows whose
// first cell is not a m/d/yyyy date carry metadata such as transformation
// codes. Data rows are indexed by month end.
func ParseMcCracken(r io.Reader) (*models.Panel, map[string]map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(records) < 2 || len(records[0]) < 2 {
		return nil, nil, fmt.Errorf("%w: no data rows", ErrFormat)
	}

	header := records[0][1:]
	columns := make([]string, len(header))
	for j, h := range header {
		columns[j] = strings.TrimRight(strings.TrimSpace(h), "x")
	}

	meta := make(map[string]map[string]int)
	panel := &models.Panel{Columns: columns}
	for i, rec := range records[1:] {
		first := strings.TrimSpace(rec[0])
		if strings.Index(first, "/") > 0 {
			d, err := time.Parse("1/2/2006", first)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: date %q", ErrFormat, first)
			}
			row := make(models.Values, len(columns))
			for j := range row {
				row[j] = math.NaN()
				if j+1 < len(rec) {
					row[j] = util.ParseNumber(rec[j+1])
				}
			}
			panel.Index = append(panel.Index, util.TimeToInt(util.MonthEnd(d)))
			panel.Data = append(panel.Data, row)
			continue
		}
		if i >= 5 {
			continue
		}
		label := metaLabel(first)
		if label == "" {
			continue
		}
		codes := make(map[string]int, len(columns))
		for j, name := range columns {
			if j+1 >= len(rec) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				continue
			}
			codes[name] = int(v)
		}
		meta[label] = codes
	}
	if len(panel.Data) == 0 {
		return nil, nil, fmt.Errorf("%w: no dated rows", ErrFormat)
	}
	return panel, meta, nil
}

func metaLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Loader reads McCracken datasets from a base URL, a local directory or a
// single zip archive (base ending in ".zip").
type Loader struct {
	base   string
	client *xhttp.Client
}

// NewLoader creates a loader; an empty base uses DefaultBaseURL.
func NewLoader(base string, client *xhttp.Client) *Loader {
	if base == "" {
		base = DefaultBaseURL
	}
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(2 * time.Minute))
	}
	return &Loader{base: base, client: client}
}

// Load fetches and parses a vintage. A loose monthly or quarterly file that
// is missing is retried once inside the matching zip archive.
func (l *Loader) Load(ctx context.Context, kind Kind, vintage int) (*models.Dataset, error) {
	loc, err := VintagePath(kind, vintage)
	if err != nil {
		return nil, err
	}
	ds, err := l.LoadLocation(ctx, loc)
	if errors.Is(err, ErrNotFound) {
		if alt, ok := fallback(kind, loc); ok {
			ds, err = l.LoadLocation(ctx, alt)
		}
	}
	if err != nil {
		return nil, err
	}
	ds.Name = string(kind)
	if vintage > 0 {
		ds.Name = fmt.Sprintf("%s:%d", kind, vintage)
	}
	return ds, nil
}

// LoadLocation reads and parses one csv file.
func (l *Loader) LoadLocation(ctx context.Context, loc Location) (*models.Dataset, error) {
	data, err := l.read(ctx, loc)
	if err != nil {
		return nil, err
	}
	panel, meta, err := ParseMcCracken(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return &models.Dataset{Path: loc.String(), Panel: panel, Meta: meta}, nil
}

func (l *Loader) read(ctx context.Context, loc Location) ([]byte, error) {
	if strings.HasSuffix(strings.ToLower(l.base), ".zip") {
		raw, err := l.fetch(ctx, l.base)
		if err != nil {
			return nil, err
		}
		return readZip(raw, loc.File)
	}
	if loc.Archive != "" {
		raw, err := l.fetch(ctx, l.join(loc.Archive))
		if err != nil {
			return nil, err
		}
		return readZip(raw, loc.File)
	}
	return l.fetch(ctx, l.join(loc.File))
}

func (l *Loader) join(name string) string {
	if isURL(l.base) {
		return strings.TrimRight(l.base, "/") + "/" + path.Clean(name)
	}
	return filepath.Join(l.base, filepath.FromSlash(name))
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	if isURL(src) {
		body, err := l.client.Get(ctx, src)
		if xhttp.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return body, err
	}
	body, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	return body, err
}

func readZip(raw []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in archive", ErrNotFound, name)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
