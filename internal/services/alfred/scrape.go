package alfred

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"FinDS/internal/domain/models"
	"FinDS/pkg/util"
)

const (
	DefaultMultplURL = "https://www.multpl.com"
	DefaultFREDURL   = "https://fred.stlouisfed.org"
)

// ShillerPages maps FRED-MD series names to their multpl.com page.
var ShillerPages = map[string]string{
	"S&P div yield": "s-p-500-dividend-yield",
	"S&P PE ratio":  "shiller-pe",
}

var ErrNoTable = errors.New("no data table on page")

// Scraper reads series and series lists from public web pages.
type Scraper struct {
	client    *resty.Client
	multplURL string
	fredURL   string
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithMultplURL overrides the multpl.com base URL.
func WithMultplURL(u string) ScraperOption {
	return func(s *Scraper) { s.multplURL = strings.TrimRight(u, "/") }
}

// WithFREDURL overrides the fred.stlouisfed.org base URL.
func WithFREDURL(u string) ScraperOption {
	return func(s *Scraper) { s.fredURL = strings.TrimRight(u, "/") }
}

// NewScraper creates a scraper with a resty client.
func NewScraper(timeout time.Duration, opts ...ScraperOption) *Scraper {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; FinDS/1.0)")

	s := &Scraper{client: client, multplURL: DefaultMultplURL, fredURL: DefaultFREDURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scraper) document(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP error %d when fetching %s", resp.StatusCode(), url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Shiller scrapes the monthly table of a multpl.com page, such as
// "shiller-pe". Dates move to month end and the last value of each month is
// kept. Values like "4.52%" are stripped to their numeric part.
func (s *Scraper) Shiller(ctx context.Context, page string) ([]models.Point, error) {
	doc, err := s.document(ctx, fmt.Sprintf("%s/%s/table/by-month", s.multplURL, page))
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}
	return parseMonthlyTable(table), nil
}

func parseMonthlyTable(table *goquery.Selection) []models.Point {
	type obs struct {
		date  time.Time
		value float64
	}
	var rows []obs
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		d, err := time.Parse("Jan 2, 2006", strings.TrimSpace(cells.First().Text()))
		if err != nil {
			return
		}
		v := util.StripNumber(cells.Last().Text())
		if math.IsNaN(v) {
			return
		}
		rows = append(rows, obs{date: d, value: v})
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	var out []models.Point
	for _, r := range rows {
		date := util.TimeToInt(util.MonthEnd(r.date))
		if n := len(out); n > 0 && out[n-1].Date == date {
			out[n-1].Value = r.value
			continue
		}
		out = append(out, models.Point{Date: date, Value: r.value})
	}
	return out
}

// Popular lists series ids on one page of FRED's most-viewed series.
func (s *Scraper) Popular(ctx context.Context, page int) ([]string, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be positive, got %d", page)
	}
	doc, err := s.document(ctx, fmt.Sprintf("%s/tags/series?ob=pv&pageID=%d", s.fredURL, page))
	if err != nil {
		return nil, err
	}
	var ids []string
	doc.Find("a.series-title").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		parts := strings.Split(strings.TrimRight(href, "/"), "/")
		ids = append(ids, parts[len(parts)-1])
	})
	return ids, nil
}
